// Package query builds parameterized Postgres SELECT statements from
// composable conditions.
package query

import (
	"fmt"
	"strings"
)

// Direction represents ORDER BY direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type ordering struct {
	column    string
	direction Direction
}

// Builder is immutable: every method returns a modified copy, so a partially
// built query can be shared and extended safely.
type Builder struct {
	table        string
	selectCols   []string
	whereClauses []Condition
	orderings    []ordering
	limitVal     int64
	offsetVal    int64
}

// From creates a new Builder for the specified table expression, which may
// include joins and an alias.
func From(table string) *Builder {
	return &Builder{table: table}
}

func (b *Builder) Select(columns ...string) *Builder {
	nb := b.clone()
	nb.selectCols = append(nb.selectCols, columns...)
	return nb
}

// Where adds a condition. Multiple calls are combined with AND.
func (b *Builder) Where(condition Condition) *Builder {
	nb := b.clone()
	nb.whereClauses = append(nb.whereClauses, condition)
	return nb
}

// OrderBy appends a sort key. Earlier keys take precedence.
func (b *Builder) OrderBy(column string, direction Direction) *Builder {
	nb := b.clone()
	nb.orderings = append(nb.orderings, ordering{column: column, direction: direction})
	return nb
}

func (b *Builder) Limit(limit int64) *Builder {
	nb := b.clone()
	nb.limitVal = limit
	return nb
}

func (b *Builder) Offset(offset int64) *Builder {
	nb := b.clone()
	nb.offsetVal = offset
	return nb
}

// Count returns a COUNT(*) query with the same FROM and WHERE clauses and no
// ordering or pagination.
func (b *Builder) Count() *Builder {
	nb := b.clone()
	nb.selectCols = []string{"COUNT(*)"}
	nb.orderings = nil
	nb.limitVal = 0
	nb.offsetVal = 0
	return nb
}

// Build returns the SQL text and its positional arguments.
func (b *Builder) Build() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(b.selectCols) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.selectCols, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	if len(b.whereClauses) > 0 {
		parts := make([]string, 0, len(b.whereClauses))
		for _, cond := range b.whereClauses {
			fragment, condArgs := cond.SQL(len(args) + 1)
			parts = append(parts, fragment)
			args = append(args, condArgs...)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(b.orderings) > 0 {
		parts := make([]string, 0, len(b.orderings))
		for _, o := range b.orderings {
			dir := "ASC"
			if o.direction == Desc {
				dir = "DESC"
			}
			parts = append(parts, o.column+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limitVal > 0 {
		args = append(args, b.limitVal)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	if b.offsetVal > 0 {
		args = append(args, b.offsetVal)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	return sb.String(), args
}

func (b *Builder) clone() *Builder {
	return &Builder{
		table:        b.table,
		selectCols:   append([]string(nil), b.selectCols...),
		whereClauses: append([]Condition(nil), b.whereClauses...),
		orderings:    append([]ordering(nil), b.orderings...),
		limitVal:     b.limitVal,
		offsetVal:    b.offsetVal,
	}
}

// String returns a human-readable representation for debugging.
func (b *Builder) String() string {
	sql, args := b.Build()
	return fmt.Sprintf("SQL: %s\nArgs: %v", sql, args)
}
