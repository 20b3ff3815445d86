package query

import (
	"fmt"
	"strings"
)

// Condition is a WHERE clause fragment. SQL receives the number of the first
// positional parameter it may use ($next) and returns the fragment together
// with the arguments it consumed, in order.
type Condition interface {
	SQL(next int) (string, []any)
}

type compareCondition struct {
	field string
	op    string
	value any
}

func (c *compareCondition) SQL(next int) (string, []any) {
	return fmt.Sprintf("%s %s $%d", c.field, c.op, next), []any{c.value}
}

// Eq generates "field = $n".
func Eq(field string, value any) Condition {
	return &compareCondition{field: field, op: "=", value: value}
}

// Ne generates "field <> $n".
func Ne(field string, value any) Condition {
	return &compareCondition{field: field, op: "<>", value: value}
}

// Gte generates "field >= $n".
func Gte(field string, value any) Condition {
	return &compareCondition{field: field, op: ">=", value: value}
}

// Lte generates "field <= $n".
func Lte(field string, value any) Condition {
	return &compareCondition{field: field, op: "<=", value: value}
}

type betweenCondition struct {
	field    string
	min, max any
}

// Between is inclusive on both ends.
func Between(field string, min, max any) Condition {
	return &betweenCondition{field: field, min: min, max: max}
}

func (c *betweenCondition) SQL(next int) (string, []any) {
	return fmt.Sprintf("%s BETWEEN $%d AND $%d", c.field, next, next+1), []any{c.min, c.max}
}

type eqFoldCondition struct {
	field string
	value string
}

// EqFold is case-insensitive equality.
func EqFold(field, value string) Condition {
	return &eqFoldCondition{field: field, value: value}
}

func (c *eqFoldCondition) SQL(next int) (string, []any) {
	return fmt.Sprintf("LOWER(%s) = LOWER($%d)", c.field, next), []any{c.value}
}

type containsFoldCondition struct {
	field string
	value string
}

// ContainsFold is case-insensitive literal substring containment. POSITION is
// used instead of LIKE so that % and _ in the term match themselves.
func ContainsFold(field, value string) Condition {
	return &containsFoldCondition{field: field, value: value}
}

func (c *containsFoldCondition) SQL(next int) (string, []any) {
	return fmt.Sprintf("POSITION(LOWER($%d) IN LOWER(%s)) > 0", next, c.field), []any{c.value}
}

type orCondition struct {
	conditions []Condition
}

// Or matches when any of the conditions match. Or() with no conditions
// matches nothing.
func Or(conditions ...Condition) Condition {
	return &orCondition{conditions: conditions}
}

func (c *orCondition) SQL(next int) (string, []any) {
	if len(c.conditions) == 0 {
		return "FALSE", nil
	}

	parts := make([]string, 0, len(c.conditions))
	var args []any
	for _, cond := range c.conditions {
		fragment, condArgs := cond.SQL(next + len(args))
		parts = append(parts, fragment)
		args = append(args, condArgs...)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

type isNullCondition struct {
	field string
}

// IsNull generates "field IS NULL".
func IsNull(field string) Condition {
	return &isNullCondition{field: field}
}

func (c *isNullCondition) SQL(int) (string, []any) {
	return c.field + " IS NULL", nil
}

type rawCondition struct {
	fragment string
}

// Raw embeds a parameterless fragment such as "p.is_available".
func Raw(fragment string) Condition {
	return &rawCondition{fragment: fragment}
}

func (c *rawCondition) SQL(int) (string, []any) {
	return c.fragment, nil
}
