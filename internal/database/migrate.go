package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Up, Down:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be %q or %q, got %q", Up, Down, s)
	}
}

// MigrationFiles lists NNN_name.<direction>.sql files in dir in the order
// they must run: ascending for up, descending for down.
func MigrationFiles(dir string, direction Direction) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	suffix := "." + string(direction) + ".sql"
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}

// Migrate executes every migration file for direction and reports each one
// to onApply before it runs. It stops at the first failure.
func Migrate(ctx context.Context, db *sql.DB, dir string, direction Direction, onApply func(name string)) (int, error) {
	files, err := MigrationFiles(dir, direction)
	if err != nil {
		return 0, err
	}

	for i, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return i, fmt.Errorf("read migration file %s: %w", name, err)
		}

		if onApply != nil {
			onApply(name)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return i, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return len(files), nil
}
