// Package schema compares a registry table found in a database with the
// columns and indexes the registry relies on. Drivers read the catalog and
// hand the result to Table.Check.
package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Column is a column as the driver's catalog reports it. Type is lower
// case.
type Column struct {
	Type     string
	Nullable bool
}

// Table is the expected shape of one table.
type Table struct {
	Name    string
	Columns map[string]Column
	// Indexes lists the column sequence of each required index. Index names
	// are not checked.
	Indexes [][]string
}

// Check reports every difference between t and the columns and index
// column lists found in the database. No columns at all means the table
// does not exist.
func (t Table) Check(columns map[string]Column, indexes [][]string) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s does not exist", t.Name)
	}

	var missing, mismatched, missingIndexes []string

	for _, name := range slices.Sorted(maps.Keys(t.Columns)) {
		want := t.Columns[name]
		got, ok := columns[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if got.Type != want.Type {
			mismatched = append(mismatched, fmt.Sprintf("%s: expected %s, got %s", name, want.Type, got.Type))
		}
		if got.Nullable != want.Nullable {
			mismatched = append(mismatched, fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", name, want.Nullable, got.Nullable))
		}
	}

	for _, want := range t.Indexes {
		if !slices.ContainsFunc(indexes, func(got []string) bool { return slices.Equal(got, want) }) {
			missingIndexes = append(missingIndexes, "("+strings.Join(want, ", ")+")")
		}
	}

	if len(missing) == 0 && len(mismatched) == 0 && len(missingIndexes) == 0 {
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "table %s schema validation failed:\n", t.Name)
	if len(missing) > 0 {
		fmt.Fprintf(&msg, "  missing columns: %s\n", strings.Join(missing, ", "))
	}
	if len(mismatched) > 0 {
		msg.WriteString("  mismatched columns:\n")
		for _, m := range mismatched {
			fmt.Fprintf(&msg, "    - %s\n", m)
		}
	}
	if len(missingIndexes) > 0 {
		fmt.Fprintf(&msg, "  missing indexes on: %s\n", strings.Join(missingIndexes, ", "))
	}

	return errors.New(msg.String())
}

// GroupIndexColumns folds (index, column) rows ordered by index name and
// column position into one column list per index.
func GroupIndexColumns(rows [][2]string) [][]string {
	var (
		out  [][]string
		last string
	)
	for i, row := range rows {
		if i == 0 || row[0] != last {
			out = append(out, nil)
			last = row[0]
		}
		out[len(out)-1] = append(out[len(out)-1], row[1])
	}
	return out
}
