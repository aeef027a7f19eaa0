package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database/schema"
)

// Timestamps are TEXT; see createSharesTable.
func sharesTable(name string) schema.Table {
	return schema.Table{
		Name: name,
		Columns: map[string]schema.Column{
			"code":         {Type: "text"},
			"digest":       {Type: "text"},
			"display_name": {Type: "text"},
			"size_bytes":   {Type: "integer"},
			"origin":       {Type: "text"},
			"created_at":   {Type: "text"},
			"expires_at":   {Type: "text"},
		},
		Indexes: [][]string{{"digest", "expires_at"}, {"expires_at"}},
	}
}

// ValidateSchema checks the shares table's columns and the indexes the
// reference count and the expiry sweep rely on.
func ValidateSchema(ctx context.Context, db *sql.DB, tables filepulse.Tables) error {
	table := sharesTable(tables.Shares)
	if !filepulse.IsValidTableName(table.Name) {
		return fmt.Errorf("validate schema: invalid table name: %s", table.Name)
	}

	columns, err := readColumns(ctx, db, table.Name)
	if err != nil {
		return fmt.Errorf("validate schema %s: %w", table.Name, err)
	}

	indexes, err := readIndexes(ctx, db, table.Name)
	if err != nil {
		return fmt.Errorf("validate schema %s: %w", table.Name, err)
	}

	if err := table.Check(columns, indexes); err != nil {
		return fmt.Errorf("validate schema %s: %w", table.Name, err)
	}
	return nil
}

func readColumns(ctx context.Context, db *sql.DB, table string) (map[string]schema.Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull" FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var (
			name, dataType string
			notNull        int
		)
		if err := rows.Scan(&name, &dataType, &notNull); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = schema.Column{Type: strings.ToLower(dataType), Nullable: notNull == 0}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	return columns, nil
}

func readIndexes(ctx context.Context, db *sql.DB, table string) ([][]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT il.name, ii.name
		FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
		ORDER BY il.name, ii.seqno
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, fmt.Errorf("scan index column: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read indexes: %w", err)
	}

	return schema.GroupIndexColumns(pairs), nil
}
