package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database/schema"
)

func sharesTable(name string) schema.Table {
	return schema.Table{
		Name: name,
		Columns: map[string]schema.Column{
			"code":         {Type: "text"},
			"digest":       {Type: "text"},
			"display_name": {Type: "text"},
			"size_bytes":   {Type: "bigint"},
			"origin":       {Type: "text"},
			"created_at":   {Type: "timestamp with time zone"},
			"expires_at":   {Type: "timestamp with time zone"},
		},
		Indexes: [][]string{{"digest", "expires_at"}, {"expires_at"}},
	}
}

// ValidateSchema checks the shares table in the current schema, its
// columns and the indexes the reference count and the expiry sweep rely
// on. It is meant for deployments that run migrations by hand.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables filepulse.Tables) error {
	table := sharesTable(tables.Shares)
	if !filepulse.IsValidTableName(table.Name) {
		return fmt.Errorf("validate schema: invalid table name: %s", table.Name)
	}

	columns, err := readColumns(ctx, pool, table.Name)
	if err != nil {
		return fmt.Errorf("validate schema %s: %w", table.Name, err)
	}

	indexes, err := readIndexes(ctx, pool, table.Name)
	if err != nil {
		return fmt.Errorf("validate schema %s: %w", table.Name, err)
	}

	if err := table.Check(columns, indexes); err != nil {
		return fmt.Errorf("validate schema %s: %w", table.Name, err)
	}
	return nil
}

func readColumns(ctx context.Context, pool *pgxpool.Pool, table string) (map[string]schema.Column, error) {
	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = schema.Column{Type: strings.ToLower(dataType), Nullable: nullable == "YES"}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	return columns, nil
}

func readIndexes(ctx context.Context, pool *pgxpool.Pool, table string) ([][]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT i.relname, a.attname
		FROM pg_index x
		JOIN pg_class t ON t.oid = x.indrelid
		JOIN pg_class i ON i.oid = x.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(x.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = current_schema() AND t.relname = $1
		ORDER BY i.relname, k.ord
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

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
