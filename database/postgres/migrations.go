package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filepulse"
)

// Migrate creates every table and index. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables filepulse.Tables) error {
	if err := createSharesTable(ctx, pool, tables.Shares); err != nil {
		return fmt.Errorf("migrate up %s: %w", tables.Shares, err)
	}
	return nil
}

// DropTables removes every table.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables filepulse.Tables) error {
	quotedTable := pgx.Identifier{tables.Shares}.Sanitize()
	if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quotedTable)); err != nil {
		return fmt.Errorf("migrate down %s: %w", tables.Shares, err)
	}
	return nil
}

func createSharesTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	indexDigest := pgx.Identifier{fmt.Sprintf("idx_%s_digest_expires_at", tableName)}.Sanitize()
	indexExpires := pgx.Identifier{fmt.Sprintf("idx_%s_expires_at", tableName)}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			code TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			display_name TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			origin TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			CHECK (expires_at > created_at)
		);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (digest, expires_at);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (expires_at);
	`,
		quotedTable,
		indexDigest, quotedTable,
		indexExpires, quotedTable,
	)

	_, err := pool.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("create shares table: %w", err)
	}
	return nil
}
