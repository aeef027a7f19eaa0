package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/filepulse"
)

// quoteIdentifier safely quotes a SQLite identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, db *sql.DB) error
	Down      func(ctx context.Context, db *sql.DB) error
}

func getTableMigrations(tables filepulse.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.Shares,
			Up:        createSharesTable(tables.Shares),
			Down:      dropTable(tables.Shares),
		},
	}
}

// Migrate creates every table and index. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB, tables filepulse.Tables) error {
	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

// DropTables removes every table in reverse creation order.
func DropTables(ctx context.Context, db *sql.DB, tables filepulse.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, db); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

// Timestamps are stored as fixed-width UTC text, so comparing the text
// orders them the same way as comparing the instants.
func createSharesTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)
		indexDigest := quoteIdentifier(fmt.Sprintf("idx_%s_digest_expires_at", tableName))
		indexExpires := quoteIdentifier(fmt.Sprintf("idx_%s_expires_at", tableName))

		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				code TEXT NOT NULL PRIMARY KEY,
				digest TEXT NOT NULL,
				display_name TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				origin TEXT NOT NULL,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				CHECK (expires_at > created_at)
			)
		`, quotedTable)

		if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		indexSQL := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s (digest, expires_at)
		`, indexDigest, quotedTable)

		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("create index digest_expires_at: %w", err)
		}

		indexSQL = fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s (expires_at)
		`, indexExpires, quotedTable)

		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("create index expires_at: %w", err)
		}

		return nil
	}
}

func dropTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quotedTable)

		_, err := db.ExecContext(ctx, dropSQL)
		return err
	}
}
