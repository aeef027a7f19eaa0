package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sagarc03/filepulse"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database provides SQLite database operations.
type Database struct {
	db     *sql.DB
	tables filepulse.Tables
	codes  filepulse.CodeGenerator
}

// Connect opens a SQLite database. File databases run in WAL mode with a
// busy timeout so the reaper and concurrent uploads do not fail on lock
// contention. An in-memory database is pinned to a single connection, as
// every connection would otherwise see its own empty database.
//
// Tables should be validated before calling Connect. A nil codes falls
// back to filepulse.RandomCodes.
func Connect(ctx context.Context, dsn string, tables filepulse.Tables, codes filepulse.CodeGenerator) (*Database, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	}

	if codes == nil {
		codes = filepulse.RandomCodes{}
	}

	return &Database{
		db:     db,
		tables: tables,
		codes:  codes,
	}, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func withPragmas(dsn string) string {
	if isMemory(dsn) || strings.Contains(dsn, "_pragma=") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Ping verifies the database connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *Database) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, d.db, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *Database) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db, d.tables)
}

// GetRepo returns the ShareRegistry for database operations.
func (d *Database) GetRepo() filepulse.ShareRegistry {
	return &repo{db: d.db, tableName: d.tables.Shares, codes: d.codes}
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}
