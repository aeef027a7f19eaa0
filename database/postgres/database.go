package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filepulse"
)

// Database provides PostgreSQL database operations.
type Database struct {
	pool   *pgxpool.Pool
	tables filepulse.Tables
	codes  filepulse.CodeGenerator
}

// Connect establishes a connection pool to PostgreSQL.
// Tables should be validated before calling Connect. A nil codes falls
// back to filepulse.RandomCodes.
func Connect(ctx context.Context, dsn string, tables filepulse.Tables, codes filepulse.CodeGenerator) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if codes == nil {
		codes = filepulse.RandomCodes{}
	}

	return &Database{
		pool:   pool,
		tables: tables,
		codes:  codes,
	}, nil
}

// Ping verifies the database connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *Database) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, d.pool, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *Database) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.pool, d.tables)
}

// GetRepo returns the ShareRegistry for database operations.
func (d *Database) GetRepo() filepulse.ShareRegistry {
	return NewRepo(d.pool, d.tables.Shares, d.codes)
}

// Close closes the database connection pool.
func (d *Database) Close() error {
	d.pool.Close()
	return nil
}
