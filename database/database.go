package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database/postgres"
	"github.com/sagarc03/filepulse/database/sqlite"
)

// Config holds the configuration for connecting to a share registry backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string
	// DSN is the data source name (connection string)
	DSN string
	// Tables holds the table names
	Tables filepulse.Tables
	// Codes generates share codes; nil means filepulse.RandomCodes
	Codes filepulse.CodeGenerator
}

// Database is a connected registry backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	GetRepo() filepulse.ShareRegistry
	Close() error
}

// Connect validates the table names and opens the configured backend.
// It does not migrate; call Migrate and Validate on the result.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		db, err := sqlite.Connect(ctx, cfg.DSN, cfg.Tables, cfg.Codes)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.DSN, cfg.Tables, cfg.Codes)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("connect: unsupported database type: %s", cfg.Type)
	}
}

// Open connects, migrates and validates the schema in one step, closing
// the connection again if any step fails.
func Open(ctx context.Context, cfg Config) (Database, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: ping: %w", cfg.Type, err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}

	if err := db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}

	return db, nil
}
