package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/config"
	"github.com/sagarc03/filepulse/database"
	"github.com/sagarc03/filepulse/filesystem"
)

// openRegistry connects to the configured database, migrating it first
// when migrate is set. The schema is validated either way.
func openRegistry(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (database.Database, error) {
	if migrate {
		db, err := database.Open(ctx, cfg.Connection())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}

	db, err := database.Connect(ctx, cfg.Connection())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("validate database schema: %w", err)
	}

	return db, nil
}

// openStore opens the content store rooted at path, creating the directory
// if needed. The returned function closes the root.
func openStore(path, digest string) (*filesystem.Store, func(), error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create storage directory: %w", err)
	}

	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage root: %w", err)
	}

	store, err := filesystem.NewFileStorage(root, digest)
	if err != nil {
		_ = root.Close()
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	return store, func() { _ = root.Close() }, nil
}

// components holds everything a command needs to run the engine in-process.
type components struct {
	db      database.Database
	store   *filesystem.Store
	service *filepulse.Service
	reaper  *filepulse.Reaper
	close   func()
}

// openComponents wires registry, store, service and reaper from cfg. The
// service and the reaper share one lock table, backed by lock files in the
// storage directory so other filepulse processes on it are excluded too.
func openComponents(ctx context.Context, cfg *config.Config, migrate bool) (*components, error) {
	db, err := openRegistry(ctx, cfg.Database, migrate)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg.Storage.Path, cfg.Service.Digest)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	closeAll := func() {
		closeStore()
		if err := db.Close(); err != nil {
			slog.Warn("close database", "err", err)
		}
	}

	locks := filepulse.NewDigestLocks(store)

	serviceCfg, err := cfg.Service.Filepulse()
	if err != nil {
		closeAll()
		return nil, err
	}
	serviceCfg.Locks = locks

	service, err := filepulse.NewService(db.GetRepo(), store, serviceCfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create service: %w", err)
	}

	reaperCfg, err := cfg.Reaper.Filepulse()
	if err != nil {
		closeAll()
		return nil, err
	}
	reaperCfg.Locks = locks

	reaper, err := filepulse.NewReaper(db.GetRepo(), store, reaperCfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create reaper: %w", err)
	}

	return &components{
		db:      db,
		store:   store,
		service: service,
		reaper:  reaper,
		close:   closeAll,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
