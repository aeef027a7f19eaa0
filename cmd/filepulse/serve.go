package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filepulse/config"
	filepulsehttp "github.com/sagarc03/filepulse/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the FilePulse HTTP server.

The database is migrated on startup and the reaper runs in the background
on the configured schedule. SIGINT or SIGTERM stops the server gracefully:
in-flight requests are drained first, then the reaper is stopped.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (default: 0.0.0.0)")
	serveCmd.Flags().Int("port", 0, "HTTP server port (default: 8000)")
	serveCmd.Flags().String("max-file-size", "", "upload size limit, e.g. 100MB (default: 100MB)")
	serveCmd.Flags().Int("ttl-days", 0, "share lifetime in days (default: 7)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openComponents(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer c.close()

	slog.Info("connected to database", "type", cfg.Database.Type, "table", cfg.Database.Tables.Shares)

	if err = c.reaper.Start(ctx); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}
	defer c.reaper.Stop()
	slog.Info("reaper started", "next_run", c.reaper.NextRun(time.Now()), "orphan_scan", cfg.Reaper.OrphanScan)

	handler := filepulsehttp.NewHandler(&filepulsehttp.HandlerConfig{
		TrustProxy: cfg.Server.TrustProxy,
		CORS:       cfg.CORS,
	}, c.service)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	slog.Info("starting server",
		"addr", server.Addr,
		"max_file_size", humanize.IBytes(uint64(c.service.MaxFileSize())),
		"ttl_days", cfg.Service.TTLDays,
		"dedup_policy", cfg.Service.DedupPolicy,
	)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "err", err)
	}

	c.reaper.Stop()
	slog.Info("server stopped")
	return nil
}
