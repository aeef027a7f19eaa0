package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/config"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <code>",
	Short: "Show a share as stored in the registry",
	Long: `Print the registry row of a share, including fields the public API
hides (digest, origin). Expired shares that the reaper has not removed yet
are shown too.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectJSON bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the share as JSON")
	rootCmd.AddCommand(inspectCmd)
}

// inspectedShare exposes every registry column, unlike filepulse.Share's
// public JSON form.
type inspectedShare struct {
	Code        string    `json:"code"`
	Digest      string    `json:"digest"`
	DisplayName string    `json:"display_name"`
	Size        int64     `json:"size"`
	Origin      string    `json:"origin"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Expired     bool      `json:"expired"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	code := args[0]

	db, err := openRegistry(ctx, cfg.Database, false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	share, err := db.GetRepo().Lookup(ctx, code, time.Now().UTC())
	expired := errors.Is(err, filepulse.ErrExpired)
	if err != nil && !expired {
		return fmt.Errorf("inspect %s: %w", code, err)
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		return printJSON(out, inspectedShare{
			Code:        share.Code,
			Digest:      share.Digest,
			DisplayName: share.DisplayName,
			Size:        share.Size,
			Origin:      share.Origin,
			CreatedAt:   share.CreatedAt,
			ExpiresAt:   share.ExpiresAt,
			Expired:     expired,
		})
	}

	status := "live, expires " + humanize.Time(share.ExpiresAt)
	if expired {
		status = "expired " + humanize.Time(share.ExpiresAt)
	}

	_, _ = fmt.Fprintf(out, "Code:     %s\n", share.Code)
	_, _ = fmt.Fprintf(out, "Name:     %s\n", share.DisplayName)
	_, _ = fmt.Fprintf(out, "Size:     %s (%d bytes)\n", humanize.IBytes(uint64(share.Size)), share.Size)
	_, _ = fmt.Fprintf(out, "Digest:   %s\n", share.Digest)
	_, _ = fmt.Fprintf(out, "Origin:   %s\n", share.Origin)
	_, _ = fmt.Fprintf(out, "Created:  %s\n", share.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "Expires:  %s\n", share.ExpiresAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "Status:   %s\n", status)

	return nil
}
