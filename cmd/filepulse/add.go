package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/config"
)

var addCmd = &cobra.Command{
	Use:   "add [flags] <file1> [file2] ...",
	Short: "Share local files without going through HTTP",
	Long: `Import files from the local filesystem and issue a share code for each.

Files go through the same pipeline as HTTP uploads: names are sanitized,
the size limit applies and identical content is stored once.

Examples:
  # Share a single file
  filepulse add /path/to/report.pdf

  # Share every file under a directory
  filepulse add -r /path/to/exports`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addRecursive bool
	addQuiet     bool
)

func init() {
	addCmd.Flags().BoolVarP(&addRecursive, "recursive", "r", false, "recursively add directories")
	addCmd.Flags().BoolVarP(&addQuiet, "quiet", "q", false, "print only the codes")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// Collect files from all arguments
	var files []string
	for _, arg := range args {
		entries, collectErr := collectFiles(arg, addRecursive)
		if collectErr != nil {
			return fmt.Errorf("collect files from %s: %w", arg, collectErr)
		}
		files = append(files, entries...)
	}

	if len(files) == 0 {
		slog.Info("no files to add")
		return nil
	}

	c, err := openComponents(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer c.close()

	out := cmd.OutOrStdout()

	for _, path := range files {
		share, addErr := addFile(cmd, c.service, path)
		if addErr != nil {
			return fmt.Errorf("add %s: %w", path, addErr)
		}

		if addQuiet {
			_, _ = fmt.Fprintln(out, share.Code)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s  %s  %s  expires %s\n",
			share.Code, share.DisplayName, humanize.IBytes(uint64(share.Size)), humanize.Time(share.ExpiresAt))
	}

	slog.Debug("add complete", "added", len(files))
	return nil
}

func addFile(cmd *cobra.Command, service *filepulse.Service, path string) (filepulse.Share, error) {
	f, err := os.Open(path)
	if err != nil {
		return filepulse.Share{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return filepulse.Share{}, err
	}

	return service.Upload(cmd.Context(), filepulse.UploadRequest{
		Filename:     filepath.Base(path),
		Origin:       "local",
		Content:      f,
		DeclaredSize: info.Size(),
	})
}

// collectFiles gathers regular files from a path, optionally recursively.
func collectFiles(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	if !recursive {
		return nil, fmt.Errorf("%s is a directory (use -r to add recursively)", path)
	}

	var files []string
	walkErr := filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			files = append(files, walkPath)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return files, nil
}
