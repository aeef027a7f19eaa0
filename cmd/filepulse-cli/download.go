package main

import (
	"io"
	"os"

	"github.com/sagarc03/filepulse/clientcli"
	"github.com/spf13/cobra"
)

var (
	downloadOutput string
	downloadStdout bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <code>",
	Short: "Download a shared file",
	Long: `Download the file behind a share code.

The file is saved under the name it was shared with unless -o is given.
Unknown and expired codes both report "not found".

Examples:
  filepulse-cli download aB3dE9xY
  filepulse-cli download -o ./local.pdf aB3dE9xY
  filepulse-cli download --stdout aB3dE9xY | jq .`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file path (- for stdout)")
	downloadCmd.Flags().BoolVar(&downloadStdout, "stdout", false, "write to stdout")
}

func runDownload(cmd *cobra.Command, args []string) error {
	localPath := downloadOutput
	if downloadStdout {
		localPath = "-"
	}

	client, err := getClient()
	if err != nil {
		return reportError(err)
	}

	result, reader, err := client.Download(cmd.Context(), clientcli.DownloadOptions{
		Code:      args[0],
		LocalPath: localPath,
	})
	if err != nil {
		return reportError(err)
	}

	if reader != nil {
		defer func() { _ = reader.Close() }()
		if _, err := io.Copy(os.Stdout, reader); err != nil {
			return err
		}
		// Metadata goes to stderr so stdout stays the file content.
		if jsonOutput {
			return getFormatter().FormatDownload(os.Stderr, result)
		}
		return nil
	}

	return getFormatter().FormatDownload(os.Stdout, result)
}
