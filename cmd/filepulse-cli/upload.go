package main

import (
	"errors"
	"os"

	"github.com/sagarc03/filepulse/clientcli"
	"github.com/spf13/cobra"
)

var (
	uploadRecursive bool
	uploadName      string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Share files and print their codes",
	Long: `Upload one or more files. Each file becomes its own share with its
own code and expiry.

Examples:
  filepulse-cli upload ./report.pdf
  filepulse-cli upload --name q3.pdf ./report.pdf
  filepulse-cli upload -r ./photos/
  filepulse-cli upload -q ./a.txt ./b.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVarP(&uploadRecursive, "recursive", "r", false, "upload directory contents recursively")
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "display name (single file only)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadName != "" && (len(args) > 1 || uploadRecursive) {
		return errors.New("--name needs exactly one file and no --recursive")
	}

	client, err := getClient()
	if err != nil {
		return reportError(err)
	}

	var results []clientcli.UploadResult
	for _, path := range args {
		batch, uploadErr := client.Upload(cmd.Context(), clientcli.UploadOptions{
			LocalPath: path,
			Name:      uploadName,
			Recursive: uploadRecursive,
		})
		if uploadErr != nil {
			batch = append(batch, clientcli.UploadResult{LocalPath: path, Err: uploadErr})
		}
		results = append(results, batch...)
	}

	if err := getFormatter().FormatUpload(os.Stdout, results); err != nil {
		return err
	}

	for i := range results {
		if results[i].Err != nil {
			return results[i].Err
		}
	}

	return nil
}
