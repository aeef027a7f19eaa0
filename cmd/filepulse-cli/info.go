package main

import (
	"os"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <code>",
	Short: "Show a share's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return reportError(err)
	}

	share, err := client.Info(cmd.Context(), args[0])
	if err != nil {
		return reportError(err)
	}

	return getFormatter().FormatInfo(os.Stdout, share)
}
