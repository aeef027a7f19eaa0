package main

import (
	"errors"
	"os"

	"github.com/sagarc03/filepulse/clientcli"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	cfgFile    string
	profile    string
	endpoint   string
	jsonOutput bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:     "filepulse-cli",
	Version: version,
	Short:   "Client for filepulse file sharing",
	Long: `filepulse-cli - share files through a filepulse server

Upload a file to get a short code, hand the code to someone, and they can
download the file until the share expires.

The server is chosen from, in increasing precedence:
  - the default profile in ~/.filepulse/config.yaml
  - --profile or FILEPULSE_PROFILE
  - FILEPULSE_ENDPOINT
  - --endpoint`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.filepulse/config.yaml, env: FILEPULSE_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "profile name (env: FILEPULSE_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "server URL (default: http://localhost:8000, env: FILEPULSE_ENDPOINT)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getConfigPath resolves the profile file location.
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := clientcli.ConfigPathFromEnv(); p != "" {
		return p
	}
	return clientcli.DefaultConfigPath()
}

// buildConfig merges config from the profile file, env vars, and flags
// (flags take precedence).
func buildConfig() (*clientcli.Config, error) {
	var configs []*clientcli.Config

	profileName := profile
	if profileName == "" {
		profileName = clientcli.ProfileFromEnv()
	}

	configPath := getConfigPath()
	if configPath != "" {
		fileCfg, err := clientcli.LoadConfigFile(configPath)
		if err != nil {
			// A missing default file is fine unless a profile was requested.
			if cfgFile != "" || profileName != "" || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		} else {
			p, profileErr := fileCfg.GetProfile(profileName)
			switch {
			case profileErr == nil:
				configs = append(configs, clientcli.ConfigFromProfile(p))
			case profileName != "":
				return nil, profileErr
			}
		}
	}

	configs = append(configs, clientcli.ConfigFromEnv(), &clientcli.Config{Endpoint: endpoint})

	return clientcli.MergeConfig(configs...), nil
}

// getFormatter returns the appropriate formatter based on flags.
func getFormatter() clientcli.Formatter {
	return clientcli.NewFormatter(jsonOutput, quiet)
}

// getClient creates and returns a configured client. Transfers are not
// bounded by the default request timeout.
func getClient() (*clientcli.Client, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}

	return clientcli.New(cfg, clientcli.WithTimeout(0))
}

// reportError prints err through the formatter and returns it so cobra
// exits non-zero.
func reportError(err error) error {
	_ = getFormatter().FormatError(os.Stderr, err)
	return err
}
