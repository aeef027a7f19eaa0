// Package clientcli provides a client library for sharing files through a
// filepulse server.
//
// It wraps the upload, download, and info endpoints and includes
// profile-based configuration for switching between servers.
//
// # Basic Usage
//
// Create a client and share a file:
//
//	client, err := clientcli.New(&clientcli.Config{Endpoint: "http://localhost:8000"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	results, err := client.Upload(ctx, clientcli.UploadOptions{
//		LocalPath: "./report.pdf",
//	})
//	fmt.Println(results[0].Code)
//
// Fetch it back by code:
//
//	result, _, err := client.Download(ctx, clientcli.DownloadOptions{Code: "aB3dE9xY"})
//
// Unknown and expired codes both surface as ErrNotFound:
//
//	if errors.Is(err, clientcli.ErrNotFound) { ... }
//
// # Profile Configuration
//
// Profiles live in ~/.filepulse/config.yaml:
//
//	configFile, err := clientcli.LoadConfigFile(clientcli.DefaultConfigPath())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	profile, err := configFile.GetProfile("production")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := clientcli.New(clientcli.ConfigFromProfile(profile))
//
// # Output Formatting
//
// Use formatters for human-readable or JSON output:
//
//	formatter := clientcli.NewFormatter(jsonOutput, quiet)
//	formatter.FormatUpload(os.Stdout, results)
package clientcli
