// Package config provides configuration loading and validation for FilePulse.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (FILEPULSE_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with FILEPULSE_ prefix:
//   - server.port → FILEPULSE_SERVER_PORT
//   - service.max_file_size → FILEPULSE_SERVICE_MAX_FILE_SIZE
//   - reaper.time_of_day → FILEPULSE_REAPER_TIME_OF_DAY
//
// # Configuration Structure
//
// The Config struct contains:
//   - Server: listen address, timeouts and proxy trust
//   - Service: size limit ("100MB" style), share lifetime in days, digest and dedup policy
//   - Reaper: daily sweep time or interval, orphan scan settings
//   - Database: type, DSN, and table names
//   - Storage: content store path
//   - CORS: cross-origin resource sharing settings
//   - Log: level and format
//
// # Validation
//
// Configuration is validated using struct tags and, for values the tags
// cannot express (sizes, durations, table names), by parsing them once
// during Load so a bad value fails at startup.
package config
