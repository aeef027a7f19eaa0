package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database"
	filepulsehttp "github.com/sagarc03/filepulse/http"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for filepulse.
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Service  ServiceConfig            `mapstructure:"service"`
	Reaper   ReaperConfig             `mapstructure:"reaper"`
	Database DatabaseConfig           `mapstructure:"database"`
	Storage  StorageConfig            `mapstructure:"storage"`
	CORS     filepulsehttp.CORSConfig `mapstructure:"cors"`
	Log      LogConfig                `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout" validate:"min=0"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" validate:"min=1"`
	TrustProxy        bool   `mapstructure:"trust_proxy"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ServiceConfig holds upload and download pipeline configuration.
type ServiceConfig struct {
	MaxFileSize    string `mapstructure:"max_file_size" validate:"required"`
	TTLDays        int    `mapstructure:"ttl_days" validate:"min=1"`
	UploadTimeout  int    `mapstructure:"upload_timeout" validate:"min=0"`
	CleanupTimeout int    `mapstructure:"cleanup_timeout" validate:"min=1"`
	Digest         string `mapstructure:"digest" validate:"required,oneof=sha256 blake3"`
	DedupPolicy    string `mapstructure:"dedup_policy" validate:"required,oneof=mint extend"`
}

// MaxFileSizeBytes parses MaxFileSize.
func (s ServiceConfig) MaxFileSizeBytes() (int64, error) {
	return filepulse.ParseSize(s.MaxFileSize)
}

// Filepulse converts the section into a filepulse.ServiceConfig.
func (s ServiceConfig) Filepulse() (filepulse.ServiceConfig, error) {
	maxFileSize, err := s.MaxFileSizeBytes()
	if err != nil {
		return filepulse.ServiceConfig{}, fmt.Errorf("service.max_file_size: %w", err)
	}
	if maxFileSize <= 0 {
		return filepulse.ServiceConfig{}, errors.New("service.max_file_size: must be positive")
	}

	return filepulse.ServiceConfig{
		MaxFileSize:    maxFileSize,
		TTL:            time.Duration(s.TTLDays) * 24 * time.Hour,
		UploadTimeout:  time.Duration(s.UploadTimeout) * time.Second,
		CleanupTimeout: time.Duration(s.CleanupTimeout) * time.Second,
		DedupPolicy:    filepulse.DedupPolicy(s.DedupPolicy),
	}, nil
}

// ReaperConfig holds lifecycle reaper configuration.
type ReaperConfig struct {
	TimeOfDay   string `mapstructure:"time_of_day" validate:"required,datetime=15:04"`
	Interval    string `mapstructure:"interval"`
	RunOnStart  bool   `mapstructure:"run_on_start"`
	OrphanScan  bool   `mapstructure:"orphan_scan"`
	OrphanGrace string `mapstructure:"orphan_grace" validate:"required"`
}

// Filepulse converts the section into a filepulse.ReaperConfig.
func (r ReaperConfig) Filepulse() (filepulse.ReaperConfig, error) {
	var interval time.Duration
	if r.Interval != "" {
		d, err := time.ParseDuration(r.Interval)
		if err != nil {
			return filepulse.ReaperConfig{}, fmt.Errorf("reaper.interval: %w", err)
		}
		if d <= 0 {
			return filepulse.ReaperConfig{}, errors.New("reaper.interval: must be positive")
		}
		interval = d
	}

	grace, err := time.ParseDuration(r.OrphanGrace)
	if err != nil {
		return filepulse.ReaperConfig{}, fmt.Errorf("reaper.orphan_grace: %w", err)
	}

	return filepulse.ReaperConfig{
		TimeOfDay:   r.TimeOfDay,
		Interval:    interval,
		RunOnStart:  r.RunOnStart,
		OrphanScan:  r.OrphanScan,
		OrphanGrace: grace,
	}, nil
}

// DatabaseConfig holds share registry configuration.
type DatabaseConfig struct {
	Type   string           `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	DSN    string           `mapstructure:"dsn" validate:"required"`
	Tables filepulse.Tables `mapstructure:"tables"`
}

// Connection converts the section into a database.Config.
func (d DatabaseConfig) Connection() database.Config {
	return database.Config{
		Type:   d.Type,
		DSN:    d.DSN,
		Tables: d.Tables,
	}
}

// StorageConfig holds content store configuration.
type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":       "database.type",
	"db-dsn":        "database.dsn",
	"storage-path":  "storage.path",
	"host":          "server.host",
	"port":          "server.port",
	"max-file-size": "service.max_file_size",
	"ttl-days":      "service.ttl_days",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_header_timeout", 10) // seconds
	v.SetDefault("server.shutdown_timeout", 30)    // seconds
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("service.max_file_size", "100MB")
	v.SetDefault("service.ttl_days", 7)
	v.SetDefault("service.upload_timeout", 0)   // seconds, 0 means none
	v.SetDefault("service.cleanup_timeout", 30) // seconds
	v.SetDefault("service.digest", "sha256")
	v.SetDefault("service.dedup_policy", "mint")

	v.SetDefault("reaper.time_of_day", "02:00")
	v.SetDefault("reaper.interval", "")
	v.SetDefault("reaper.run_on_start", true)
	v.SetDefault("reaper.orphan_scan", true)
	v.SetDefault("reaper.orphan_grace", "1h")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "filepulse.db")
	v.SetDefault("database.tables.shares", "filepulse_shares")

	v.SetDefault("storage.path", "./uploads")

	v.SetDefault("cors.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("FILEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// 7. Values the struct tags cannot express
	if err := cfg.Database.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.Service.Filepulse(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.Reaper.Filepulse(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
