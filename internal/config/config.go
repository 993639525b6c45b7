// Package config loads contentctl settings from flags, environment,
// config files and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/contentctl/pkg/upload"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CONTENTCTL"

// Output formats.
const (
	OutputText  = "text"
	OutputJSONL = "jsonl"
)

// Config is the resolved configuration for one invocation.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Lookup  LookupConfig  `mapstructure:"lookup"`
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
}

// ServerConfig identifies and authenticates against the API server.
type ServerConfig struct {
	URL                string        `mapstructure:"url"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	CAFile             string        `mapstructure:"ca_file"`
}

// UploadConfig tunes the chunked upload path.
type UploadConfig struct {
	ChunkSize int     `mapstructure:"chunk_size"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// LookupConfig controls retries of repository lookups.
type LookupConfig struct {
	Attempts uint          `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment binding
// applied. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults installs the built-in defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "")
	v.SetDefault("server.username", "")
	v.SetDefault("server.password", "")
	v.SetDefault("server.timeout", "5m")
	v.SetDefault("server.insecure_skip_verify", false)
	v.SetDefault("server.ca_file", "")

	v.SetDefault("upload.chunk_size", upload.DefaultChunkSize)
	v.SetDefault("upload.rate_limit", 0)

	v.SetDefault("lookup.attempts", 3)
	v.SetDefault("lookup.delay", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("output.format", OutputText)
}

// ReadFile reads the config file into v. An explicit path must exist;
// without one the default locations are tried and a missing file is
// not an error.
func ReadFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	for _, path := range DefaultPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// DefaultPaths lists the config file locations in lookup order.
func DefaultPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "contentctl", "config.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "contentctl", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".contentctl.yaml"))
	}
	return paths
}

// Load decodes v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.URL) == "" {
		errs = append(errs, errors.New("server.url is required (--server, CONTENTCTL_SERVER_URL or config file)"))
	}
	if err := upload.ValidateChunkSize(int64(c.Upload.ChunkSize)); err != nil {
		errs = append(errs, fmt.Errorf("upload.chunk_size: %w", err))
	}
	if c.Upload.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("upload.rate_limit must not be negative: %v", c.Upload.RateLimit))
	}
	switch c.Output.Format {
	case OutputText, OutputJSONL:
	default:
		errs = append(errs, fmt.Errorf("output.format must be %q or %q: %q", OutputText, OutputJSONL, c.Output.Format))
	}
	return errors.Join(errs...)
}
