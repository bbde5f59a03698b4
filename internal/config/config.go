// Package config loads zoo settings from defaults, files, the environment and flags.
//
// Precedence, lowest first: built-in defaults, the config file, the env file,
// ZOO_* environment variables, command-line flags. With nothing set the
// defaults export pretrained deeplabv3_resnet101 to
// deeplabsv3/deeplabv3_resnet101.pth.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/born-ml/zoo/internal/export"
	"github.com/born-ml/zoo/internal/logging"
	"github.com/born-ml/zoo/internal/serialization"
)

// EnvPrefix prefixes every environment variable, e.g. ZOO_OUTPUT_DIR.
const EnvPrefix = "ZOO"

// Keys.
const (
	KeyArch            = "arch"
	KeyOutputDir       = "output_dir"
	KeyOutputFile      = "output_file"
	KeyFormat          = "format"
	KeyPretrained      = "pretrained"
	KeySeed            = "seed"
	KeyCacheDir        = "cache_dir"
	KeyProgress        = "progress"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyRetryMaxElapsed = "retry_max_elapsed"
	KeyConfigFile      = "config_file"
	KeyEnvFile         = "env_file"
)

// Config holds the resolved settings.
type Config struct {
	Arch            string        `mapstructure:"arch"`
	OutputDir       string        `mapstructure:"output_dir"`
	OutputFile      string        `mapstructure:"output_file"`
	Format          string        `mapstructure:"format"`
	Pretrained      bool          `mapstructure:"pretrained"`
	Seed            int64         `mapstructure:"seed"`
	CacheDir        string        `mapstructure:"cache_dir"` // empty selects the hub default
	Progress        bool          `mapstructure:"progress"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(
		`-`, `_`, // convert hyphens to underscores
		`.`, `_`, // convert dots to underscores
	))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyArch, export.DefaultArchitecture)
	v.SetDefault(KeyOutputDir, export.DefaultOutputDir)
	v.SetDefault(KeyOutputFile, export.DefaultOutputFile)
	v.SetDefault(KeyFormat, string(serialization.FormatBorn))
	v.SetDefault(KeyPretrained, true)
	v.SetDefault(KeySeed, 0)
	v.SetDefault(KeyCacheDir, "")
	v.SetDefault(KeyProgress, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logging.FormatDevelopment)
	v.SetDefault(KeyRetryMaxElapsed, 5*time.Minute)
	v.SetDefault(KeyConfigFile, "")
	v.SetDefault(KeyEnvFile, "")
}

// Load reads the env file and config file named in v (if any) and decodes
// the result.
func Load(v *viper.Viper) (*Config, error) {
	if envFile := v.GetString(KeyEnvFile); envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if configFile := v.GetString(KeyConfigFile); configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be checked by type.
func (c *Config) Validate() error {
	if c.Arch == "" {
		return errors.New("config: arch must not be empty")
	}
	if c.OutputDir == "" || c.OutputFile == "" {
		return errors.New("config: output_dir and output_file must not be empty")
	}
	if strings.ContainsRune(c.OutputFile, os.PathSeparator) {
		return fmt.Errorf("config: output_file %q must be a file name, not a path", c.OutputFile)
	}
	if _, err := serialization.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("config: format: %w", err)
	}
	if c.RetryMaxElapsed < 0 {
		return fmt.Errorf("config: retry_max_elapsed must not be negative, got %s", c.RetryMaxElapsed)
	}
	return nil
}

// ExportOptions converts the config into pipeline options.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		Architecture: c.Arch,
		OutputDir:    c.OutputDir,
		OutputFile:   c.OutputFile,
		Format:       serialization.Format(c.Format),
		Pretrained:   c.Pretrained,
		Seed:         c.Seed,
	}
}
