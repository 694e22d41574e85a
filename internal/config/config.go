package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	// FileName is the default config file looked up in the working directory.
	FileName  = "tmpsweep.yml"
	EnvPrefix = "TMPSWEEP"
)

var (
	ErrInvalidWindow = errors.New("window_days must not be negative")
	ErrInvalid       = errors.New("invalid configuration")
)

// Config represents the tmpsweep.yml structure.
type Config struct {
	Root        string         `mapstructure:"root" yaml:"root"`
	WindowDays  int            `mapstructure:"window_days" yaml:"window_days"`
	Concurrency int            `mapstructure:"concurrency" yaml:"concurrency"`
	Timezone    string         `mapstructure:"timezone" yaml:"timezone"`
	Exclude     []string       `mapstructure:"exclude" yaml:"exclude"`
	IgnoreFile  string         `mapstructure:"ignore_file" yaml:"ignore_file"`
	Storage     StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Schedule    ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	History     HistoryConfig  `mapstructure:"history" yaml:"history"`
	Server      ServerConfig   `mapstructure:"server" yaml:"server"`
}

type StorageConfig struct {
	Driver string      `mapstructure:"driver" yaml:"driver"`
	Local  LocalConfig `mapstructure:"local" yaml:"local"`
	S3     S3Config    `mapstructure:"s3" yaml:"s3"`
}

type LocalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccountID       string `mapstructure:"account_id" yaml:"account_id,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

type ScheduleConfig struct {
	// At is the local wall-clock time of the daily run, "HH:MM".
	At         string `mapstructure:"at" yaml:"at"`
	RunOnStart bool   `mapstructure:"run_on_start" yaml:"run_on_start"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Path       string `mapstructure:"path" yaml:"path,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

type MetricsConfig struct {
	// Textfile is written after every CLI run for the node_exporter
	// textfile collector.
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"`
}

type HistoryConfig struct {
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url,omitempty"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", "tmp")
	v.SetDefault("window_days", 1)
	v.SetDefault("concurrency", 1)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("exclude", []string{})
	v.SetDefault("ignore_file", ".sweepignore")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.path", "./storage")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.account_id", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("schedule.at", "03:00")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.console", true)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("history.database_url", "")
	v.SetDefault("server.addr", ":9102")
	v.SetDefault("server.auth_token", "")
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the config file at path, or tmpsweep.yml in the working
// directory when path is empty, and applies TMPSWEEP_* environment
// overrides. A missing default file is not an error; a missing explicit
// file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.auth_token", EnvPrefix+"_SERVER_AUTH_TOKEN", EnvPrefix+"_AUTH_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the sweeper must not start with.
func (c *Config) Validate() error {
	if c.WindowDays < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, c.WindowDays)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalid, c.Concurrency)
	}
	if strings.TrimSpace(c.Root) == "" || strings.Trim(c.Root, "/") == "" {
		return fmt.Errorf("%w: root must name a directory below the store root", ErrInvalid)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.Schedule.Clock(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "local":
		if strings.TrimSpace(c.Storage.Local.Path) == "" {
			return fmt.Errorf("%w: storage.local.path is empty", ErrInvalid)
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("%w: storage.s3.bucket is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}

	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	return loc, nil
}

// Clock parses At into hour and minute.
func (s ScheduleConfig) Clock() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.At))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: schedule.at %q must be HH:MM", ErrInvalid, s.At)
	}
	return t.Hour(), t.Minute(), nil
}
