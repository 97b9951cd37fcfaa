package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluentfiles/fsengine/fsops"
)

// Config is the merged result of defaults, config file, FSENGINE_* env
// vars and flags, in increasing priority.
type Config struct {
	Listen       string            `mapstructure:"listen" yaml:"listen"`
	Workers      int               `mapstructure:"workers" yaml:"workers"`
	Retry        fsops.RetryPolicy `mapstructure:"retry" yaml:"retry"`
	Log          LogConfig         `mapstructure:"log" yaml:"log"`
	SizeCacheTTL time.Duration     `mapstructure:"size_cache_ttl" yaml:"size_cache_ttl"`
	ShowHidden   bool              `mapstructure:"show_hidden" yaml:"show_hidden"`
	Output       string            `mapstructure:"output" yaml:"output"`
}

// LogConfig selects log files and verbosity.
type LogConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

func setDefaults(v *viper.Viper) {
	retry := fsops.DefaultRetryPolicy()
	v.SetDefault("listen", "127.0.0.1:7340")
	v.SetDefault("workers", 4)
	v.SetDefault("retry.attempts", retry.MaxAttempts)
	v.SetDefault("retry.delay", retry.Delay)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.debug", false)
	v.SetDefault("size_cache_ttl", 30*time.Second)
	v.SetDefault("show_hidden", false)
	v.SetDefault("output", "json")
}

// bindFlags registers the persistent flags and binds them to their keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("config", "", "config file (yaml)")
	flags.String("listen", "", "address for serve")
	flags.Int("workers", 0, "concurrent slow operations")
	flags.Int("retry-attempts", 0, "tries per file copy or rename")
	flags.Duration("retry-delay", 0, "pause between tries")
	flags.String("log-dir", "", "directory for rotating log files")
	flags.Bool("debug", false, "debug logging")
	flags.Duration("size-cache-ttl", 0, "how long directory sizes are reused")
	flags.Bool("hidden", false, "include hidden entries")
	flags.StringP("output", "o", "", "output format: json or yaml")

	for key, name := range map[string]string{
		"listen":         "listen",
		"workers":        "workers",
		"retry.attempts": "retry-attempts",
		"retry.delay":    "retry-delay",
		"log.dir":        "log-dir",
		"log.debug":      "debug",
		"size_cache_ttl": "size-cache-ttl",
		"show_hidden":    "hidden",
		"output":         "output",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the optional config file and unmarshals everything.
func loadConfig(v *viper.Viper, file string) (Config, error) {
	v.SetEnvPrefix("FSENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return Config{}, err
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Output != "json" && cfg.Output != "yaml" {
		return Config{}, fmt.Errorf("unknown output format %q", cfg.Output)
	}
	if cfg.Log.Dir != "" {
		dir, err := homedir.Expand(cfg.Log.Dir)
		if err != nil {
			return Config{}, err
		}
		cfg.Log.Dir = dir
	}
	return cfg, nil
}

func (c Config) engineOptions() fsops.Options {
	return fsops.Options{
		Workers:      c.Workers,
		Retry:        c.Retry,
		SizeCacheTTL: c.SizeCacheTTL,
	}
}
