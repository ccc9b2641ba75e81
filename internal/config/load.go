package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var defineFlagsOnce sync.Once

// Load reads configuration with the following precedence:
// 1. Command line flags
// 2. Environment variables (AR_*)
// 3. Config file
// 4. Default values
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("active-record")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/active-record/")
		v.AddConfigPath("$HOME/.active-record")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys use dot + snake_case; env vars look like AR_DATABASE_MAX_OPEN_CONNS.
	v.SetEnvPrefix("AR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v)

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := promptPasswordIfNeeded(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 4000)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("metrics.addr", "")
}

func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("config", "", "path to config file")
		pflag.String("dsn", "", "database DSN (overrides discrete database fields)")
		pflag.String("log-level", "", "log level (debug, info, warn, error)")
		pflag.String("log-format", "", "log format (text, json)")
		pflag.String("metrics-addr", "", "address to serve Prometheus metrics on")
		pflag.String("otlp-endpoint", "", "OTLP endpoint for traces and logs")
	})
}

// bindChangedFlagsToViper copies only flags the user actually set, so flag
// defaults never shadow config file or environment values.
func bindChangedFlagsToViper(v *viper.Viper) {
	keyByFlag := map[string]string{
		"dsn":           "database.dsn",
		"log-level":     "logging.level",
		"log-format":    "logging.format",
		"metrics-addr":  "metrics.addr",
		"otlp-endpoint": "telemetry.endpoint",
	}
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if key, ok := keyByFlag[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
		if f.Name == "otlp-endpoint" && f.Value.String() != "" {
			v.Set("telemetry.enabled", true)
		}
	})
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// promptPasswordIfNeeded asks for the database password on the terminal when
// discrete fields are used without one. Non-interactive runs fail later with
// the driver's auth error instead of hanging on a prompt.
func promptPasswordIfNeeded(cfg *Config) error {
	if cfg.Database.DSN != "" || cfg.Database.Password != "" || cfg.Database.User == "" {
		return nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return nil
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", cfg.Database.User)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Database.Password = string(raw)
	return nil
}
