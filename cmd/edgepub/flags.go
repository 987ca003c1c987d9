package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	Debug           bool
	Input           string
	DrainOnEOF      bool
	ShutdownTimeout time.Duration
	WriteConfig     string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	var configPaths string

	fs.StringVar(&configPaths, "config",
		getEnv("EDGEPUB_CONFIG", ""),
		"Comma separated config layers, later ones win (env: EDGEPUB_CONFIG)")
	fs.StringVar(&configPaths, "c",
		getEnv("EDGEPUB_CONFIG", ""),
		"Comma separated config layers, later ones win (env: EDGEPUB_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error. Overrides the config file")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text. Overrides the config file")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("EDGEPUB_DEBUG", false),
		"Enable debug logging (env: EDGEPUB_DEBUG)")

	fs.StringVar(&cfg.Input, "input",
		getEnv("EDGEPUB_INPUT", "-"),
		"File of \"subject payload\" lines to publish, - for stdin (env: EDGEPUB_INPUT)")

	fs.BoolVar(&cfg.DrainOnEOF, "drain-on-eof",
		getEnvBool("EDGEPUB_DRAIN_ON_EOF", true),
		"Exit once input ends and the buffer is empty (env: EDGEPUB_DRAIN_ON_EOF)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("EDGEPUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: EDGEPUB_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.WriteConfig, "write-config", "",
		"Write the effective configuration to this JSON file and exit")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, p := range strings.Split(configPaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.ConfigPaths = append(cfg.ConfigPaths, p)
		}
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	for _, p := range cfg.ConfigPaths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file not found: %s", p)
		}
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, `%s - buffered edge publisher

Reads "subject payload" lines and publishes them to NATS or MQTT. Messages are
kept in a bounded buffer while the broker is unreachable and delivered in order
once it is back.

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(out, `
Examples:
  # Publish sensor readings over NATS
  sensor-feed | %s --config=configs/edgepub.yaml

  # Layer a site override on top of the base config
  %s --config=configs/edgepub.yaml,configs/site.json

  # Run with environment variables
  export EDGEPUB_CLUSTER_ID=nats://hub-1:4222,nats://hub-2:4222
  export EDGEPUB_CLIENT_ID=edge-42
  %s < readings.txt

  # Validate configuration only
  %s --validate --config=configs/edgepub.yaml

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
