// Package main implements edgepub, a command that publishes line-oriented input
// to NATS or MQTT through a buffered, self-healing publisher.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/c360/edgepub/config"
	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/health"
	"github.com/c360/edgepub/metric"
	"github.com/c360/edgepub/mqttclient"
	"github.com/c360/edgepub/natsclient"
	"github.com/c360/edgepub/publisher"
	"github.com/c360/edgepub/session"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "edgepub"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "transport", cfg.Client.Transport, "client_id", cfg.Client.ClientID)
		return nil
	}
	if cliCfg.WriteConfig != "" {
		if err := cfg.SaveToFile(cliCfg.WriteConfig); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		logger.Info("Configuration written", "path", cliCfg.WriteConfig)
		return nil
	}

	logger.Info("Starting edgepub",
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths,
		"transport", cfg.Client.Transport)
	logger.Debug("Effective configuration", "config", cfg.String())

	input, closeInput, err := openInput(cliCfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, cliCfg, input, logger)
}

// loadConfig layers the config files given on the command line over the defaults.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cliCfg.ConfigPaths {
		loader.AddLayer(path)
	}
	// flags win over files and environment, so validate after applying them
	loader.EnableValidation(false)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// newDialer builds the transport named in the config. Broker TLS falls back to
// the process-wide client TLS settings.
func newDialer(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (session.Dialer, error) {
	switch cfg.Client.Transport {
	case config.TransportNATS:
		natsCfg := cfg.NATS
		if !natsCfg.TLS.Enabled && cfg.Security.TLS.Client.Enabled {
			natsCfg.TLS = cfg.Security.TLS.Client
		}
		opts := []natsclient.Option{natsclient.WithLogger(logger)}
		if registry != nil {
			opts = append(opts, natsclient.WithMetrics(registry))
		}
		return natsclient.NewDialer(natsCfg, opts...)

	case config.TransportMQTT:
		mqttCfg := cfg.MQTT
		if !mqttCfg.TLS.Enabled && cfg.Security.TLS.Client.Enabled {
			mqttCfg.TLS = cfg.Security.TLS.Client
		}
		return mqttclient.NewDialer(mqttCfg, mqttclient.WithLogger(logger))

	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown transport %q", errors.ErrInvalidConfig, cfg.Client.Transport),
			"main", "newDialer", "select transport")
	}
}

// serve runs the publisher until the input is drained or ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, cliCfg *CLIConfig, input io.Reader, logger *slog.Logger) error {
	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
	}

	dialer, err := newDialer(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("create dialer: %w", err)
	}

	pubOpts := []publisher.Option{
		publisher.WithLogger(logger),
		publisher.WithName(cfg.Client.ClientID),
	}
	if registry != nil {
		pubOpts = append(pubOpts, publisher.WithMetrics(registry))
	}
	client, err := publisher.New(dialer, cfg.Publisher, pubOpts...)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	var metricsServer *metric.Server
	if registry != nil {
		metricsServer = startMetricsServer(cfg, registry, client, logger)
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, connectWait(cfg))
	err = client.Connect(connectCtx, cfg.Client.ClusterID, cfg.Client.ClientID, cfg.Session.Options())
	connectCancel()
	if err != nil {
		// Connect kept the parameters, so the reconnect loop can take over while
		// input keeps being buffered.
		logger.Warn("Initial connect failed, retrying in background", "error", err)
		go func() {
			if err := client.Reconnect(context.Background()); err != nil {
				logger.Debug("Background reconnect ended", "error", err)
			}
		}()
	}

	inputDone := make(chan error, 1)
	go func() {
		n, err := pump(ctx, input, client.Publish, logger)
		logger.Info("Input finished", "accepted", n)
		inputDone <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-inputDone:
		if runErr == nil && cliCfg.DrainOnEOF {
			logger.Info("Waiting for buffered messages", "buffered", client.Count())
			if err := waitEmpty(ctx, client.Count, 100*time.Millisecond); err != nil {
				logger.Warn("Stopped before buffer drained", "buffered", client.Count())
			}
		} else if runErr == nil {
			<-ctx.Done()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer shutdownCancel()

	err = multierr.Append(runErr, client.Teardown(shutdownCtx))
	if metricsServer != nil {
		err = multierr.Append(err, metricsServer.Stop())
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	st := client.Status()
	logger.Info("edgepub shutdown complete", "delivered", st.Delivered, "dropped", st.Dropped)
	return nil
}

// connectWait bounds the initial Connect. Waiting for the first connect covers
// every address in the group, so allow a timeout per address.
func connectWait(cfg *config.Config) time.Duration {
	wait := cfg.Session.ConnectTimeout
	if wait <= 0 {
		wait = session.DefaultConnectTimeout
	}
	return 2 * wait
}

func startMetricsServer(cfg *config.Config, registry *metric.MetricsRegistry, client *publisher.Client, logger *slog.Logger) *metric.Server {
	monitor := health.NewMonitor()
	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, cfg.Security)
	monitor.Track("publisher", client.Health)
	server.SetHealthFunc(func() health.Status {
		return monitor.AggregateHealth(appName)
	})

	go func() {
		logger.Info("Metrics server listening", "address", server.Address())
		if err := server.Start(); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return server
}
