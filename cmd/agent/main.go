package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/config"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/daemon"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/format"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/hec"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/provider"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/udp"
)

func main() {
	var (
		configPath string
		logLevel   string
	)
	flags := pflag.NewFlagSet("agent", pflag.ExitOnError)
	flags.StringVar(&configPath, "config", os.Getenv(config.ConfigPathEnv), "path to the agent YAML config")
	flags.StringVar(&logLevel, "log-level", "info", "level of the agent's own diagnostics (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	setupDiagnostics(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent, err := startAgent(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start agent", "error", err)
		os.Exit(1)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signalChan:
		slog.Info("Received shutdown signal")
	case <-ctx.Done():
	}

	agent.shutdown()
	slog.Info("Shutdown complete")
}

func setupDiagnostics(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

type agent struct {
	forwarder *daemon.Forwarder
	providers []*provider.Provider
	udpSender *udp.Sender
	hecSender *hec.Sender
}

func startAgent(ctx context.Context, cfg *config.Config) (*agent, error) {
	formatter, err := format.New(cfg.Format, format.Config{})
	if err != nil {
		return nil, err
	}

	a := &agent{}
	var factories []logging.LoggerFactory

	if cfg.Enabled(config.TransportUDP) {
		a.udpSender, err = udp.NewSender(cfg.UDPSender())
		if err != nil {
			return nil, err
		}
		p := udp.NewProvider(a.udpSender, formatter)
		a.providers = append(a.providers, p)
		factories = append(factories, p)
	}

	if cfg.Enabled(config.TransportHEC) {
		a.hecSender, err = hec.NewSender(ctx, cfg.HECSender())
		if err != nil {
			a.shutdown()
			return nil, err
		}
		p := hec.NewProvider(a.hecSender, cfg.Threshold, formatter)
		a.providers = append(a.providers, p)
		factories = append(factories, p)
	}

	a.forwarder = daemon.NewForwarder(ctx, daemon.Config{
		LogRootPath:     cfg.Forwarder.LogRootPath,
		ScanInterval:    cfg.Forwarder.ScanInterval,
		Workers:         cfg.Forwarder.Workers,
		FileQueueSize:   cfg.Forwarder.FileQueueSize,
		FileIdleTimeout: cfg.Forwarder.FileIdleTimeout,
		Level:           logging.LevelInformation,
	}, factories...)
	a.forwarder.Start()

	return a, nil
}

// shutdown stops producers first so the final flush sees every line.
func (a *agent) shutdown() {
	if a.forwarder != nil {
		a.forwarder.Stop()
	}
	for _, p := range a.providers {
		p.Dispose()
	}
	if a.hecSender != nil {
		a.hecSender.Close()
	}
	if a.udpSender != nil {
		if err := a.udpSender.Close(); err != nil {
			slog.Warn("Failed to close udp socket", "error", err)
		}
	}
}
