package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vpsmonitor/vps-agent/internal/agent"
	"github.com/vpsmonitor/vps-agent/internal/config"
	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/logger"
	"github.com/vpsmonitor/vps-agent/internal/metrics"
	"github.com/vpsmonitor/vps-agent/internal/pid"
	"github.com/vpsmonitor/vps-agent/internal/registration"
	"github.com/vpsmonitor/vps-agent/internal/telemetry"
	"github.com/vpsmonitor/vps-agent/internal/transport"
)

// Set with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("vps-agent", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "path to the JSON configuration file (required)")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		flags.PrintDefaults()
		return 1
	}

	if *showVersion {
		fmt.Fprintf(stdout, "vps-agent %s\n", version)
		return 0
	}

	if *configPath == "" {
		fmt.Fprintln(stderr, "error: --config is required")
		flags.PrintDefaults()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	err = logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: logger.IsService(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	logger.Debug().Str("config", *configPath).Msg("Config loaded")
	for _, adj := range cfg.Adjustments {
		logger.Warn().Msg(adj)
	}

	if cfg.PIDFile != "" {
		if err := pid.Write(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Str("pid_file", cfg.PIDFile).Msg("Failed to acquire PID file")
			return 1
		}
		defer func() {
			if err := pid.Remove(cfg.PIDFile); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := telemetry.NewService(telemetry.DefaultConfig(cfg.MetricsAddr))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start telemetry endpoint")
		return 1
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop telemetry endpoint")
		}
	}()

	client := transport.NewClient(cfg.APIURL, version)
	a := agent.New(cfg,
		metrics.NewCollector(cfg.ServerName),
		transport.NewTransmitter(client, cfg.ServerName),
		registration.NewClient(client,
			registration.Identity{
				Name:        cfg.ServerName,
				Location:    cfg.Location,
				Description: cfg.Description,
			},
			registration.WithResolvers(registration.DefaultResolvers(cfg.IPLookupURL)...),
		),
		agent.WithRecorder(svc),
	)

	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Agent exited with error")
		return 1
	}

	logger.Info().Msg("Exiting...")

	return 0
}
