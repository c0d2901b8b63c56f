// Interviewd is the multi-persona interview daemon.
//
// It drives a candidate through a fixed sequence of AI interviewer
// personas over a REST API, falling back across configured model
// providers and aggregating per-persona feedback into a final
// assessment.
//
// Usage:
//
//	# Start with the default config search path
//	interviewd
//
//	# Explicit config file
//	interviewd -config /etc/interviewd/config.yaml
//
//	# Configuration overrides via environment
//	INTERVIEWD_SERVER_PORT=9180 interviewd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/interviewd/internal/config"
	ivhttp "github.com/fyrsmithlabs/interviewd/internal/http"
	"github.com/fyrsmithlabs/interviewd/internal/interview"
	"github.com/fyrsmithlabs/interviewd/internal/logging"
	"github.com/fyrsmithlabs/interviewd/internal/persona"
	"github.com/fyrsmithlabs/interviewd/internal/provider"
	"github.com/fyrsmithlabs/interviewd/internal/store"
	"github.com/fyrsmithlabs/interviewd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  interviewd           Start the interview daemon\n")
			fmt.Fprintf(os.Stderr, "  interviewd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("interviewd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the full daemon and blocks until ctx is cancelled:
// config, logger, telemetry, provider gateway, persona registry,
// store, session machine and the HTTP server.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting interviewd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Int("providers", len(cfg.Providers)),
		zap.String("store", cfg.Store.Driver),
	)

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	gateway, err := initGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider gateway: %w", err)
	}

	registry, err := initRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize persona registry: %w", err)
	}

	sessions, closeStore, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn(context.Background(), "store close failed", zap.Error(err))
		}
	}()

	var resume interview.ResumeSource = interview.NoResume{}
	if cfg.Resume.Dir != "" {
		resume, err = store.NewFileResume(cfg.Resume.Dir)
		if err != nil {
			return fmt.Errorf("failed to initialize resume source: %w", err)
		}
	}

	rounds := interview.NewRounds(gateway, interview.RoundsConfig{
		QuestionCount:   cfg.Interview.QuestionCount,
		TurnBudget:      cfg.Interview.TurnBudget,
		MaxContextChars: cfg.Interview.MaxContextChars,
		HistoryWindow:   cfg.Interview.HistoryWindow,
	}, logger)

	weights := make(map[persona.Kind]float64, len(cfg.Interview.Weights))
	for k, w := range cfg.Interview.Weights {
		kind, err := persona.ParseKind(k)
		if err != nil {
			return fmt.Errorf("invalid weight key: %w", err)
		}
		weights[kind] = w
	}

	machine := interview.NewMachine(sessions, rounds, registry, interview.NewAggregator(weights), resume, logger)
	service := interview.NewService(machine, registry, gateway)

	server, err := ivhttp.NewServer(service, logger, &ivhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	// First health pass before accepting traffic, so /health reflects
	// reality from the start. A fully-down provider set still serves:
	// the probe loop below re-checks every provider each interval, and
	// an operator can force a pass through POST /health/check.
	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	gateway.HealthCheck(probeCtx)
	probeCancel()

	go probeLoop(ctx, gateway, cfg.Gateway.ProbeInterval.Duration())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// probeLoop re-checks every provider on a fixed interval until ctx is
// cancelled. This is the recovery path for a backend that was marked
// unavailable: the gateway never retries unavailable backends on live
// calls, so only probes bring them back.
func probeLoop(ctx context.Context, gateway *provider.Gateway, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gateway.HealthCheck(ctx)
		}
	}
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		logCfg.Level = level
	}
	return logging.NewLogger(logCfg)
}

func initGateway(cfg *config.Config, logger *logging.Logger) (*provider.Gateway, error) {
	backends := make([]provider.Backend, 0, len(cfg.Providers))
	limits := make(map[string]provider.RateLimit)
	for _, pc := range cfg.Providers {
		b, err := provider.NewBackend(provider.BackendConfig{
			Name:        pc.Name,
			Type:        pc.Type,
			Model:       pc.Model,
			BaseURL:     pc.BaseURL,
			APIKey:      pc.APIKey.Value(),
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
		if pc.RPS > 0 {
			limits[pc.Name] = provider.RateLimit{RPS: pc.RPS, Burst: pc.Burst}
		}
	}

	return provider.NewGateway(backends, provider.GatewayConfig{
		AttemptTimeout: cfg.Gateway.AttemptTimeout.Duration(),
		ProbeTimeout:   cfg.Gateway.ProbeTimeout.Duration(),
		Limits:         limits,
	}, logger)
}

func initRegistry(cfg *config.Config) (*persona.Registry, error) {
	if len(cfg.Interview.PhaseSequence) == 0 {
		reg := persona.NewRegistry()
		if err := reg.Warm(); err != nil {
			return nil, err
		}
		return reg, nil
	}

	sequence := make([]persona.Kind, 0, len(cfg.Interview.PhaseSequence))
	for _, s := range cfg.Interview.PhaseSequence {
		kind, err := persona.ParseKind(s)
		if err != nil {
			return nil, err
		}
		sequence = append(sequence, kind)
	}
	reg, err := persona.NewRegistryWithSequence(sequence)
	if err != nil {
		return nil, err
	}
	if err := reg.Warm(); err != nil {
		return nil, err
	}
	return reg, nil
}
