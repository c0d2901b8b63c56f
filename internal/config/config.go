// Package config provides configuration loading for interviewd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the interviewd daemon.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   LoggingConfig    `koanf:"logging"`
	Telemetry TelemetryConfig  `koanf:"telemetry"`
	Providers []ProviderConfig `koanf:"providers"`
	Gateway   GatewayConfig    `koanf:"gateway"`
	Interview InterviewConfig  `koanf:"interview"`
	Store     StoreConfig      `koanf:"store"`
	Resume    ResumeConfig     `koanf:"resume"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OTLP trace export settings.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Insecure       bool    `koanf:"insecure"`
	SampleRate     float64 `koanf:"sample_rate"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
}

// ProviderConfig describes one language-model backend. Providers are
// attempted in the order they appear in the config file; the first entry
// is the highest-priority backend.
type ProviderConfig struct {
	// Name is a unique label used in logs, metrics and health records.
	Name string `koanf:"name"`
	// Type is the backend type: "openai", "anthropic" or "ollama".
	Type string `koanf:"type"`
	// Model is the model identifier passed to the backend.
	Model string `koanf:"model"`
	// BaseURL overrides the backend endpoint (OpenAI-compatible servers,
	// local ollama, etc.). Optional for hosted APIs.
	BaseURL string `koanf:"base_url"`
	// APIKey authenticates against the backend. Optional for local servers.
	APIKey Secret `koanf:"api_key"`
	// MaxTokens bounds the completion length per call.
	MaxTokens int `koanf:"max_tokens"`
	// Temperature controls sampling. Zero means backend default.
	Temperature float64 `koanf:"temperature"`
	// RPS rate-limits calls to this backend. Zero disables limiting.
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// GatewayConfig tunes provider fallback behavior.
type GatewayConfig struct {
	// AttemptTimeout bounds a single generation attempt against one provider.
	AttemptTimeout Duration `koanf:"attempt_timeout"`
	// ProbeTimeout bounds a single health-check probe.
	ProbeTimeout Duration `koanf:"probe_timeout"`
	// ProbeInterval is how often the background health loop re-probes
	// every provider. Unavailable providers come back through this loop.
	ProbeInterval Duration `koanf:"probe_interval"`
}

// InterviewConfig tunes the interview flow.
type InterviewConfig struct {
	// PhaseSequence overrides the default persona order. Entries must be
	// valid persona kinds with no duplicates. Empty means the default.
	PhaseSequence []string `koanf:"phase_sequence"`
	// TurnBudget is interviewer turns per persona before the phase ends.
	TurnBudget int `koanf:"turn_budget"`
	// QuestionCount is how many candidate opening questions to request.
	QuestionCount int `koanf:"question_count"`
	// MaxContextChars bounds the prompt context window.
	MaxContextChars int `koanf:"max_context_chars"`
	// HistoryWindow is how many recent messages enter the context window.
	HistoryWindow int `koanf:"history_window"`
	// Weights overrides per-persona sub-score weights in the final
	// assessment. Missing kinds default to 1.0.
	Weights map[string]float64 `koanf:"weights"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `koanf:"driver"`
	// DSN is the sqlite database path. Ignored for the memory driver.
	DSN string `koanf:"dsn"`
}

// ResumeConfig locates pre-extracted resume text.
type ResumeConfig struct {
	// Dir holds one <session-id>.txt file per session. Empty disables
	// resume injection.
	Dir string `koanf:"dir"`
}

// knownProviderTypes are valid ProviderConfig.Type values.
var knownProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
}

// knownPersonaKinds mirrors the fixed persona set. Kept here so config
// validation does not depend on domain packages.
var knownPersonaKinds = map[string]bool{
	"technical":  true,
	"behavioral": true,
	"hr":         true,
	"product":    true,
	"final":      true,
}

// Validate checks the configuration. Any error here is fatal at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if !knownProviderTypes[p.Type] {
			return fmt.Errorf("providers[%d]: unknown type %q", i, p.Type)
		}
		if p.Model == "" {
			return fmt.Errorf("providers[%d]: model is required", i)
		}
		if p.RPS < 0 {
			return fmt.Errorf("providers[%d]: rps cannot be negative", i)
		}
	}

	if c.Gateway.AttemptTimeout.Duration() <= 0 {
		return fmt.Errorf("gateway.attempt_timeout must be positive")
	}
	if c.Gateway.ProbeInterval.Duration() <= 0 {
		return fmt.Errorf("gateway.probe_interval must be positive")
	}

	phaseSeen := make(map[string]bool, len(c.Interview.PhaseSequence))
	for _, k := range c.Interview.PhaseSequence {
		if !knownPersonaKinds[k] {
			return fmt.Errorf("interview.phase_sequence: unknown persona kind %q", k)
		}
		if phaseSeen[k] {
			return fmt.Errorf("interview.phase_sequence: duplicate persona kind %q", k)
		}
		phaseSeen[k] = true
	}
	if c.Interview.TurnBudget < 1 {
		return fmt.Errorf("interview.turn_budget must be at least 1")
	}
	if c.Interview.QuestionCount < 1 || c.Interview.QuestionCount > 5 {
		return fmt.Errorf("interview.question_count must be 1-5, got %d", c.Interview.QuestionCount)
	}
	if c.Interview.MaxContextChars < 1 {
		return fmt.Errorf("interview.max_context_chars must be positive")
	}
	for k, w := range c.Interview.Weights {
		if !knownPersonaKinds[k] {
			return fmt.Errorf("interview.weights: unknown persona kind %q", k)
		}
		if w < 0 {
			return fmt.Errorf("interview.weights[%s]: weight cannot be negative", k)
		}
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", c.Store.Driver)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "interviewd"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Gateway.AttemptTimeout == 0 {
		cfg.Gateway.AttemptTimeout = Duration(30 * time.Second)
	}
	if cfg.Gateway.ProbeTimeout == 0 {
		cfg.Gateway.ProbeTimeout = Duration(5 * time.Second)
	}
	if cfg.Gateway.ProbeInterval == 0 {
		cfg.Gateway.ProbeInterval = Duration(time.Minute)
	}

	if cfg.Interview.TurnBudget == 0 {
		cfg.Interview.TurnBudget = 2
	}
	if cfg.Interview.QuestionCount == 0 {
		cfg.Interview.QuestionCount = 3
	}
	if cfg.Interview.MaxContextChars == 0 {
		cfg.Interview.MaxContextChars = 12000
	}
	if cfg.Interview.HistoryWindow == 0 {
		cfg.Interview.HistoryWindow = 20
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}

	for i := range cfg.Providers {
		if cfg.Providers[i].MaxTokens == 0 {
			cfg.Providers[i].MaxTokens = 1024
		}
		if cfg.Providers[i].Burst == 0 {
			cfg.Providers[i].Burst = 1
		}
	}
}
