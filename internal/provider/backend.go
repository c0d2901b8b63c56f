package provider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// BackendConfig holds configuration for creating a backend.
type BackendConfig struct {
	// Name is the unique provider label.
	Name string
	// Type is the backend type: "openai", "anthropic" or "ollama".
	Type string
	// Model is the model identifier.
	Model string
	// BaseURL overrides the endpoint (OpenAI-compatible servers, local
	// ollama). Optional for hosted APIs.
	BaseURL string
	// APIKey authenticates against the backend.
	APIKey string
	// MaxTokens bounds the completion length per call.
	MaxTokens int
	// Temperature controls sampling. Zero means backend default.
	Temperature float64
}

// NewBackend creates a backend based on the configuration.
func NewBackend(cfg BackendConfig) (Backend, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("backend name is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("backend %s: model is required", cfg.Name)
	}

	var (
		model llms.Model
		err   error
	)

	switch cfg.Type {
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			// langchaingo requires a token; OpenAI-compatible local
			// servers ignore it.
			apiKey = "placeholder"
		}
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(apiKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithModel(cfg.Model),
		}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		model, err = anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("creating %s backend %s: %w", cfg.Type, cfg.Name, err)
	}

	return &llmBackend{
		name:        cfg.Name,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// llmBackend adapts a langchaingo model to the Backend interface.
type llmBackend struct {
	name        string
	model       llms.Model
	maxTokens   int
	temperature float64
}

func (b *llmBackend) Name() string {
	return b.name
}

func (b *llmBackend) Generate(ctx context.Context, frags []Fragment) (string, error) {
	if len(frags) == 0 {
		return "", ErrEmptyPrompt
	}

	messages := make([]llms.MessageContent, 0, len(frags))
	for _, f := range frags {
		messages = append(messages, llms.TextParts(chatMessageType(f.Role), f.Content))
	}

	opts := []llms.CallOption{}
	if b.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(b.maxTokens))
	}
	if b.temperature > 0 {
		opts = append(opts, llms.WithTemperature(b.temperature))
	}

	resp, err := b.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Content, nil
}

// Probe issues a one-token completion to verify the backend responds.
func (b *llmBackend) Probe(ctx context.Context) error {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, "ping"),
	}
	_, err := b.model.GenerateContent(ctx, messages, llms.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return nil
}

func chatMessageType(r Role) schema.ChatMessageType {
	switch r {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
