package engine

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// reviewTemperature is fixed for all review calls. Categorical output
// (severity, category) drifts badly at higher temperatures, so this is a
// build-time constant, not configuration.
const reviewTemperature = 0.1

// Model is the LLM surface the engine needs. Satisfied by langchainModel in
// production and by fakes in tests.
type Model interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// ModelOptions selects and configures the LLM provider.
type ModelOptions struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

type langchainModel struct {
	llm       llms.Model
	model     string
	maxTokens int
}

// NewModel builds a langchaingo-backed model for the configured provider.
func NewModel(ctx context.Context, opts ModelOptions) (Model, error) {
	var (
		llm llms.Model
		err error
	)

	switch opts.Provider {
	case "openai":
		oaOpts := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(opts.Model),
		}
		if opts.BaseURL != "" {
			oaOpts = append(oaOpts, openai.WithBaseURL(opts.BaseURL))
		}
		llm, err = openai.New(oaOpts...)
	case "gemini":
		llm, err = googleai.New(ctx, googleai.WithAPIKey(opts.APIKey))
	case "claude":
		llm, err = anthropic.New(
			anthropic.WithToken(opts.APIKey),
			anthropic.WithModel(opts.Model),
		)
	case "ollama":
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		llm, err = ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(opts.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", opts.Provider, err)
	}

	return &langchainModel{llm: llm, model: opts.Model, maxTokens: opts.MaxTokens}, nil
}

func (m *langchainModel) Call(ctx context.Context, prompt string) (string, error) {
	callOpts := []llms.CallOption{
		llms.WithTemperature(reviewTemperature),
		llms.WithModel(m.model),
	}
	if m.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(m.maxTokens))
	}

	return llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, callOpts...)
}
