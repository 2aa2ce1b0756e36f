// Package llmturn provides a conversation provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	p, err := llmturn.New("openai", "gpt-4o-mini", store,
//	    llmturn.WithSystemPrompt("You are a helpful phone agent."),
//	    llmturn.WithBackendOptions(anyllmlib.WithAPIKey("sk-...")))
package llmturn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
)

const (
	defaultSystemPrompt = "You are a helpful voice agent on a phone call. Keep replies short and conversational."
	defaultMaxHistory   = 20
	defaultMaxTokens    = 256
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithSystemPrompt sets the system prompt prepended to every turn request.
func WithSystemPrompt(prompt string) Option {
	return func(p *Provider) {
		if prompt != "" {
			p.systemPrompt = prompt
		}
	}
}

// WithMaxHistory sets how many prior turns are loaded from the store per
// request.
func WithMaxHistory(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxHistory = n
		}
	}
}

// WithMaxTokens caps the reply length in tokens.
func WithMaxTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = &t }
}

// WithBackendOptions passes configuration through to the any-llm-go backend
// (e.g., anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
func WithBackendOptions(opts ...anyllmlib.Option) Option {
	return func(p *Provider) { p.backendOpts = append(p.backendOpts, opts...) }
}

// Provider implements conversation.Provider by wrapping any-llm-go.
type Provider struct {
	backend      anyllmlib.Provider
	store        conversation.Store
	model        string
	systemPrompt string
	maxHistory   int
	maxTokens    int
	temperature  *float64
	backendOpts  []anyllmlib.Option
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// specific model to use (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest").
// store holds the per-call turn history and must be non-nil.
//
// If no API key option is provided via WithBackendOptions, the backend falls
// back to the relevant environment variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, etc.).
func New(providerName, model string, store conversation.Store, opts ...Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("llmturn: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("llmturn: model must not be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("llmturn: store must not be nil")
	}

	p := &Provider{
		store:        store,
		model:        model,
		systemPrompt: defaultSystemPrompt,
		maxHistory:   defaultMaxHistory,
		maxTokens:    defaultMaxTokens,
	}
	for _, o := range opts {
		o(p)
	}

	backend, err := createBackend(providerName, p.backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("llmturn: create %q backend: %w", providerName, err)
	}
	p.backend = backend
	return p, nil
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// GetTurn implements conversation.Provider. It loads the call's recent
// history, generates the reply, and records both sides of the exchange in
// the store. A store write failure is logged but does not fail the turn;
// losing one history entry is preferable to losing the reply.
func (p *Provider) GetTurn(ctx context.Context, callID, customerText string) (string, error) {
	if customerText == "" {
		return "", fmt.Errorf("%w: llmturn: empty customer text", conversation.ErrTurn)
	}

	history, err := p.store.Recent(ctx, callID, p.maxHistory)
	if err != nil {
		slog.Warn("llmturn: loading history failed, generating without context",
			"callID", callID, "error", err)
		history = nil
	}

	params := p.buildParams(history, customerText)
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: llmturn: completion: %v", conversation.ErrTurn, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: llmturn: empty choices in response", conversation.ErrTurn)
	}
	reply := resp.Choices[0].Message.ContentString()
	if reply == "" {
		return "", fmt.Errorf("%w: llmturn: empty reply", conversation.ErrTurn)
	}

	now := time.Now()
	for _, turn := range []conversation.Turn{
		{CallID: callID, Role: conversation.RoleCustomer, Text: customerText, CreatedAt: now},
		{CallID: callID, Role: conversation.RoleAgent, Text: reply, CreatedAt: now},
	} {
		if err := p.store.Append(ctx, turn); err != nil {
			slog.Warn("llmturn: recording turn failed",
				"callID", callID, "role", turn.Role, "error", err)
		}
	}

	return reply, nil
}

// buildParams converts stored history plus the new utterance into any-llm
// CompletionParams.
func (p *Provider) buildParams(history []conversation.Turn, customerText string) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(history)+2)
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleSystem,
		Content: p.systemPrompt,
	})
	for _, turn := range history {
		messages = append(messages, anyllmlib.Message{
			Role:    roleFor(turn.Role),
			Content: turn.Text,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    "user",
		Content: customerText,
	})

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.maxTokens > 0 {
		mt := p.maxTokens
		params.MaxTokens = &mt
	}
	if p.temperature != nil {
		t := *p.temperature
		params.Temperature = &t
	}
	return params
}

// roleFor maps a stored turn role onto the chat role expected by the model.
func roleFor(r conversation.Role) string {
	if r == conversation.RoleAgent {
		return "assistant"
	}
	return "user"
}

var _ conversation.Provider = (*Provider)(nil)
