// Package llm implements transcript correction, summaries and keyword
// extraction on top of hosted language models.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
	"github.com/devbush/vdraft/internal/ports"
)

// Usage counts tokens spent against a provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Requests         int
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	u.Requests++
}

// completer sends one system/user prompt pair and returns the reply text.
// Errors must carry a domain.FailureKind.
type completer interface {
	complete(ctx context.Context, system, user string) (string, Usage, error)
	name() string
}

// Corrector implements ports.Corrector over a single provider.
type Corrector struct {
	backend completer
	logger  *slog.Logger

	mu    sync.Mutex
	usage Usage
}

// Option customizes a Corrector built by New.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	chatOptions []ChatOption
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithChatOptions forwards options to the OpenAI-compatible client.
func WithChatOptions(opts ...ChatOption) Option {
	return func(o *options) {
		o.chatOptions = append(o.chatOptions, opts...)
	}
}

// New builds a Corrector for the configured provider.
func New(cfg config.CorrectorConfig, opts ...Option) (*Corrector, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger).With(logging.FieldComponent, "llm")

	keys := apiKeys(cfg)
	if len(keys) == 0 {
		return nil, domain.Errorf(domain.KindEnvironment, "llm", "no API key configured for provider %q", providerOrDefault(cfg.Provider))
	}

	var backend completer
	switch providerOrDefault(cfg.Provider) {
	case config.ProviderDeepSeek, config.ProviderOpenAI:
		baseURL, model := cfg.BaseURL, cfg.Model
		if providerOrDefault(cfg.Provider) == config.ProviderOpenAI {
			if baseURL == "" || baseURL == config.DefaultBaseURL {
				baseURL = openAIBaseURL
			}
			model = modelOr(cfg, defaultOpenAIModel)
		}
		backend = NewChatClient(ChatConfig{
			APIKey:         keys[0],
			BaseURL:        baseURL,
			Model:          model,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, o.chatOptions...)
	case config.ProviderGemini:
		backend = newGeminiBackend(keys, modelOr(cfg, defaultGeminiModel), logger)
	case config.ProviderAnthropic:
		backend = newAnthropicBackend(keys[0], modelOr(cfg, defaultAnthropicModel), cfg.MaxTokens, cfg.Temperature)
	default:
		return nil, domain.Errorf(domain.KindEnvironment, "llm", "unknown provider %q", cfg.Provider)
	}

	return newCorrector(backend, logger), nil
}

func newCorrector(backend completer, logger *slog.Logger) *Corrector {
	return &Corrector{backend: backend, logger: logging.OrNop(logger)}
}

func providerOrDefault(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return config.ProviderDeepSeek
	}
	return p
}

// modelOr ignores the DeepSeek default model for providers that cannot serve it.
func modelOr(cfg config.CorrectorConfig, fallback string) string {
	m := strings.TrimSpace(cfg.Model)
	if m == "" || m == config.DefaultLLM {
		return fallback
	}
	return m
}

func apiKeys(cfg config.CorrectorConfig) []string {
	var keys []string
	seen := map[string]struct{}{}
	for _, k := range append([]string{cfg.APIKey}, cfg.APIKeys...) {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Provider names the backend in use.
func (c *Corrector) Provider() string {
	return c.backend.name()
}

// Usage returns the tokens spent so far.
func (c *Corrector) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *Corrector) call(ctx context.Context, op, system, user string) (string, error) {
	text, usage, err := c.backend.complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	c.usage.add(usage)
	c.mu.Unlock()

	logging.FromContext(ctx, c.logger).Debug("model call complete",
		"op", op,
		"provider", c.backend.name(),
		"total_tokens", usage.TotalTokens,
	)
	return strings.TrimSpace(text), nil
}

func resolveLanguage(text, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" || strings.EqualFold(hint, "auto") {
		return DetectLanguage(text)
	}
	return hint
}

// Correct returns text with recognition errors and punctuation fixed.
func (c *Corrector) Correct(ctx context.Context, text, languageHint string) (string, error) {
	system, user := correctionPrompt(text, resolveLanguage(text, languageHint))
	return c.call(ctx, "correct", system, user)
}

// Summarize returns a short summary of text.
func (c *Corrector) Summarize(ctx context.Context, text, languageHint string) (string, error) {
	system, user := summaryPrompt(text, resolveLanguage(text, languageHint))
	return c.call(ctx, "summarize", system, user)
}

// ExtractKeywords returns the distinct keywords of text.
func (c *Corrector) ExtractKeywords(ctx context.Context, text, languageHint string) ([]string, error) {
	system, user := keywordsPrompt(text, resolveLanguage(text, languageHint))
	reply, err := c.call(ctx, "keywords", system, user)
	if err != nil {
		return nil, err
	}
	return ParseKeywords(reply), nil
}

// estimatedUsage is used for providers whose replies carry no token counts.
func estimatedUsage(prompt, reply string) Usage {
	p, r := EstimateTokens(prompt), EstimateTokens(reply)
	return Usage{PromptTokens: p, CompletionTokens: r, TotalTokens: p + r}
}

var _ ports.Corrector = (*Corrector)(nil)
