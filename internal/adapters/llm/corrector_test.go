package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	llmerrors "github.com/aktagon/llmkit/errors"
	"google.golang.org/genai"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
)

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.CorrectorConfig
		wantName string
		wantErr  bool
	}{
		{"default is deepseek", config.CorrectorConfig{APIKey: "k"}, "chat:deepseek-chat", false},
		{"openai swaps deepseek defaults", config.CorrectorConfig{Provider: "openai", APIKey: "k", Model: "deepseek-chat", BaseURL: config.DefaultBaseURL}, "chat:" + defaultOpenAIModel, false},
		{"gemini", config.CorrectorConfig{Provider: "gemini", APIKeys: []string{"a", "b"}}, "gemini:" + defaultGeminiModel, false},
		{"anthropic custom model", config.CorrectorConfig{Provider: "Anthropic", APIKey: "k", Model: "claude-x"}, "anthropic:claude-x", false},
		{"missing key", config.CorrectorConfig{Provider: "deepseek"}, "", true},
		{"unknown provider", config.CorrectorConfig{Provider: "mystery", APIKey: "k"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				if domain.KindOf(err) != domain.KindEnvironment {
					t.Errorf("New() error = %v, want environment error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if c.Provider() != tt.wantName {
				t.Errorf("Provider() = %s, want %s", c.Provider(), tt.wantName)
			}
		})
	}
}

func TestNew_OpenAIBaseURL(t *testing.T) {
	c, err := New(config.CorrectorConfig{Provider: "openai", APIKey: "k", BaseURL: config.DefaultBaseURL})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.backend.(*ChatClient).cfg.BaseURL; got != openAIBaseURL {
		t.Errorf("BaseURL = %s", got)
	}
}

func TestAPIKeysDedupes(t *testing.T) {
	keys := apiKeys(config.CorrectorConfig{APIKey: "a", APIKeys: []string{" a ", "b", "", "b"}})
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("apiKeys() = %v", keys)
	}
}

func TestGeminiRotatesKeysOnRateLimit(t *testing.T) {
	g := newGeminiBackend([]string{"k1", "k2", "k3"}, "m", logging.NewNop())
	var used []string
	g.generate = func(ctx context.Context, key, prompt string) (string, error) {
		used = append(used, key)
		if key == "k3" {
			return "ok", nil
		}
		return "", errors.New("Error 429, Message: quota exceeded, Status: RESOURCE_EXHAUSTED")
	}

	text, usage, err := g.complete(context.Background(), "sys", "user")
	if err != nil || text != "ok" {
		t.Fatalf("complete() = %q, %v", text, err)
	}
	if len(used) != 3 || used[2] != "k3" {
		t.Errorf("keys used = %v", used)
	}
	if usage.TotalTokens == 0 {
		t.Error("usage should be estimated")
	}

	// rotation sticks for the next call
	used = nil
	_, _, _ = g.complete(context.Background(), "s", "u")
	if used[0] != "k3" {
		t.Errorf("next call started with %s, want k3", used[0])
	}
}

func TestGeminiAllKeysExhausted(t *testing.T) {
	g := newGeminiBackend([]string{"k1", "k2"}, "m", logging.NewNop())
	calls := 0
	g.generate = func(ctx context.Context, key, prompt string) (string, error) {
		calls++
		return "", errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED")
	}

	_, _, err := g.complete(context.Background(), "s", "u")
	if domain.KindOf(err) != domain.KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", domain.KindOf(err))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want one per key", calls)
	}
}

func TestGeminiNonRateLimitFailsFast(t *testing.T) {
	g := newGeminiBackend([]string{"k1", "k2"}, "m", logging.NewNop())
	calls := 0
	g.generate = func(ctx context.Context, key, prompt string) (string, error) {
		calls++
		return "", errors.New("Error 400, Status: INVALID_ARGUMENT")
	}

	_, _, err := g.complete(context.Background(), "s", "u")
	if domain.KindOf(err) != domain.KindInvalidRequest || calls != 1 {
		t.Errorf("kind = %s after %d calls", domain.KindOf(err), calls)
	}
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		msg  string
		want domain.FailureKind
	}{
		{"Error 503, Status: UNAVAILABLE", domain.KindServer},
		{"Error 403, Status: PERMISSION_DENIED", domain.KindInvalidRequest},
		{"dial tcp: connection refused", domain.KindNetwork},
		{"Error 400, Message: max_output_tokens 5000 exceeds the limit of 429, Status: INVALID_ARGUMENT", domain.KindInvalidRequest},
		{"quota of 500 requests per day reached for this prompt", domain.KindNetwork},
		{"Status: RESOURCE_EXHAUSTED", domain.KindRateLimited},
	}
	for _, tt := range tests {
		if got := classifyGeminiError(errors.New(tt.msg)); got != tt.want {
			t.Errorf("classifyGeminiError(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestClassifyGeminiErrorTyped(t *testing.T) {
	err := fmt.Errorf("generate: %w", genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"})
	if got := classifyGeminiError(err); got != domain.KindRateLimited {
		t.Errorf("classifyGeminiError() = %s, want rate_limited", got)
	}
}

func TestClassifyAnthropicError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.FailureKind
	}{
		{"rate limited", &llmerrors.APIError{Provider: "Anthropic", StatusCode: 429}, domain.KindRateLimited},
		{"overloaded", &llmerrors.APIError{Provider: "Anthropic", StatusCode: 529}, domain.KindServer},
		{"bad request", &llmerrors.APIError{Provider: "Anthropic", StatusCode: 400, Message: "max_tokens: 500 > 429"}, domain.KindInvalidRequest},
		{"wrapped api error", fmt.Errorf("calling Anthropic API: %w", &llmerrors.APIError{Provider: "Anthropic", StatusCode: 503}), domain.KindServer},
		{"missing key", &llmerrors.ValidationError{Field: "apiKey", Message: "API key is required"}, domain.KindInvalidRequest},
		{"transport", &llmerrors.RequestError{Operation: "sending request", Err: errors.New("connection reset")}, domain.KindNetwork},
		{"number in message only", errors.New("max_tokens 4000 exceeds model limit of 500"), domain.KindNetwork},
		{"status in text", errors.New("Anthropic API error (status 429): slow down"), domain.KindRateLimited},
		{"error type in body", errors.New(`{"type":"error","error":{"type":"rate_limit_error"}}`), domain.KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyAnthropicError(tt.err); got != tt.want {
				t.Errorf("classifyAnthropicError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAnthropicBackend(t *testing.T) {
	a := newAnthropicBackend("k", "claude-x", 0, 0.2)
	if a.settings.MaxTokens != defaultAnthropicMaxTokens {
		t.Errorf("MaxTokens = %d", a.settings.MaxTokens)
	}

	a.prompt = func(system, user string) (string, error) {
		return "fixed text", nil
	}
	text, _, err := a.complete(context.Background(), "s", "u")
	if err != nil || text != "fixed text" {
		t.Errorf("complete() = %q, %v", text, err)
	}

	a.prompt = func(system, user string) (string, error) {
		return "", errors.New("API error 529: overloaded_error")
	}
	if _, _, err := a.complete(context.Background(), "s", "u"); domain.KindOf(err) != domain.KindServer {
		t.Errorf("kind = %s, want server", domain.KindOf(err))
	}
}

func TestAnthropicBackendHonorsContext(t *testing.T) {
	a := newAnthropicBackend("k", "claude-x", 100, 0)
	release := make(chan struct{})
	defer close(release)
	a.prompt = func(system, user string) (string, error) {
		<-release
		return "late", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := a.complete(ctx, "s", "u")
	if domain.KindOf(err) != domain.KindTimeout {
		t.Errorf("kind = %s, want timeout", domain.KindOf(err))
	}
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) complete(ctx context.Context, system, user string) (string, Usage, error) {
	return f.reply, Usage{TotalTokens: 7}, f.err
}

func (f fakeCompleter) name() string { return "fake" }

func TestCorrectorWrapsErrorsWithOp(t *testing.T) {
	c := newCorrector(fakeCompleter{err: domain.Errorf(domain.KindRateLimited, "fake", "slow down")}, nil)
	_, err := c.Summarize(context.Background(), "text", "en")
	if domain.KindOf(err) != domain.KindRateLimited {
		t.Errorf("kind = %s", domain.KindOf(err))
	}
	if c.Usage().Requests != 0 {
		t.Error("failed calls should not count usage")
	}
}
