package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/devbush/vdraft/internal/domain"
)

const defaultGeminiModel = "gemini-2.5-flash"

// geminiBackend calls the Gemini API, rotating through API keys when one
// hits its quota.
type geminiBackend struct {
	keys   []string
	model  string
	logger *slog.Logger

	mu         sync.Mutex
	currentKey int
	clients    map[string]*genai.Client

	generate func(ctx context.Context, key, prompt string) (string, error)
}

func newGeminiBackend(keys []string, model string, logger *slog.Logger) *geminiBackend {
	g := &geminiBackend{
		keys:    keys,
		model:   model,
		logger:  logger,
		clients: make(map[string]*genai.Client),
	}
	g.generate = g.generateContent
	return g
}

func (g *geminiBackend) name() string {
	return "gemini:" + g.model
}

func (g *geminiBackend) complete(ctx context.Context, system, user string) (string, Usage, error) {
	prompt := system + "\n\n" + user

	var lastErr error
	for range len(g.keys) {
		key, idx := g.key()

		text, err := g.generate(ctx, key, prompt)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				return "", Usage{}, domain.Errorf(domain.KindServer, "gemini", "empty response")
			}
			return text, estimatedUsage(prompt, text), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", Usage{}, fmt.Errorf("gemini: %w", ctxErr)
		}

		kind := classifyGeminiError(err)
		if kind != domain.KindRateLimited {
			return "", Usage{}, domain.NewError(kind, "gemini", fmt.Errorf("generate content: %w", err))
		}
		g.logger.Warn("gemini key rate limited, rotating", "key_index", idx+1)
		g.rotate(idx)
		lastErr = err
	}

	return "", Usage{}, domain.NewError(domain.KindRateLimited, "gemini", fmt.Errorf("all API keys exhausted: %w", lastErr))
}

func (g *geminiBackend) key() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[g.currentKey], g.currentKey
}

// rotate advances past idx unless another caller already did.
func (g *geminiBackend) rotate(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentKey == idx {
		g.currentKey = (g.currentKey + 1) % len(g.keys)
	}
}

func (g *geminiBackend) client(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	g.clients[key] = c
	return c, nil
}

func (g *geminiBackend) generateContent(ctx context.Context, key, prompt string) (string, error) {
	client, err := g.client(ctx, key)
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func classifyGeminiError(err error) domain.FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return classifyStatus(apiErr.Code)
	}

	msg := err.Error()
	if code, ok := statusInText(msg); ok {
		return classifyStatus(code)
	}
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return domain.KindRateLimited
	case containsAny(msg, "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED"):
		return domain.KindServer
	case containsAny(msg, "INVALID_ARGUMENT", "PERMISSION_DENIED", "UNAUTHENTICATED", "NOT_FOUND"):
		return domain.KindInvalidRequest
	default:
		return domain.KindNetwork
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
