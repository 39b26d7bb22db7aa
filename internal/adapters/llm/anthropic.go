package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	llmerrors "github.com/aktagon/llmkit/errors"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/devbush/vdraft/internal/domain"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 4000
)

type anthropicBackend struct {
	model    string
	settings types.RequestSettings
	prompt   func(system, user string) (string, error)
}

func newAnthropicBackend(apiKey, model string, maxTokens int, temperature float64) *anthropicBackend {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	a := &anthropicBackend{
		model: model,
		settings: types.RequestSettings{
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
	}
	a.prompt = func(system, user string) (string, error) {
		response, err := anthropic.PromptWithSettings(system, user, "", apiKey, a.settings)
		if err != nil {
			return "", err
		}
		if len(response.Content) == 0 {
			return "", nil
		}
		return response.Content[0].Text, nil
	}
	return a
}

func (a *anthropicBackend) name() string {
	return "anthropic:" + a.model
}

type promptResult struct {
	text string
	err  error
}

// complete runs the blocking SDK call on its own goroutine so ctx can
// still abandon it.
func (a *anthropicBackend) complete(ctx context.Context, system, user string) (string, Usage, error) {
	done := make(chan promptResult, 1)
	go func() {
		text, err := a.prompt(system, user)
		done <- promptResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", Usage{}, fmt.Errorf("anthropic: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", Usage{}, domain.NewError(classifyAnthropicError(res.err), "anthropic", res.err)
		}
		if strings.TrimSpace(res.text) == "" {
			return "", Usage{}, domain.Errorf(domain.KindServer, "anthropic", "no content in response")
		}
		return res.text, estimatedUsage(system+"\n"+user, res.text), nil
	}
}

func classifyAnthropicError(err error) domain.FailureKind {
	var apiErr *llmerrors.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}
	var validationErr *llmerrors.ValidationError
	if errors.As(err, &validationErr) {
		return domain.KindInvalidRequest
	}
	var requestErr *llmerrors.RequestError
	if errors.As(err, &requestErr) {
		return domain.KindNetwork
	}

	msg := err.Error()
	if code, ok := statusInText(msg); ok {
		return classifyStatus(code)
	}
	switch {
	case strings.Contains(msg, `"rate_limit_error"`):
		return domain.KindRateLimited
	case containsAny(msg, `"overloaded_error"`, `"api_error"`):
		return domain.KindServer
	case containsAny(msg, `"invalid_request_error"`, `"authentication_error"`, `"permission_error"`, `"not_found_error"`):
		return domain.KindInvalidRequest
	default:
		return domain.KindNetwork
	}
}
