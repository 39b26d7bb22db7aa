package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
)

const (
	defaultChatTimeout = 60 * time.Second
	openAIBaseURL      = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
)

// ChatConfig captures the settings of an OpenAI-compatible chat endpoint.
type ChatConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
}

// ChatClient talks to DeepSeek, OpenAI or any endpoint with the same
// chat completions schema. It makes exactly one request per call.
type ChatClient struct {
	cfg        ChatConfig
	httpClient *http.Client
}

// ChatOption customizes the client.
type ChatOption func(*ChatClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewChatClient constructs a client, defaulting to the DeepSeek endpoint.
func NewChatClient(cfg ChatConfig, opts ...ChatOption) *ChatClient {
	timeout := defaultChatTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = config.DefaultLLM
	}

	client := &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *ChatClient) name() string {
	return "chat:" + c.cfg.Model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, summarizeBody(e.Body))
}

func (c *ChatClient) complete(ctx context.Context, system, user string) (string, Usage, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", Usage{}, domain.NewError(domain.KindInternal, "chat", fmt.Errorf("encode body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", Usage{}, domain.NewError(domain.KindInvalidRequest, "chat", fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, classifyTransportError(ctx, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		return "", Usage{}, domain.NewError(classifyStatus(resp.StatusCode), "chat", statusErr)
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", Usage{}, domain.NewError(domain.KindServer, "chat", fmt.Errorf("decode response: %w (body: %s)", err, summarizeBody(string(body))))
	}
	if completion.Error != nil {
		return "", Usage{}, domain.Errorf(domain.KindServer, "chat", "api error: %s", strings.TrimSpace(completion.Error.Message))
	}

	var content string
	for _, choice := range completion.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			content = text
			break
		}
	}
	if content == "" {
		return "", Usage{}, domain.Errorf(domain.KindServer, "chat", "empty content (body: %s)", summarizeBody(string(body)))
	}

	var usage Usage
	if completion.Usage != nil {
		usage = Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		}
	} else {
		usage = estimatedUsage(system+"\n"+user, content)
	}
	return content, usage, nil
}

func classifyStatus(code int) domain.FailureKind {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		return domain.KindServer
	default:
		return domain.KindInvalidRequest
	}
}

// statusPattern finds an HTTP status only where SDK error text puts one:
// "Error 429,", "(status 529)" or "HTTP 503".
var statusPattern = regexp.MustCompile(`(?i)\b(?:error|status|http)\s*:?\s*(\d{3})\b`)

// statusInText extracts the HTTP status from an SDK error message.
func statusInText(msg string) (int, bool) {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil || code < 400 || code > 599 {
		return 0, false
	}
	return code, true
}

// classifyTransportError treats everything below HTTP as a network failure,
// except errors from ctx which must still resolve to timeout or canceled.
func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("chat: %w", ctxErr)
	}
	return domain.NewError(domain.KindNetwork, "chat", err)
}

func summarizeBody(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
