package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

func chatReply(content string, total int) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": total - 10, "completion_tokens": 10, "total_tokens": total},
	}
}

func TestChatClientComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatReply("This is a corrected text.", 150))
	}))
	defer server.Close()

	client := NewChatClient(ChatConfig{APIKey: "test", BaseURL: server.URL, Model: "demo", MaxTokens: 100})
	text, usage, err := client.complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete() error = %v", err)
	}
	if text != "This is a corrected text." {
		t.Errorf("text = %q", text)
	}
	if usage.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", usage.TotalTokens)
	}
	if got.Model != "demo" || got.MaxTokens != 100 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
}

func TestChatClientDefaults(t *testing.T) {
	client := NewChatClient(ChatConfig{APIKey: "k"})
	if client.cfg.BaseURL != "https://api.deepseek.com/v1/chat/completions" {
		t.Errorf("BaseURL = %s", client.cfg.BaseURL)
	}
	if client.cfg.Model != "deepseek-chat" {
		t.Errorf("Model = %s", client.cfg.Model)
	}
}

func TestChatClientStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   domain.FailureKind
	}{
		{http.StatusTooManyRequests, domain.KindRateLimited},
		{http.StatusInternalServerError, domain.KindServer},
		{http.StatusServiceUnavailable, domain.KindServer},
		{http.StatusRequestTimeout, domain.KindServer},
		{http.StatusBadRequest, domain.KindInvalidRequest},
		{http.StatusUnauthorized, domain.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			client := NewChatClient(ChatConfig{APIKey: "k", BaseURL: server.URL})
			_, _, err := client.complete(context.Background(), "s", "u")
			if got := domain.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestChatClientEmptyContentIsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := NewChatClient(ChatConfig{APIKey: "k", BaseURL: server.URL})
	_, _, err := client.complete(context.Background(), "s", "u")
	if domain.KindOf(err) != domain.KindServer {
		t.Errorf("kind = %s, want server", domain.KindOf(err))
	}
}

func TestChatClientNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewChatClient(ChatConfig{APIKey: "k", BaseURL: url})
	_, _, err := client.complete(context.Background(), "s", "u")
	if domain.KindOf(err) != domain.KindNetwork {
		t.Errorf("kind = %s, want network (err: %v)", domain.KindOf(err), err)
	}
}

func TestChatClientClientTimeoutIsNetwork(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewChatClient(ChatConfig{APIKey: "k", BaseURL: server.URL},
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, _, err := client.complete(context.Background(), "s", "u")
	if domain.KindOf(err) != domain.KindNetwork {
		t.Errorf("kind = %s, want network (err: %v)", domain.KindOf(err), err)
	}
}

func TestChatClientContextDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewChatClient(ChatConfig{APIKey: "k", BaseURL: server.URL})
	_, _, err := client.complete(ctx, "s", "u")
	if !errors.Is(err, context.DeadlineExceeded) || domain.KindOf(err) != domain.KindTimeout {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestCorrectorOverChat(t *testing.T) {
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		user := req.Messages[1].Content
		prompts = append(prompts, user)

		reply := "A brief summary."
		if strings.Contains(user, "keywords") {
			reply = "test, system, correction, world"
		} else if strings.HasPrefix(user, "Correct") {
			reply = "Hello, world."
		}
		_ = json.NewEncoder(w).Encode(chatReply(reply, 50))
	}))
	defer server.Close()

	corrector := newCorrector(NewChatClient(ChatConfig{APIKey: "k", BaseURL: server.URL}), nil)
	ctx := context.Background()

	corrected, err := corrector.Correct(ctx, "hello world", "en")
	if err != nil || corrected != "Hello, world." {
		t.Fatalf("Correct() = %q, %v", corrected, err)
	}
	summary, err := corrector.Summarize(ctx, "hello world", "")
	if err != nil || summary != "A brief summary." {
		t.Fatalf("Summarize() = %q, %v", summary, err)
	}
	keywords, err := corrector.ExtractKeywords(ctx, "hello world", "auto")
	if err != nil || len(keywords) != 4 {
		t.Fatalf("ExtractKeywords() = %v, %v", keywords, err)
	}

	usage := corrector.Usage()
	if usage.Requests != 3 || usage.TotalTokens != 150 {
		t.Errorf("Usage() = %+v", usage)
	}
	if !strings.Contains(prompts[0], "English") {
		t.Errorf("correction prompt %q should name English", prompts[0])
	}
}
