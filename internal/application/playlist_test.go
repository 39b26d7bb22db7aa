package application

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type mockExpander struct {
	entries map[string][]string
	err     error
	limits  []int
}

func (m *mockExpander) ExpandPlaylist(ctx context.Context, url string, limit int) ([]string, error) {
	m.limits = append(m.limits, limit)
	if m.err != nil {
		return nil, m.err
	}
	return m.entries[url], nil
}

func TestPlaylistService_Expand(t *testing.T) {
	expander := &mockExpander{entries: map[string][]string{
		"https://example.com/list": {"https://example.com/a", "https://example.com/b"},
		"https://example.com/dup":  {"https://example.com/b", "https://example.com/c"},
	}}
	svc := NewPlaylistService(expander)

	got, err := svc.Expand(context.Background(), []string{
		"https://example.com/list",
		"https://example.com/single",
		"https://example.com/dup",
	}, 10)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/single",
		"https://example.com/c",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
	for _, l := range expander.limits {
		if l != 10 {
			t.Errorf("limit passed = %d, want 10", l)
		}
	}
}

func TestPlaylistService_Expand_Error(t *testing.T) {
	boom := errors.New("yt-dlp exploded")
	svc := NewPlaylistService(&mockExpander{err: boom})

	_, err := svc.Expand(context.Background(), []string{"https://example.com/list"}, 0)
	if !errors.Is(err, boom) {
		t.Errorf("Expand() error = %v, want %v", err, boom)
	}
}
