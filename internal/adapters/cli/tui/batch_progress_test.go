package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/devbush/vdraft/internal/domain"
)

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		current, total int
		width          int
		want           string
	}{
		{0, 10, 10, "[          ]"},
		{5, 10, 10, "[=====>    ]"},
		{10, 10, 10, "[==========]"},
		{3, 10, 10, "[==>       ]"},
		{1, 0, 4, "[    ]"},
	}

	for _, tt := range tests {
		got := renderProgressBar(tt.current, tt.total, tt.width)
		if got != tt.want {
			t.Errorf("renderProgressBar(%d, %d, %d) = %q, want %q",
				tt.current, tt.total, tt.width, got, tt.want)
		}
	}
}

func itemEvent(url string, status domain.EventStatus, msg string) domain.ProgressEvent {
	return domain.ProgressEvent{
		Item:    domain.WorkItem{URL: url},
		Stage:   domain.StageItem,
		Status:  status,
		Message: msg,
	}
}

func TestBatchProgress_Update(t *testing.T) {
	var out bytes.Buffer
	bp := NewBatchProgress(&out, false)

	bp.Update(domain.ProgressSnapshot{Total: 2, InFlight: 1}, itemEvent("https://a", domain.StatusStarted, ""))
	bp.Update(domain.ProgressSnapshot{Total: 2, Completed: 1, Succeeded: 1}, domain.ProgressEvent{
		Item:     domain.WorkItem{URL: "https://a"},
		Stage:    domain.StageItem,
		Status:   domain.StatusFinished,
		Duration: 90,
	})
	// stage events only move the progress line
	bp.Update(domain.ProgressSnapshot{Total: 2, Completed: 1, Succeeded: 1}, domain.ProgressEvent{Stage: domain.StageDownload, Status: domain.StatusStarted})
	bp.Update(domain.ProgressSnapshot{Total: 2, Completed: 2, Succeeded: 1, Failed: 1}, itemEvent("https://b", domain.StatusFailed, "unsupported URL"))

	text := out.String()
	for _, want := range []string{
		"Batch 0/2",
		"[1/2] ✓ https://a (1.5 min of media)",
		"Batch 1/2",
		"[2/2] ✗ https://b: unsupported URL",
		"Batch 2/2 [====================] 100% done",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if n := strings.Count(text, "Batch 1/2"); n != 1 {
		t.Errorf("progress line at 50%% printed %d times, want 1", n)
	}
}

func TestBatchProgress_Quiet(t *testing.T) {
	var out bytes.Buffer
	bp := NewBatchProgress(&out, true)
	bp.Update(domain.ProgressSnapshot{Total: 1, Completed: 1}, itemEvent("https://a", domain.StatusFinished, ""))
	if out.Len() != 0 {
		t.Errorf("quiet display wrote %q", out.String())
	}
}
