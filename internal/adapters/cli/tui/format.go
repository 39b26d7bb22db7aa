package tui

import (
	"fmt"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

// FormatSize formats a byte count with binary units.
// Examples: 512 -> "512 B", 1536 -> "1.5 KB", 466 MiB -> "466.0 MB"
func FormatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats d compactly: "45s", "2m05s", "1h02m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatETA renders the remaining-time estimate of a snapshot.
func FormatETA(s domain.ProgressSnapshot) string {
	if s.Done() {
		return "done"
	}
	if !s.ETAKnown {
		return "ETA --"
	}
	return "ETA " + FormatDuration(s.EstimatedRemaining)
}

// FormatDate formats a timestamp as "Jan 15 14:05" in local time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "---"
	}
	return t.Local().Format("Jan 2 15:04")
}

// Truncate shortens s to at most max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
