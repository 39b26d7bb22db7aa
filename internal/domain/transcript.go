package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Segment represents a timed segment of transcribed text
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript represents the full transcription result
type Transcript struct {
	Text          string    `json:"text"`
	Segments      []Segment `json:"segments"`
	Model         string    `json:"model"`
	Language      string    `json:"language"`
	TranscribedAt time.Time `json:"transcribed_at"`
}

// ToText returns plain text concatenation of all segments
func (t *Transcript) ToText() string {
	if t == nil {
		return ""
	}
	if t.Text != "" {
		return t.Text
	}

	var parts []string
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// IsEmpty reports whether the transcript carries no spoken text.
func (t *Transcript) IsEmpty() bool {
	return strings.TrimSpace(t.ToText()) == ""
}

// ToSRT returns the transcript in SRT subtitle format
func (t *Transcript) ToSRT() string {
	if t == nil {
		return ""
	}
	var sb strings.Builder

	for i, seg := range t.Segments {
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", FormatSRTTime(seg.Start), FormatSRTTime(seg.End))
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// ToVTT returns the transcript in WebVTT format
func (t *Transcript) ToVTT() string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	if t == nil {
		return sb.String()
	}

	for _, seg := range t.Segments {
		fmt.Fprintf(&sb, "%s --> %s\n", FormatVTTTime(seg.Start), FormatVTTTime(seg.End))
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// FormatSRTTime converts seconds to SRT timestamp format (HH:MM:SS,mmm)
func FormatSRTTime(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTTTime converts seconds to WebVTT timestamp format (HH:MM:SS.mmm)
func FormatVTTTime(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(seconds float64) (h, m, s, ms int64) {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms = total % 1000
	s = (total / 1000) % 60
	m = (total / 60000) % 60
	h = total / 3600000
	return h, m, s, ms
}
