// Package output renders transcripts into draft documents on disk.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

const (
	FormatMarkdown = "md"
	FormatText     = "txt"
	FormatDocx     = "docx"
	FormatSRT      = "srt"
	FormatVTT      = "vtt"

	maxNameRunes = 80
	timeLayout   = "2006-01-02 15:04:05"
)

var knownFormats = map[string]bool{
	FormatMarkdown: true,
	FormatText:     true,
	FormatDocx:     true,
	FormatSRT:      true,
	FormatVTT:      true,
}

// Formatter implements ports.Formatter for md, txt, docx, srt and vtt.
type Formatter struct {
	formats []string
}

// NewFormatter creates a formatter writing each of formats. Unknown formats
// are rejected; an empty list means markdown only.
func NewFormatter(formats []string) (*Formatter, error) {
	seen := map[string]bool{}
	var normalized []string
	for _, f := range formats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if f == "" || seen[f] {
			continue
		}
		if !knownFormats[f] {
			return nil, fmt.Errorf("unknown output format: %s", f)
		}
		seen[f] = true
		normalized = append(normalized, f)
	}
	if len(normalized) == 0 {
		normalized = []string{FormatMarkdown}
	}
	return &Formatter{formats: normalized}, nil
}

// Formats returns the formats this formatter writes, in order.
func (f *Formatter) Formats() []string {
	return append([]string(nil), f.formats...)
}

// Write renders doc into destDir. Besides one file per format it writes a
// summary document when a summary or keywords exist, and a timestamped
// transcript when segments exist.
func (f *Formatter) Write(ctx context.Context, doc ports.Document, destDir string) ([]string, error) {
	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, domain.NewError(domain.KindIO, "format", fmt.Errorf("create output directory: %w", err))
	}

	base := baseName(doc)
	var files []string
	for _, format := range f.formats {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		path := filepath.Join(destDir, base+"."+format)
		if err := f.writeFormat(format, doc, path); err != nil {
			return files, domain.NewError(domain.KindIO, "format", fmt.Errorf("write %s: %w", path, err))
		}
		files = append(files, path)
	}

	if doc.Summary != "" || len(doc.Keywords) > 0 {
		path := filepath.Join(destDir, base+"_summary.md")
		if err := os.WriteFile(path, []byte(renderSummary(doc)), 0644); err != nil {
			return files, domain.NewError(domain.KindIO, "format", fmt.Errorf("write %s: %w", path, err))
		}
		files = append(files, path)
	}

	if len(doc.Segments) > 0 {
		path := filepath.Join(destDir, base+"_timestamps.txt")
		if err := os.WriteFile(path, []byte(renderTimestamped(doc)), 0644); err != nil {
			return files, domain.NewError(domain.KindIO, "format", fmt.Errorf("write %s: %w", path, err))
		}
		files = append(files, path)
	}

	return files, nil
}

func (f *Formatter) writeFormat(format string, doc ports.Document, path string) error {
	switch format {
	case FormatMarkdown:
		return os.WriteFile(path, []byte(renderMarkdown(doc)), 0644)
	case FormatText:
		return os.WriteFile(path, []byte(renderText(doc)), 0644)
	case FormatSRT:
		t := &domain.Transcript{Segments: doc.Segments}
		return os.WriteFile(path, []byte(t.ToSRT()), 0644)
	case FormatVTT:
		t := &domain.Transcript{Segments: doc.Segments}
		return os.WriteFile(path, []byte(t.ToVTT()), 0644)
	case FormatDocx:
		return writeDocx(doc, path)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)
	spaceRuns   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeFilename lower-cases name and strips characters that are not
// allowed in file names on common filesystems.
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(strings.ToLower(name), " ")
	name = spaceRuns.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._-")
	if runes := []rune(name); len(runes) > maxNameRunes {
		name = strings.TrimRight(string(runes[:maxNameRunes]), "._-")
	}
	return name
}

func baseName(doc ports.Document) string {
	return DraftName(doc.Title, doc.Metadata.SourceURL)
}

// DraftName is the file name stem for a video's drafts: the sanitized title
// followed by a short key of the source URL, so distinct videos sharing a
// title never write the same files.
func DraftName(title, sourceURL string) string {
	name := SanitizeFilename(title)
	if sourceURL == "" {
		if name == "" {
			return "untitled"
		}
		return name
	}
	key := domain.MediaKey(sourceURL)[:8]
	if name == "" {
		return "draft_" + key
	}
	return name + "_" + key
}

func titleOf(doc ports.Document) string {
	if t := strings.TrimSpace(doc.Title); t != "" {
		return t
	}
	return "Untitled"
}

// FormatDuration renders seconds as "45.0 seconds", "2.1 minutes" or "1.0 hours".
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}

// FormatFileSize renders a byte count as bytes, KB or MB.
func FormatFileSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d bytes", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}

// metadataLines lists the populated metadata fields as "Key: value".
func metadataLines(m ports.Metadata) []string {
	var lines []string
	if m.SourceURL != "" {
		lines = append(lines, "Source: "+m.SourceURL)
	}
	if m.DurationSeconds > 0 {
		lines = append(lines, "Duration: "+FormatDuration(m.DurationSeconds))
	}
	if m.FileSizeBytes > 0 {
		lines = append(lines, "File size: "+FormatFileSize(m.FileSizeBytes))
	}
	if m.Language != "" {
		lines = append(lines, "Language: "+m.Language)
	}
	if m.Model != "" {
		lines = append(lines, "Model: "+m.Model)
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	lines = append(lines, "Created: "+created.Format(timeLayout))
	return lines
}

func renderMarkdown(doc ports.Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", titleOf(doc))
	for _, line := range metadataLines(doc.Metadata) {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	sb.WriteString("\n---\n\n")
	sb.WriteString(strings.TrimSpace(doc.Content))
	sb.WriteString("\n")
	return sb.String()
}

func renderText(doc ports.Document) string {
	title := titleOf(doc)
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", len([]rune(title))))
	sb.WriteString("\n\n")
	for _, line := range metadataLines(doc.Metadata) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(doc.Content))
	sb.WriteString("\n")
	return sb.String()
}

func renderSummary(doc ports.Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: Summary\n\n", titleOf(doc))
	for _, line := range metadataLines(doc.Metadata) {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	if doc.Summary != "" {
		fmt.Fprintf(&sb, "\n## Summary\n\n%s\n", strings.TrimSpace(doc.Summary))
	}
	if len(doc.Keywords) > 0 {
		fmt.Fprintf(&sb, "\n## Keywords\n\n%s\n", strings.Join(doc.Keywords, ", "))
	}
	return sb.String()
}

func renderTimestamped(doc ports.Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", titleOf(doc))
	for _, seg := range doc.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		ts := domain.FormatSRTTime(seg.Start)
		fmt.Fprintf(&sb, "[%s] %s\n", ts[:8], text)
	}
	return sb.String()
}

var _ ports.Formatter = (*Formatter)(nil)
