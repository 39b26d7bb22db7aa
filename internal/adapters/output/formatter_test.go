package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

func sampleDoc() ports.Document {
	return ports.Document{
		Title:   "Test Video Title",
		Content: "This is test content.\n\nSecond paragraph.",
		Metadata: ports.Metadata{
			SourceURL:       "https://example.com/v",
			DurationSeconds: 120.5,
			FileSizeBytes:   1500,
			Language:        "en",
			Model:           "small",
			CreatedAt:       time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		Segments: []domain.Segment{
			{Start: 0, End: 2.5, Text: "Hello world"},
			{Start: 65.5, End: 70, Text: "Second line"},
		},
	}
}

// sampleBase is the file stem Write uses for sampleDoc.
var sampleBase = "test_video_title_" + domain.MediaKey("https://example.com/v")[:8]

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter([]string{"MD", ".txt", "md", " "})
	if err != nil {
		t.Fatalf("NewFormatter() error = %v", err)
	}
	if got := f.Formats(); len(got) != 2 || got[0] != "md" || got[1] != "txt" {
		t.Errorf("Formats() = %v", got)
	}

	if _, err := NewFormatter([]string{"pdf"}); err == nil {
		t.Error("NewFormatter(pdf) should fail")
	}

	f, _ = NewFormatter(nil)
	if got := f.Formats(); len(got) != 1 || got[0] != "md" {
		t.Errorf("default Formats() = %v", got)
	}
}

func TestFormatter_WriteMarkdownAndText(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFormatter([]string{"md", "txt"})

	files, err := f.Write(context.Background(), sampleDoc(), dir)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	// md, txt and the timestamped transcript
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}

	md := readFile(t, filepath.Join(dir, sampleBase+".md"))
	for _, want := range []string{"# Test Video Title", "Duration: 2.0 minutes", "Language: en", "2024-01-01 12:00:00", "This is test content."} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	txt := readFile(t, filepath.Join(dir, sampleBase+".txt"))
	if !strings.Contains(txt, "Second paragraph.") || !strings.Contains(txt, "File size: 1.5 KB") {
		t.Errorf("text output:\n%s", txt)
	}

	ts := readFile(t, filepath.Join(dir, sampleBase+"_timestamps.txt"))
	if !strings.Contains(ts, "[00:00:00] Hello world") || !strings.Contains(ts, "[00:01:05] Second line") {
		t.Errorf("timestamped output:\n%s", ts)
	}
}

func TestFormatter_WriteSubtitles(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFormatter([]string{"srt", "vtt"})

	if _, err := f.Write(context.Background(), sampleDoc(), dir); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	srt := readFile(t, filepath.Join(dir, sampleBase+".srt"))
	if !strings.Contains(srt, "00:01:05,500 --> 00:01:10,000") {
		t.Errorf("srt output:\n%s", srt)
	}
	vtt := readFile(t, filepath.Join(dir, sampleBase+".vtt"))
	if !strings.HasPrefix(vtt, "WEBVTT") || !strings.Contains(vtt, "00:01:05.500") {
		t.Errorf("vtt output:\n%s", vtt)
	}
}

func TestFormatter_WriteDocx(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFormatter([]string{"docx"})

	files, err := f.Write(context.Background(), sampleDoc(), dir)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	path := filepath.Join(dir, sampleBase+".docx")
	if files[0] != path {
		t.Errorf("files[0] = %s, want %s", files[0], path)
	}
	data := readFile(t, path)
	if !strings.HasPrefix(data, "PK") {
		t.Error("docx output should be a zip archive")
	}
}

func TestFormatter_SummaryDocument(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFormatter([]string{"md"})

	doc := sampleDoc()
	doc.Segments = nil
	doc.Summary = "Brief summary"
	doc.Keywords = []string{"test", "video", "summary"}

	files, err := f.Write(context.Background(), doc, dir)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v", files)
	}
	summary := readFile(t, filepath.Join(dir, sampleBase+"_summary.md"))
	for _, want := range []string{"Test Video Title", "Brief summary", "test, video, summary"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestFormatter_EmptyContent(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFormatter([]string{"md", "srt"})

	files, err := f.Write(context.Background(), ports.Document{Metadata: ports.Metadata{SourceURL: "https://example.com/x"}}, dir)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v", files)
	}
	if !strings.HasPrefix(filepath.Base(files[0]), "draft_") {
		t.Errorf("untitled doc should be named from its URL, got %s", files[0])
	}
}

func TestFormatter_SameTitleDistinctURLs(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFormatter([]string{"md"})

	first := sampleDoc()
	first.Title = "Episode 1"
	first.Content = "first draft"
	second := first
	second.Content = "second draft"
	second.Metadata.SourceURL = "https://example.com/other"

	firstFiles, err := f.Write(context.Background(), first, dir)
	if err != nil {
		t.Fatalf("Write(first) error = %v", err)
	}
	secondFiles, err := f.Write(context.Background(), second, dir)
	if err != nil {
		t.Fatalf("Write(second) error = %v", err)
	}

	seen := map[string]bool{}
	for _, p := range firstFiles {
		seen[p] = true
	}
	for _, p := range secondFiles {
		if seen[p] {
			t.Errorf("both videos wrote %s", p)
		}
	}
	if md := readFile(t, firstFiles[0]); !strings.Contains(md, "first draft") {
		t.Errorf("first draft was overwritten:\n%s", md)
	}
	if md := readFile(t, secondFiles[0]); !strings.Contains(md, "second draft") {
		t.Errorf("second draft content:\n%s", md)
	}
}

func TestDraftName(t *testing.T) {
	key := domain.MediaKey("https://example.com/v")[:8]
	tests := []struct {
		name  string
		title string
		url   string
		want  string
	}{
		{"title and url", "My Talk", "https://example.com/v", "my_talk_" + key},
		{"url only", "", "https://example.com/v", "draft_" + key},
		{"title only", "My Talk", "", "my_talk"},
		{"neither", "", "", "untitled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DraftName(tt.title, tt.url); got != tt.want {
				t.Errorf("DraftName(%q, %q) = %q, want %q", tt.title, tt.url, got, tt.want)
			}
		})
	}
}

func TestFormatter_UnwritableDirIsIO(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewFormatter(nil)

	_, err := f.Write(context.Background(), sampleDoc(), filepath.Join(blocker, "sub"))
	if domain.KindOf(err) != domain.KindIO {
		t.Errorf("kind = %s, want io (err: %v)", domain.KindOf(err), err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Test Video Title", "test_video_title"},
		{"Test/Video\\Title:With*Special<Chars>?", "test_video_title_with_special_chars"},
		{"  ...  ", ""},
		{"中文 标题", "中文_标题"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := SanitizeFilename(strings.Repeat("a", 200))
	if len(long) != maxNameRunes {
		t.Errorf("long name length = %d", len(long))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{45, "45.0 seconds"},
		{125, "2.1 minutes"},
		{120.5, "2.0 minutes"},
		{3665, "1.0 hours"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{500, "500 bytes"},
		{1500, "1.5 KB"},
		{1500000, "1.4 MB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestParagraphs(t *testing.T) {
	got := paragraphs("one\ntwo\n\n\nthree  four\r\n\r\nfive")
	want := []string{"one two", "three four", "five"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("paragraphs() = %q", got)
	}
}
