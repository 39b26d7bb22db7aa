package ytdlp

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/devbush/vdraft/internal/domain"
)

func TestYtDlpBinaryName(t *testing.T) {
	name := binaryName()

	if runtime.GOOS == "windows" {
		if name != "yt-dlp.exe" {
			t.Errorf("binaryName() = %s, want yt-dlp.exe on Windows", name)
		}
	} else {
		if name != "yt-dlp" {
			t.Errorf("binaryName() = %s, want yt-dlp", name)
		}
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		stderr string
		want   domain.FailureKind
	}{
		{"ERROR: Unsupported URL: https://example.com/", domain.KindNotSupported},
		{"ERROR: [youtube] abc: Private video. Sign in if you've been granted access", domain.KindContent},
		{"ERROR: [youtube] abc: Video unavailable", domain.KindContent},
		{"ERROR: unable to download video data: HTTP Error 404: Not Found", domain.KindContent},
		{"ERROR: Postprocessing: ffprobe and ffmpeg not found. Please install", domain.KindEnvironment},
		{"ERROR: unable to download webpage: HTTP Error 429: Too Many Requests", domain.KindNetwork},
		{"ERROR: unable to download webpage: <urlopen error [Errno -3] Temporary failure>", domain.KindNetwork},
		{"", domain.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			err := classifyFailure(tt.stderr, errors.New("exit status 1"))
			if got := domain.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestClassifyFailure_MissingBinary(t *testing.T) {
	err := classifyFailure("", &exec.Error{Name: "yt-dlp", Err: exec.ErrNotFound})
	if domain.KindOf(err) != domain.KindEnvironment || !errors.Is(err, domain.ErrYtDlpNotFound) {
		t.Errorf("err = %v, want environment/ErrYtDlpNotFound", err)
	}
}

func TestClassifyFailure_RateLimitKeepsSentinel(t *testing.T) {
	err := classifyFailure("HTTP Error 429: Too Many Requests", errors.New("exit status 1"))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want to wrap ErrRateLimited", err)
	}
}

func TestParsePlaylist(t *testing.T) {
	out := strings.Join([]string{
		`{"id": "a", "url": "https://www.youtube.com/watch?v=a", "_type": "url"}`,
		`not json`,
		``,
		`{"id": "b", "webpage_url": "https://www.youtube.com/watch?v=b", "url": "b"}`,
		`{"id": "c", "url": "c"}`,
	}, "\n")

	got := parsePlaylist([]byte(out))
	want := []string{"https://www.youtube.com/watch?v=a", "https://www.youtube.com/watch?v=b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parsePlaylist() = %v, want %v", got, want)
	}
}

func TestLastJSONLine(t *testing.T) {
	out := "[download] 100%\n{\"title\": \"first\"}\n{\"title\": \"second\"}\n"
	if got := string(lastJSONLine([]byte(out))); got != `{"title": "second"}` {
		t.Errorf("lastJSONLine() = %s", got)
	}
	if lastJSONLine([]byte("no json here")) != nil {
		t.Error("lastJSONLine() should be nil without JSON")
	}
}

func TestFetch(t *testing.T) {
	destDir := t.TempDir()
	var gotArgs []string

	d := NewDownloader("/opt/yt-dlp", "/opt/ffmpeg")
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		if err := os.WriteFile(filepath.Join(outputDir(t, args), "audio.wav"), []byte("RIFFdata"), 0644); err != nil {
			t.Fatal(err)
		}
		return []byte(`{"id":"x","title":"Talk","uploader":"Chan","duration":95.5}`), nil, nil
	}

	res, err := d.Fetch(context.Background(), "https://www.youtube.com/watch?v=x", destDir)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.LocalPath != filepath.Join(destDir, "audio.wav") {
		t.Errorf("LocalPath = %s", res.LocalPath)
	}
	if res.Media.Title != "Talk" || res.Media.DurationSeconds != 95.5 || res.Media.FileSizeBytes != 8 {
		t.Errorf("Media = %+v", res.Media)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-x", "--audio-format wav", "--ffmpeg-location /opt/ffmpeg", "--no-playlist"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

// outputDir returns the directory of yt-dlp's -o template.
func outputDir(t *testing.T, args []string) string {
	t.Helper()
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return filepath.Dir(args[i+1])
		}
	}
	t.Fatalf("no -o in args %v", args)
	return ""
}

func TestFetch_EachCallStartsClean(t *testing.T) {
	destDir := t.TempDir()
	for _, stale := range []string{"audio.wav.part", "audio.m4a"} {
		if err := os.WriteFile(filepath.Join(destDir, stale), []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var dirs []string
	d := NewDownloader("/opt/yt-dlp", "")
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		dir := outputDir(t, args)
		dirs = append(dirs, dir)
		if entries, _ := os.ReadDir(dir); len(entries) != 0 {
			t.Errorf("attempt %d saw leftovers in %s: %d entries", len(dirs), dir, len(entries))
		}
		if len(dirs) == 1 {
			os.WriteFile(filepath.Join(dir, "audio.wav.part"), []byte("partial"), 0644)
			return nil, []byte("ERROR: Connection reset by peer"), errors.New("exit status 1")
		}
		os.WriteFile(filepath.Join(dir, "audio.wav"), []byte("RIFFnew"), 0644)
		return []byte(`{"title":"Talk"}`), nil, nil
	}

	if _, err := d.Fetch(context.Background(), "https://example.com/v", destDir); err == nil {
		t.Fatal("first Fetch() should fail")
	}
	res, err := d.Fetch(context.Background(), "https://example.com/v", destDir)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}

	if len(dirs) != 2 || dirs[0] == dirs[1] {
		t.Errorf("attempt dirs = %v, want two distinct dirs", dirs)
	}
	if data, _ := os.ReadFile(res.LocalPath); string(data) != "RIFFnew" {
		t.Errorf("audio = %q, want fresh download", data)
	}
	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "audio.wav" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("destDir holds %v, want only audio.wav", names)
	}
}

func TestFetch_NoAudioProduced(t *testing.T) {
	d := NewDownloader("/opt/yt-dlp", "")
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"title":"x"}`), nil, nil
	}

	_, err := d.Fetch(context.Background(), "https://example.com/v", t.TempDir())
	if domain.KindOf(err) != domain.KindEnvironment {
		t.Errorf("kind = %s, want environment", domain.KindOf(err))
	}
}

func TestFetch_Failure(t *testing.T) {
	d := NewDownloader("/opt/yt-dlp", "")
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Unsupported URL: https://example.com/v"), errors.New("exit status 1")
	}

	_, err := d.Fetch(context.Background(), "https://example.com/v", t.TempDir())
	if domain.KindOf(err) != domain.KindNotSupported {
		t.Errorf("kind = %s, want not_supported", domain.KindOf(err))
	}
}

func TestExpandPlaylist(t *testing.T) {
	var gotArgs []string
	d := NewDownloader("/opt/yt-dlp", "")
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"url":"https://example.com/1"}` + "\n" + `{"url":"https://example.com/2"}`), nil, nil
	}

	got, err := d.ExpandPlaylist(context.Background(), "https://example.com/list", 2)
	if err != nil {
		t.Fatalf("ExpandPlaylist() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "-I 1:2") {
		t.Errorf("args = %v, want item limit", gotArgs)
	}
}

func TestExpandPlaylist_SingleVideoFallsBack(t *testing.T) {
	d := NewDownloader("/opt/yt-dlp", "")
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, nil, nil
	}

	got, err := d.ExpandPlaylist(context.Background(), "https://example.com/v", 0)
	if err != nil || len(got) != 1 || got[0] != "https://example.com/v" {
		t.Errorf("ExpandPlaylist() = %v, %v", got, err)
	}
}

func TestCopyWithProgress(t *testing.T) {
	var sb strings.Builder
	var last int64
	err := copyWithProgress(context.Background(), &sb, strings.NewReader("hello world"), 11, func(d, total int64) {
		last = d
	})
	if err != nil {
		t.Fatalf("copyWithProgress() error = %v", err)
	}
	if sb.String() != "hello world" || last != 11 {
		t.Errorf("copied %q, last progress %d", sb.String(), last)
	}
}
