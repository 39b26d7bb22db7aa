package ffmpeg

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/devbush/vdraft/internal/domain"
)

func buildTarXz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(xw)
	if err := tw.WriteHeader(&tar.Header{Name: "ffmpeg-7.0-static/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatal(err)
	}
	for name, body := range files {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestInstaller(binDir, goos, url string) *Installer {
	i := NewInstaller(binDir, "")
	i.goos = goos
	return i.WithSourceURL(url)
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstaller_InstallTarXz(t *testing.T) {
	archive := buildTarXz(t, map[string]string{
		"ffmpeg-7.0-static/ffmpeg":  "ffmpeg-binary",
		"ffmpeg-7.0-static/ffprobe": "ffprobe-binary",
		"ffmpeg-7.0-static/readme":  "docs",
	})
	srv := serve(t, archive)
	binDir := filepath.Join(t.TempDir(), "bin")
	inst := newTestInstaller(binDir, "linux", srv.URL+"/ffmpeg-release-amd64-static.tar.xz")

	var lastDownloaded int64
	err := inst.Install(context.Background(), func(downloaded, total int64) {
		lastDownloaded = downloaded
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if lastDownloaded != int64(len(archive)) {
		t.Errorf("progress downloaded = %d, want %d", lastDownloaded, len(archive))
	}

	data, err := os.ReadFile(filepath.Join(binDir, "ffmpeg"))
	if err != nil || string(data) != "ffmpeg-binary" {
		t.Fatalf("ffmpeg = %q, %v", data, err)
	}
	info, _ := os.Stat(filepath.Join(binDir, "ffmpeg"))
	if info.Mode().Perm()&0100 == 0 {
		t.Errorf("ffmpeg mode = %v, want executable", info.Mode())
	}
	if _, err := os.Stat(filepath.Join(binDir, "ffprobe")); err != nil {
		t.Errorf("ffprobe missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(binDir, "readme")); !os.IsNotExist(err) {
		t.Error("unwanted entries should not be extracted")
	}
	if got := inst.GetBinaryPath(); got != filepath.Join(binDir, "ffmpeg") {
		t.Errorf("GetBinaryPath() = %s", got)
	}

	leftovers, _ := filepath.Glob(filepath.Join(binDir, "ffmpeg-download-*"))
	if len(leftovers) != 0 {
		t.Errorf("download archive left behind: %v", leftovers)
	}
}

func TestInstaller_InstallZipWindowsNames(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"ffmpeg-release/bin/ffmpeg.exe": "win-ffmpeg",
	})
	srv := serve(t, archive)
	binDir := t.TempDir()
	inst := newTestInstaller(binDir, "windows", srv.URL+"/ffmpeg.zip")

	if err := inst.Install(context.Background(), nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(binDir, "ffmpeg.exe"))
	if err != nil || string(data) != "win-ffmpeg" {
		t.Errorf("ffmpeg.exe = %q, %v", data, err)
	}
}

func TestInstaller_ArchiveWithoutFFmpeg(t *testing.T) {
	srv := serve(t, buildZip(t, map[string]string{"other/tool": "x"}))
	inst := newTestInstaller(t.TempDir(), "darwin", srv.URL+"/getrelease/zip")

	err := inst.Install(context.Background(), nil)
	if !errors.Is(err, domain.ErrFFmpegNotFound) {
		t.Errorf("Install() error = %v, want ErrFFmpegNotFound", err)
	}
}

func TestInstaller_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	inst := newTestInstaller(t.TempDir(), "linux", srv.URL+"/x.tar.xz")

	if err := inst.Install(context.Background(), nil); err == nil {
		t.Error("Install() should fail on HTTP 404")
	}
}

func TestInstaller_CorruptSevenZip(t *testing.T) {
	srv := serve(t, []byte("not a 7z archive"))
	inst := newTestInstaller(t.TempDir(), "windows", srv.URL+"/ffmpeg.7z")

	if err := inst.Install(context.Background(), nil); err == nil {
		t.Error("Install() should fail on a corrupt 7z archive")
	}
}

func TestInstaller_DownloadURL(t *testing.T) {
	tests := []struct {
		goos, goarch string
		wantKind     archiveType
		wantErr      bool
	}{
		{"linux", "amd64", kindTarXz, false},
		{"linux", "arm64", kindTarXz, false},
		{"windows", "amd64", kind7z, false},
		{"darwin", "arm64", kindZip, false},
		{"plan9", "386", 0, true},
	}
	for _, tt := range tests {
		inst := NewInstaller(t.TempDir(), "")
		inst.goos, inst.goarch = tt.goos, tt.goarch
		url, err := inst.DownloadURL()
		if tt.wantErr {
			if domain.KindOf(err) != domain.KindEnvironment {
				t.Errorf("%s/%s: error = %v, want environment", tt.goos, tt.goarch, err)
			}
			continue
		}
		if err != nil || archiveKind(url) != tt.wantKind {
			t.Errorf("%s/%s: url = %s, kind = %v, err = %v", tt.goos, tt.goarch, url, archiveKind(url), err)
		}
	}
}

func TestInstaller_PinnedPath(t *testing.T) {
	inst := NewInstaller(t.TempDir(), "/opt/ffmpeg/bin/ffmpeg")
	if !inst.IsAvailable() || inst.GetBinaryPath() != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("GetBinaryPath() = %s", inst.GetBinaryPath())
	}
}

func TestEntryName(t *testing.T) {
	for in, want := range map[string]string{
		"a/b/ffmpeg":         "ffmpeg",
		`bin\ffmpeg.exe`:     "ffmpeg.exe",
		"ffprobe":            "ffprobe",
		"dir/nested/ffprobe": "ffprobe",
	} {
		if got := entryName(in); got != want {
			t.Errorf("entryName(%q) = %q, want %q", in, got, want)
		}
	}
}
