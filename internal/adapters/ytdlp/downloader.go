package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

const audioBaseName = "audio"

// commandRunner runs a binary and returns its stdout and stderr separately.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Downloader implements ports.Downloader and ports.PlaylistExpander using yt-dlp
type Downloader struct {
	binPath    string
	ffmpegPath string
	run        commandRunner
	httpClient *http.Client
}

// NewDownloader creates a new yt-dlp downloader. Empty paths are resolved
// from the bundled bin directory and then PATH.
func NewDownloader(binPath, ffmpegPath string) *Downloader {
	return &Downloader{
		binPath:    binPath,
		ffmpegPath: ffmpegPath,
		run:        execRunner,
		httpClient: http.DefaultClient,
	}
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

func (d *Downloader) findBinary() string {
	// Check bundled location first
	bundled := filepath.Join(config.BinDir(), binaryName())
	if _, err := os.Stat(bundled); err == nil {
		return bundled
	}

	// Check system PATH
	if path, err := exec.LookPath(binaryName()); err == nil {
		return path
	}

	return ""
}

func (d *Downloader) GetBinaryPath() string {
	if d.binPath != "" {
		return d.binPath
	}
	d.binPath = d.findBinary()
	return d.binPath
}

func (d *Downloader) IsAvailable() bool {
	return d.GetBinaryPath() != ""
}

type videoInfo struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Uploader           string  `json:"uploader"`
	Duration           float64 `json:"duration"`
	WebpageURL         string  `json:"webpage_url"`
	URL                string  `json:"url"`
	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`
}

// Fetch downloads the audio track of url into destDir as 16 kHz mono WAV.
func (d *Downloader) Fetch(ctx context.Context, url string, destDir string) (*ports.DownloadResult, error) {
	binPath := d.GetBinaryPath()
	if binPath == "" {
		return nil, domain.NewError(domain.KindEnvironment, "yt-dlp", domain.ErrYtDlpNotFound)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, domain.NewError(domain.KindIO, "yt-dlp", fmt.Errorf("failed to create destination directory: %w", err))
	}

	// Every call downloads into its own scratch dir, so partial files from
	// an earlier failed attempt are never resumed or mistaken for output.
	work, err := os.MkdirTemp(destDir, ".fetch-")
	if err != nil {
		return nil, domain.NewError(domain.KindIO, "yt-dlp", fmt.Errorf("failed to create work directory: %w", err))
	}
	defer os.RemoveAll(work)

	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--print-json",
		"-x",
		"--audio-format", "wav",
		"--postprocessor-args", "ffmpeg:-ar 16000 -ac 1",
		"-o", filepath.Join(work, audioBaseName+".%(ext)s"),
	}
	if d.ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", d.ffmpegPath)
	}
	args = append(args, url)

	stdout, stderr, err := d.run(ctx, binPath, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyFailure(string(stderr), err)
	}

	var info videoInfo
	if err := json.Unmarshal(lastJSONLine(stdout), &info); err != nil {
		info = videoInfo{}
	}

	produced := findAudio(work)
	if produced == "" {
		return nil, domain.Errorf(domain.KindEnvironment, "yt-dlp", "no audio produced for %s (is ffmpeg installed?)", url)
	}

	removeStaleAudio(destDir)
	audioPath := filepath.Join(destDir, filepath.Base(produced))
	if err := os.Rename(produced, audioPath); err != nil {
		return nil, domain.NewError(domain.KindIO, "yt-dlp", fmt.Errorf("failed to move audio: %w", err))
	}

	var size int64
	if fi, err := os.Stat(audioPath); err == nil {
		size = fi.Size()
	}

	return &ports.DownloadResult{
		LocalPath: audioPath,
		Media: &domain.Media{
			URL:             url,
			Title:           info.Title,
			Uploader:        info.Uploader,
			DurationSeconds: info.Duration,
			FileSizeBytes:   size,
			FetchedAt:       time.Now(),
		},
	}, nil
}

// findAudio returns the extracted audio file, preferring WAV.
func findAudio(dir string) string {
	wav := filepath.Join(dir, audioBaseName+".wav")
	if _, err := os.Stat(wav); err == nil {
		return wav
	}
	matches, _ := filepath.Glob(filepath.Join(dir, audioBaseName+".*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") {
			return m
		}
	}
	return ""
}

// removeStaleAudio deletes audio left in dir by an earlier download.
func removeStaleAudio(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, audioBaseName+".*"))
	for _, m := range matches {
		os.Remove(m)
	}
}

func lastJSONLine(out []byte) []byte {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "{") {
			return []byte(line)
		}
	}
	return nil
}

// classifyFailure maps yt-dlp stderr onto a failure kind.
func classifyFailure(stderr string, cause error) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = cause.Error()
	}
	lower := strings.ToLower(msg)

	var execErr *exec.Error
	switch {
	case errors.As(cause, &execErr):
		return domain.NewError(domain.KindEnvironment, "yt-dlp", fmt.Errorf("%w: %v", domain.ErrYtDlpNotFound, cause))
	case strings.Contains(lower, "unsupported url"), strings.Contains(lower, "is not a valid url"):
		return domain.NewError(domain.KindNotSupported, "yt-dlp", fmt.Errorf("%w: %s", domain.ErrUnsupportedURL, msg))
	case strings.Contains(lower, "private video"),
		strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "this video is unavailable"),
		strings.Contains(lower, "members-only"),
		strings.Contains(lower, "has been removed"),
		strings.Contains(lower, "sign in to confirm your age"),
		strings.Contains(lower, "http error 404"):
		return domain.NewError(domain.KindContent, "yt-dlp", fmt.Errorf("%w: %s", domain.ErrMediaNotFound, msg))
	case strings.Contains(lower, "ffmpeg not found"), strings.Contains(lower, "ffprobe and ffmpeg not found"):
		return domain.NewError(domain.KindEnvironment, "yt-dlp", fmt.Errorf("%w: %s", domain.ErrFFmpegNotFound, msg))
	case strings.Contains(lower, "http error 429"), strings.Contains(lower, "too many requests"):
		return domain.NewError(domain.KindNetwork, "yt-dlp", fmt.Errorf("%w: %s", domain.ErrRateLimited, msg))
	default:
		return domain.NewError(domain.KindNetwork, "yt-dlp", fmt.Errorf("%w: %s", domain.ErrNetworkFailure, msg))
	}
}

// ExpandPlaylist lists the entry URLs of a playlist or channel. A plain
// video URL expands to itself.
func (d *Downloader) ExpandPlaylist(ctx context.Context, url string, limit int) ([]string, error) {
	binPath := d.GetBinaryPath()
	if binPath == "" {
		return nil, domain.NewError(domain.KindEnvironment, "yt-dlp", domain.ErrYtDlpNotFound)
	}

	args := []string{
		"--no-warnings",
		"--flat-playlist",
		"--print-json",
	}
	if limit > 0 {
		args = append(args, "-I", fmt.Sprintf("1:%d", limit))
	}
	args = append(args, url)

	stdout, stderr, err := d.run(ctx, binPath, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyFailure(string(stderr), err)
	}

	entries := parsePlaylist(stdout)
	if len(entries) == 0 {
		return []string{url}, nil
	}
	return entries, nil
}

func parsePlaylist(out []byte) []string {
	var urls []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var info videoInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			continue
		}
		switch {
		case info.WebpageURL != "":
			urls = append(urls, info.WebpageURL)
		case strings.HasPrefix(info.URL, "http"):
			urls = append(urls, info.URL)
		}
	}
	return urls
}

func (d *Downloader) Install(ctx context.Context, progress func(downloaded, total int64)) error {
	binDir := config.BinDir()
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return err
	}

	downloadURL := d.getDownloadURL()
	destPath := filepath.Join(binDir, binaryName())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download yt-dlp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download yt-dlp: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	// Track success to clean up partial downloads on failure
	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(destPath)
		}
	}()

	if err := copyWithProgress(ctx, out, resp.Body, resp.ContentLength, progress); err != nil {
		return err
	}

	// Make executable on Unix
	if runtime.GOOS != "windows" {
		if err := os.Chmod(destPath, 0755); err != nil {
			return err
		}
	}

	success = true
	d.binPath = destPath
	return nil
}

// copyWithProgress copies src to dst, reporting after every chunk.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress func(downloaded, total int64)) error {
	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Downloader) getDownloadURL() string {
	base := "https://github.com/yt-dlp/yt-dlp/releases/latest/download/"

	switch runtime.GOOS {
	case "windows":
		return base + "yt-dlp.exe"
	case "darwin":
		return base + "yt-dlp_macos"
	default:
		return base + "yt-dlp"
	}
}

// Update runs yt-dlp's self-updater.
func (d *Downloader) Update(ctx context.Context) error {
	binPath := d.GetBinaryPath()
	if binPath == "" {
		return domain.ErrYtDlpNotFound
	}

	_, stderr, err := d.run(ctx, binPath, "-U")
	if err != nil {
		return fmt.Errorf("yt-dlp update failed: %s: %w", strings.TrimSpace(string(stderr)), err)
	}
	return nil
}

// Version returns the installed yt-dlp version.
func (d *Downloader) Version(ctx context.Context) (string, error) {
	binPath := d.GetBinaryPath()
	if binPath == "" {
		return "", domain.ErrYtDlpNotFound
	}
	stdout, _, err := d.run(ctx, binPath, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

var (
	_ ports.Downloader       = (*Downloader)(nil)
	_ ports.PlaylistExpander = (*Downloader)(nil)
	_ ports.ToolManager      = (*Downloader)(nil)
)
