// Package ffmpeg locates ffmpeg and installs static builds into the
// application bin directory.
package ffmpeg

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

// Installer implements ports.ToolManager for ffmpeg.
type Installer struct {
	binDir     string
	pinned     string
	goos       string
	goarch     string
	sourceURL  string
	httpClient *http.Client
}

// NewInstaller creates an installer. pinned, when set, is used as the
// ffmpeg path without searching.
func NewInstaller(binDir, pinned string) *Installer {
	if binDir == "" {
		binDir = config.BinDir()
	}
	return &Installer{
		binDir:     binDir,
		pinned:     pinned,
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
		httpClient: http.DefaultClient,
	}
}

// WithSourceURL overrides the archive download location.
func (i *Installer) WithSourceURL(u string) *Installer {
	i.sourceURL = u
	return i
}

func (i *Installer) exe(name string) string {
	if i.goos == "windows" {
		return name + ".exe"
	}
	return name
}

// GetBinaryPath returns the pinned, bundled or PATH ffmpeg, or "".
func (i *Installer) GetBinaryPath() string {
	if i.pinned != "" {
		return i.pinned
	}
	bundled := filepath.Join(i.binDir, i.exe("ffmpeg"))
	if _, err := os.Stat(bundled); err == nil {
		return bundled
	}
	if p, err := exec.LookPath(i.exe("ffmpeg")); err == nil {
		return p
	}
	return ""
}

func (i *Installer) IsAvailable() bool {
	return i.GetBinaryPath() != ""
}

// DownloadURL returns the static build archive for the current platform.
func (i *Installer) DownloadURL() (string, error) {
	if i.sourceURL != "" {
		return i.sourceURL, nil
	}
	switch i.goos + "/" + i.goarch {
	case "linux/amd64":
		return "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-amd64-static.tar.xz", nil
	case "linux/arm64":
		return "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-arm64-static.tar.xz", nil
	case "windows/amd64":
		return "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.7z", nil
	case "darwin/amd64", "darwin/arm64":
		return "https://evermeet.cx/ffmpeg/getrelease/zip", nil
	}
	return "", domain.Errorf(domain.KindEnvironment, "ffmpeg", "no static build for %s/%s: %s", i.goos, i.goarch, i.Instructions())
}

// Instructions explains how to install ffmpeg with the system package manager.
func (i *Installer) Instructions() string {
	switch i.goos {
	case "darwin":
		return "install ffmpeg with: brew install ffmpeg"
	case "linux":
		return "install ffmpeg with your package manager, e.g. sudo apt install ffmpeg"
	case "windows":
		return "install ffmpeg with: winget install ffmpeg"
	}
	return "install ffmpeg and make sure it is on PATH"
}

// Install downloads the platform archive and extracts ffmpeg and ffprobe
// into the bin directory.
func (i *Installer) Install(ctx context.Context, progress func(downloaded, total int64)) error {
	url, err := i.DownloadURL()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(i.binDir, 0755); err != nil {
		return err
	}

	archive, err := os.CreateTemp(i.binDir, "ffmpeg-download-*")
	if err != nil {
		return err
	}
	archivePath := archive.Name()
	defer os.Remove(archivePath)

	if err := i.download(ctx, url, archive, progress); err != nil {
		archive.Close()
		return err
	}
	if err := archive.Close(); err != nil {
		return err
	}

	wanted := map[string]bool{i.exe("ffmpeg"): true, i.exe("ffprobe"): true}
	var extracted []string
	switch archiveKind(url) {
	case kindTarXz:
		extracted, err = extractTarXz(archivePath, i.binDir, wanted)
	case kind7z:
		extracted, err = extract7z(archivePath, i.binDir, wanted)
	default:
		extracted, err = extractZip(archivePath, i.binDir, wanted)
	}
	if err != nil {
		return fmt.Errorf("extract ffmpeg: %w", err)
	}
	if !contains(extracted, i.exe("ffmpeg")) {
		return fmt.Errorf("%w in downloaded archive", domain.ErrFFmpegNotFound)
	}
	i.pinned = ""
	return nil
}

func (i *Installer) download(ctx context.Context, url string, dst io.Writer, progress func(downloaded, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download ffmpeg: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download ffmpeg: HTTP %d", resp.StatusCode)
	}

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, resp.ContentLength)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

type archiveType int

const (
	kindZip archiveType = iota
	kindTarXz
	kind7z
)

func archiveKind(url string) archiveType {
	lower := strings.ToLower(url)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"):
		return kindTarXz
	case strings.HasSuffix(lower, ".7z"):
		return kind7z
	default:
		return kindZip
	}
}

// writeBinary copies src to destDir/name as an executable.
func writeBinary(src io.Reader, destDir, name string) error {
	dest := filepath.Join(destDir, name)
	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// entryName returns the base name of an archive entry, whatever separator
// the archive used.
func entryName(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

func extractTarXz(archivePath, destDir string, wanted map[string]bool) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open xz stream: %w", err)
	}
	tr := tar.NewReader(xzr)

	var extracted []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return extracted, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := entryName(hdr.Name)
		if !wanted[name] || contains(extracted, name) {
			continue
		}
		if err := writeBinary(tr, destDir, name); err != nil {
			return extracted, err
		}
		extracted = append(extracted, name)
	}
	return extracted, nil
}

func extractZip(archivePath, destDir string, wanted map[string]bool) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := entryName(f.Name)
		if !wanted[name] || contains(extracted, name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return extracted, err
		}
		err = writeBinary(rc, destDir, name)
		rc.Close()
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, name)
	}
	return extracted, nil
}

func extract7z(archivePath, destDir string, wanted map[string]bool) ([]string, error) {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open 7z: %w", err)
	}
	defer r.Close()

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := entryName(f.Name)
		if !wanted[name] || contains(extracted, name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return extracted, err
		}
		err = writeBinary(rc, destDir, name)
		rc.Close()
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, name)
	}
	return extracted, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ ports.ToolManager = (*Installer)(nil)
