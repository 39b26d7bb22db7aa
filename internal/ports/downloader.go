package ports

import (
	"context"

	"github.com/devbush/vdraft/internal/domain"
)

// DownloadResult contains the result of an audio download operation.
type DownloadResult struct {
	LocalPath string        // path to the extracted audio file
	Media     *domain.Media // metadata populated from the download
}

// Downloader fetches the audio track of a remote video.
type Downloader interface {
	// Fetch downloads audio for url into destDir.
	// Failures carry domain kinds: not_supported, network, content or environment.
	Fetch(ctx context.Context, url string, destDir string) (*DownloadResult, error)
}

// PlaylistExpander resolves a playlist or channel URL into item URLs.
type PlaylistExpander interface {
	ExpandPlaylist(ctx context.Context, url string, limit int) ([]string, error)
}

// ToolManager manages an external binary the pipeline shells out to.
type ToolManager interface {
	// IsAvailable checks if the tool is installed and ready.
	IsAvailable() bool

	// GetBinaryPath returns the path to the binary.
	GetBinaryPath() string

	// Install downloads and installs the tool, reporting progress via callback.
	Install(ctx context.Context, progress func(downloaded, total int64)) error
}
