package application

import (
	"context"
	"fmt"

	"github.com/devbush/vdraft/internal/ports"
)

// PlaylistService expands playlist and channel URLs into item URLs.
type PlaylistService struct {
	expander ports.PlaylistExpander
}

// NewPlaylistService creates a new playlist service
func NewPlaylistService(expander ports.PlaylistExpander) *PlaylistService {
	return &PlaylistService{expander: expander}
}

// Expand replaces every input URL with the entries it lists, keeping order
// and dropping duplicates. limit caps entries per input; 0 means no cap.
func (s *PlaylistService) Expand(ctx context.Context, urls []string, limit int) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, u := range urls {
		entries, err := s.expander.ExpandPlaylist(ctx, u, limit)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", u, err)
		}
		if len(entries) == 0 {
			entries = []string{u}
		}
		for _, e := range entries {
			if seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out, nil
}
