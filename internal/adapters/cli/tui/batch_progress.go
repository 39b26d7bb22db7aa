package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
)

// renderProgressBar creates a text progress bar like [=====>    ]
// current=0, total=10, width=10 → [          ]
// current=5, total=10, width=10 → [=====>    ]
// current=10, total=10, width=10 → [==========]
// current=3, total=10, width=10 → [==>       ]
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return "[" + strings.Repeat(" ", width) + "]"
	}

	var bar strings.Builder
	bar.WriteString("[")

	switch {
	case current >= total:
		bar.WriteString(strings.Repeat("=", width))
	case current <= 0:
		bar.WriteString(strings.Repeat(" ", width))
	default:
		ratio := float64(current) / float64(total)
		head := int(ratio*float64(width) + 0.5)
		if head < 1 {
			head = 1
		}

		// from the halfway mark on, the arrow sits after the filled part
		equals := head - 1
		if ratio >= 0.5 {
			equals = head
		}
		equals = max(0, min(equals, width-1))

		bar.WriteString(strings.Repeat("=", equals))
		bar.WriteString(">")
		bar.WriteString(strings.Repeat(" ", max(0, width-equals-1)))
	}

	bar.WriteString("]")
	return bar.String()
}

// BatchProgress prints batch progress as plain appended lines. It is the
// display used when output is not a terminal.
type BatchProgress struct {
	out     io.Writer
	quiet   bool
	sampler *logging.ProgressSampler
	mu      sync.Mutex
}

// NewBatchProgress creates a line-oriented progress display writing to out.
func NewBatchProgress(out io.Writer, quiet bool) *BatchProgress {
	return &BatchProgress{
		out:     out,
		quiet:   quiet,
		sampler: logging.NewProgressSampler(10),
	}
}

// Update prints one line per finished item and a progress line each time
// completion crosses a 10% step. Its signature matches the batch display
// callback.
func (bp *BatchProgress) Update(snapshot domain.ProgressSnapshot, event domain.ProgressEvent) {
	if bp.quiet {
		return
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if event.IsItemLevel() {
		switch event.Status {
		case domain.StatusFinished:
			fmt.Fprintf(bp.out, "[%d/%d] ✓ %s%s\n", snapshot.Completed, snapshot.Total, event.Item.URL, mediaNote(event))
		case domain.StatusFailed:
			fmt.Fprintf(bp.out, "[%d/%d] ✗ %s: %s\n", snapshot.Completed, snapshot.Total, event.Item.URL, event.Message)
		}
	}

	if bp.sampler.ShouldLog(snapshot.Percent(), "") {
		fmt.Fprintf(bp.out, "Batch %d/%d %s %d%% %s\n",
			snapshot.Completed,
			snapshot.Total,
			renderProgressBar(snapshot.Completed, snapshot.Total, 20),
			int(snapshot.Percent()),
			FormatETA(snapshot),
		)
	}
}

func mediaNote(event domain.ProgressEvent) string {
	if event.Duration <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1f min of media)", event.Duration/60)
}
