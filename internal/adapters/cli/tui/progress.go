package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

// StepStatus represents the state of a progress step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepError
	StepSkipped
)

// Step names one line of the display and the pipeline stage driving it.
// Steps with an empty Stage are driven by the caller.
type Step struct {
	Name  string
	Stage domain.Stage
}

// ProgressStep represents a single step in the progress
type ProgressStep struct {
	Step
	Status   StepStatus
	Progress float64 // 0-100, only used for download steps
	Total    int64
	Current  int64
	Error    string
}

// ProgressDisplay manages multi-step progress output for a single video.
// With redraw set it rewrites its lines in place; otherwise it appends one
// line per status change.
type ProgressDisplay struct {
	out        io.Writer
	steps      []ProgressStep
	spinnerIdx int
	quiet      bool
	redraw     bool
	mu         sync.Mutex
	lastRender time.Time
	rendered   bool
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewProgressDisplay creates a new progress display
func NewProgressDisplay(out io.Writer, steps []Step, quiet, redraw bool) *ProgressDisplay {
	pd := &ProgressDisplay{
		out:    out,
		steps:  make([]ProgressStep, len(steps)),
		quiet:  quiet,
		redraw: redraw,
	}
	for i, s := range steps {
		pd.steps[i] = ProgressStep{Step: s, Status: StepPending}
	}
	return pd
}

func (p *ProgressDisplay) indexOf(stage domain.Stage) int {
	for i, s := range p.steps {
		if s.Stage != "" && s.Stage == stage {
			return i
		}
	}
	return -1
}

// OnEvent moves the step bound to the event's stage. It satisfies the
// worker's event sink.
func (p *ProgressDisplay) OnEvent(event domain.ProgressEvent) {
	p.mu.Lock()
	idx := p.indexOf(event.Stage)
	p.mu.Unlock()
	if idx < 0 {
		return
	}
	switch event.Status {
	case domain.StatusStarted:
		p.StartStep(idx)
	case domain.StatusFinished:
		p.CompleteStep(idx)
	case domain.StatusFailed:
		p.FailStep(idx, event.Message)
	}
}

// StartStep marks a step as running
func (p *ProgressDisplay) StartStep(index int) {
	p.setStatus(index, StepRunning, "")
}

// CompleteStep marks a step as complete
func (p *ProgressDisplay) CompleteStep(index int) {
	p.setStatus(index, StepComplete, "")
}

// FailStep marks a step as failed
func (p *ProgressDisplay) FailStep(index int, err string) {
	p.setStatus(index, StepError, err)
}

// SkipPending marks every step that never started as skipped, as happens
// when a cached transcript short-circuits download and transcription.
func (p *ProgressDisplay) SkipPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.steps {
		if p.steps[i].Status == StepPending {
			p.steps[i].Status = StepSkipped
		}
	}
	p.render(-1)
}

func (p *ProgressDisplay) setStatus(index int, status StepStatus, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.steps) {
		return
	}
	p.steps[index].Status = status
	p.steps[index].Error = errMsg
	p.render(index)
}

// UpdateProgress updates download progress for a step
func (p *ProgressDisplay) UpdateProgress(index int, current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.steps) {
		return
	}
	p.steps[index].Current = current
	p.steps[index].Total = total
	if total > 0 {
		p.steps[index].Progress = float64(current) / float64(total) * 100
	}
	// throttled; appended output only reports status changes
	if p.redraw && time.Since(p.lastRender) > 100*time.Millisecond {
		p.render(index)
	}
}

// Tick advances the spinner animation
func (p *ProgressDisplay) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
	if p.redraw {
		p.render(-1)
	}
}

func (p *ProgressDisplay) statusText(step ProgressStep) string {
	switch step.Status {
	case StepRunning:
		if step.Total > 0 {
			return fmt.Sprintf("%.1f%% (%s / %s)", step.Progress, FormatSize(step.Current), FormatSize(step.Total))
		}
		if p.redraw {
			return spinnerFrames[p.spinnerIdx]
		}
		return "started"
	case StepComplete:
		return "✓"
	case StepError:
		if step.Error != "" {
			return "✗ " + step.Error
		}
		return "✗"
	case StepSkipped:
		return "skipped"
	default:
		return " "
	}
}

// render draws every step when redrawing, or only the changed step when
// appending. changed is -1 when no single step changed.
func (p *ProgressDisplay) render(changed int) {
	if p.quiet {
		return
	}
	p.lastRender = time.Now()
	total := len(p.steps)

	if !p.redraw {
		if changed < 0 {
			return
		}
		step := p.steps[changed]
		fmt.Fprintf(p.out, "[%d/%d] %s... %s\n", changed+1, total, step.Name, p.statusText(step))
		return
	}

	if p.rendered {
		fmt.Fprintf(p.out, "\033[%dA", total)
		fmt.Fprint(p.out, "\033[J")
	}
	for i, step := range p.steps {
		fmt.Fprintf(p.out, "[%d/%d] %s... %s\n", i+1, total, step.Name, p.statusText(step))
	}
	p.rendered = true
}

// Complete prints the written files.
func (p *ProgressDisplay) Complete(files []string) {
	if p.quiet {
		return
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, successStyle.Render("✓ Complete!"))
	for _, f := range files {
		fmt.Fprintf(p.out, "  %s\n", f)
	}
}

// StartSpinner starts a goroutine that ticks the spinner until done is closed.
func (p *ProgressDisplay) StartSpinner() chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.Tick()
			}
		}
	}()
	return done
}
