package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/devbush/vdraft/internal/domain"
)

const recentLines = 8

// BatchUpdateMsg carries one relayed progress update into the view.
type BatchUpdateMsg struct {
	Snapshot domain.ProgressSnapshot
	Event    domain.ProgressEvent
}

type batchDoneMsg struct{}

type activeItem struct {
	url   string
	stage domain.Stage
}

// BatchViewModel is the live terminal view of a running batch.
type BatchViewModel struct {
	snapshot    domain.ProgressSnapshot
	bar         progress.Model
	spinner     spinner.Model
	active      map[int]activeItem
	recent      []string
	done        bool
	interrupted bool
	onInterrupt func()
}

// NewBatchViewModel creates the view for total items. onInterrupt runs when
// the user presses ctrl+c, since the view owns the terminal input.
func NewBatchViewModel(total int, onInterrupt func()) BatchViewModel {
	return BatchViewModel{
		snapshot:    domain.ProgressSnapshot{Total: total},
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(selectedStyle)),
		active:      make(map[int]activeItem),
		onInterrupt: onInterrupt,
	}
}

func (m BatchViewModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m BatchViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case BatchUpdateMsg:
		m.apply(msg)
		return m, nil
	case batchDoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-30, 60))
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *BatchViewModel) apply(msg BatchUpdateMsg) {
	m.snapshot = msg.Snapshot
	ev := msg.Event
	idx := ev.Item.Index

	if !ev.IsItemLevel() {
		if item, ok := m.active[idx]; ok && ev.Status == domain.StatusStarted {
			item.stage = ev.Stage
			m.active[idx] = item
		}
		return
	}

	switch ev.Status {
	case domain.StatusStarted:
		m.active[idx] = activeItem{url: ev.Item.URL}
	case domain.StatusFinished:
		delete(m.active, idx)
		m.pushRecent(successStyle.Render("✓") + " " + Truncate(ev.Item.URL, 70))
	case domain.StatusFailed:
		delete(m.active, idx)
		m.pushRecent(failureStyle.Render("✗") + " " + Truncate(ev.Item.URL, 50) + ": " + Truncate(ev.Message, 60))
	}
}

func (m *BatchViewModel) pushRecent(line string) {
	m.recent = append(m.recent, line)
	if len(m.recent) > recentLines {
		m.recent = m.recent[len(m.recent)-recentLines:]
	}
}

func (m BatchViewModel) View() string {
	s := m.snapshot
	var sb strings.Builder

	head := m.spinner.View()
	if m.done || s.Done() {
		head = successStyle.Render("✓")
	}
	fmt.Fprintf(&sb, "%s Processing %d/%d  %s %3.0f%%  %s\n",
		head, s.Completed, s.Total, m.bar.ViewAs(s.Percent()/100), s.Percent(), FormatETA(s))
	fmt.Fprintf(&sb, "  %s  %s  %d in flight  %s  %.1f min of media  elapsed %s\n",
		successStyle.Render(fmt.Sprintf("✓ %d", s.Succeeded)),
		failureStyle.Render(fmt.Sprintf("✗ %d", s.Failed)),
		s.InFlight,
		FormatSize(s.CumulativeBytes),
		s.CumulativeDurationSeconds/60,
		FormatDuration(s.Elapsed),
	)

	if len(m.active) > 0 {
		sb.WriteString("\n")
		indexes := make([]int, 0, len(m.active))
		for idx := range m.active {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			item := m.active[idx]
			stage := string(item.stage)
			if stage == "" {
				stage = "queued"
			}
			fmt.Fprintf(&sb, "  ▸ #%-3d %-10s %s\n", idx+1, stage, dimStyle.Render(Truncate(item.url, 60)))
		}
	}

	if len(m.recent) > 0 {
		sb.WriteString("\n")
		for _, line := range m.recent {
			sb.WriteString("  " + line + "\n")
		}
	}

	if m.interrupted && !m.done {
		sb.WriteString("\n" + failureStyle.Render("Interrupted, waiting for running items to stop...") + "\n")
	}
	return sb.String()
}

// Interrupted reports whether the user pressed ctrl+c.
func (m BatchViewModel) Interrupted() bool {
	return m.interrupted
}

// BatchView runs a BatchViewModel program on its own goroutine.
type BatchView struct {
	program *tea.Program
	done    chan error
}

// StartBatchView starts the live view writing to out.
func StartBatchView(out io.Writer, total int, onInterrupt func()) *BatchView {
	p := tea.NewProgram(NewBatchViewModel(total, onInterrupt), tea.WithOutput(out))
	v := &BatchView{program: p, done: make(chan error, 1)}
	go func() {
		_, err := p.Run()
		v.done <- err
	}()
	return v
}

// Update forwards a progress update. Its signature matches the batch
// display callback.
func (v *BatchView) Update(snapshot domain.ProgressSnapshot, event domain.ProgressEvent) {
	v.program.Send(BatchUpdateMsg{Snapshot: snapshot, Event: event})
}

// Stop renders the final frame and waits for the program to exit.
func (v *BatchView) Stop() error {
	v.program.Send(batchDoneMsg{})
	return <-v.done
}
