package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// URLListModel lets the user pick which entries of an expanded playlist
// to process.
type URLListModel struct {
	urls     []string
	cursor   int
	selected map[int]bool
	done     bool
}

// NewURLListModel creates a list with every entry selected.
func NewURLListModel(urls []string) URLListModel {
	selected := make(map[int]bool, len(urls))
	for i := range urls {
		selected[i] = true
	}
	return URLListModel{
		urls:     urls,
		selected: selected,
	}
}

func (m URLListModel) Init() tea.Cmd {
	return nil
}

func (m URLListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.urls)-1 {
				m.cursor++
			}
		case " ", "x":
			m.selected[m.cursor] = !m.selected[m.cursor]
		case "enter":
			m.done = true
			return m, tea.Quit
		case "q", "ctrl+c", "esc":
			m.done = false
			return m, tea.Quit
		case "a":
			for i := range m.urls {
				m.selected[i] = true
			}
		case "n":
			m.selected = make(map[int]bool)
		}
	}
	return m, nil
}

// visibleWindow keeps long playlists to one screen around the cursor.
const visibleWindow = 15

func (m URLListModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Select videos to process:"))
	sb.WriteString("\n\n")

	start := 0
	if m.cursor >= visibleWindow {
		start = m.cursor - visibleWindow + 1
	}
	end := min(start+visibleWindow, len(m.urls))

	for i := start; i < end; i++ {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}

		checkbox := "[ ]"
		style := uncheckedStyle
		if m.selected[i] {
			checkbox = "[x]"
			style = checkedStyle
		}

		line := fmt.Sprintf("%s%s %3d. %s", cursor, checkbox, i+1, Truncate(m.urls[i], 70))
		sb.WriteString(style.Render(line))
		sb.WriteString("\n")
	}
	if end < len(m.urls) {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(m.urls)-end)))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n%d selected | space=toggle, a=all, n=none, enter=confirm, q=cancel\n", len(m.SelectedURLs())))

	return sb.String()
}

// SelectedURLs returns the selected entries in list order.
func (m URLListModel) SelectedURLs() []string {
	var result []string
	for i, u := range m.urls {
		if m.selected[i] {
			result = append(result, u)
		}
	}
	return result
}

// RunURLList displays the list and returns the selected URLs. A nil slice
// with a nil error means the user cancelled.
func RunURLList(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	p := tea.NewProgram(NewURLListModel(urls))
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	result := finalModel.(URLListModel)
	if !result.done {
		return nil, nil
	}
	return result.SelectedURLs(), nil
}
