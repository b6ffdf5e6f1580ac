// Package picker renders search results as an interactive terminal
// list with a preview pane. Selecting a result hands its session back
// to the caller for resuming.
package picker

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/madzarm/ccsearch/internal/search"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	dateStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	projectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	branchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	matchStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	borderStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model is the Bubble Tea model for the result picker.
type Model struct {
	query     string
	results   []search.Result
	selection int
	width     int
	height    int
	preview   viewport.Model

	// chosen holds the picked result after Enter; nil when cancelled.
	chosen *search.Result
}

// NewModel creates a picker over ranked results.
func NewModel(query string, results []search.Result) Model {
	return Model{
		query:   query,
		results: results,
		preview: viewport.New(0, 0),
	}
}

// Chosen returns the selected result, or nil if the user cancelled.
func (m Model) Chosen() *search.Result {
	return m.chosen
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.preview.Width = m.width/2 - 4
		m.preview.Height = m.height - 4
		m.refreshPreview()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.chosen = nil
			return m, tea.Quit
		case "up", "k":
			if m.selection > 0 {
				m.selection--
				m.refreshPreview()
			}
		case "down", "j":
			if m.selection < len(m.results)-1 {
				m.selection++
				m.refreshPreview()
			}
		case "enter":
			if m.selection >= 0 && m.selection < len(m.results) {
				m.chosen = &m.results[m.selection]
			}
			return m, tea.Quit
		case "pgup":
			m.preview.HalfViewUp()
		case "pgdown":
			m.preview.HalfViewDown()
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	listWidth := m.width / 2
	list := m.renderList(listWidth - 4)
	preview := m.preview.View()

	left := borderStyle.Width(listWidth - 2).Height(m.height - 3).Render(list)
	right := borderStyle.Width(m.width - listWidth - 2).Height(m.height - 3).Render(preview)

	help := dimStyle.Render(" ↑/↓ select · enter resume · pgup/pgdn preview · q quit")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right) + "\n" + help
}

func (m Model) renderList(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Results for %q (%d)", m.query, len(m.results))))
	b.WriteString("\n\n")

	for i, r := range m.results {
		line := fmt.Sprintf("%s  %s  %s",
			dateStyle.Render(formatDate(r.LastMsgAt)),
			titleOf(r, width/2),
			projectStyle.Render(shortPath(deref(r.Project))),
		)
		if r.GitBranch != "" {
			line += branchStyle.Render(" [" + r.GitBranch + "]")
		}
		if i == m.selection {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) refreshPreview() {
	if m.selection < 0 || m.selection >= len(m.results) {
		m.preview.SetContent("")
		return
	}
	r := m.results[m.selection]

	var b strings.Builder
	if r.Summary != "" {
		b.WriteString(titleStyle.Render(r.Summary))
		b.WriteString("\n\n")
	}
	b.WriteString(dimStyle.Render("Session:  ") + r.ID + "\n")
	b.WriteString(dimStyle.Render("Project:  ") + projectStyle.Render(deref(r.Project)) + "\n")
	b.WriteString(dimStyle.Render("Started:  ") + dateStyle.Render(formatDate(r.StartedAt)) + "\n")
	b.WriteString(dimStyle.Render("Activity: ") + dateStyle.Render(formatDate(r.LastMsgAt)) + "\n")
	if r.GitBranch != "" {
		b.WriteString(dimStyle.Render("Branch:   ") + branchStyle.Render(r.GitBranch) + "\n")
	}
	b.WriteString(dimStyle.Render("Messages: ") + fmt.Sprintf("%d", r.MsgCount) + "\n\n")
	b.WriteString(HighlightSnippet(r.Snippet))

	m.preview.SetContent(b.String())
	m.preview.GotoTop()
}

// Run shows the picker and blocks until the user picks or cancels.
func Run(query string, results []search.Result) (*search.Result, error) {
	p := tea.NewProgram(NewModel(query, results), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("picker failed: %w", err)
	}
	return final.(Model).Chosen(), nil
}

// HighlightSnippet substitutes the searcher's token markers with a
// terminal highlight style.
func HighlightSnippet(snippet string) string {
	out := strings.ReplaceAll(snippet, search.MarkStart, "\x00")
	out = strings.ReplaceAll(out, search.MarkEnd, "\x01")

	var b strings.Builder
	var token strings.Builder
	inMatch := false
	for _, r := range out {
		switch r {
		case '\x00':
			inMatch = true
		case '\x01':
			b.WriteString(matchStyle.Render(token.String()))
			token.Reset()
			inMatch = false
		default:
			if inMatch {
				token.WriteRune(r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	if token.Len() > 0 {
		b.WriteString(token.String())
	}
	return b.String()
}

func titleOf(r search.Result, max int) string {
	title := r.Summary
	if title == "" {
		title = r.Preview
	}
	if title == "" {
		title = "(no title)"
	}
	runes := []rune(title)
	if len(runes) > max && max > 1 {
		return string(runes[:max-1]) + "…"
	}
	return title
}

func formatDate(unix int64) string {
	if unix == 0 {
		return "unknown"
	}
	return time.Unix(unix, 0).Format("2006-01-02 15:04")
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		return ".../" + strings.Join(parts[len(parts)-2:], "/")
	}
	return path
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
