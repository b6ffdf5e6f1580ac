package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/madzarm/ccsearch/internal/picker"
	"github.com/madzarm/ccsearch/internal/search"
	"github.com/madzarm/ccsearch/internal/store"
)

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	projectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	branchStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// resultsEnvelope is the wire schema for `search --json` and
// `list --json`.
type resultsEnvelope struct {
	Results []search.Result `json:"results"`
}

// writeResultsJSON emits the stable JSON schema.
func writeResultsJSON(w io.Writer, results []search.Result) error {
	if results == nil {
		results = []search.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resultsEnvelope{Results: results})
}

// printResults renders ranked results as plain text.
func printResults(w io.Writer, results []search.Result) {
	for i, r := range results {
		title := r.Summary
		if title == "" {
			title = r.Preview
		}
		if title == "" {
			title = "(no title)"
		}

		fmt.Fprintf(w, "%s %s %s\n",
			boldStyle.Render(fmt.Sprintf("%d.", i+1)),
			title,
			dimStyle.Render(fmt.Sprintf("(score: %.4f)", r.FusedScore)))

		line := "   " + dateStyle.Render(formatUnix(r.LastMsgAt))
		if r.Project != nil {
			line += " " + projectStyle.Render(shortProject(*r.Project))
		}
		if r.GitBranch != "" {
			line += " " + branchStyle.Render("["+r.GitBranch+"]")
		}
		fmt.Fprintln(w, line)

		if r.Snippet != "" {
			fmt.Fprintf(w, "   %s\n", picker.HighlightSnippet(r.Snippet))
		}
		fmt.Fprintf(w, "   %s\n\n", dimStyle.Render("id: "+r.ID))
	}
}

// printSessionList renders `list` output as a table-ish listing.
func printSessionList(w io.Writer, records []store.SessionRecord) {
	fmt.Fprintf(w, "%s (%d sessions)\n\n", boldStyle.Render("Claude Code Sessions"), len(records))

	for _, rec := range records {
		title := rec.Summary
		if title == "" {
			title = rec.Preview
		}
		if title == "" {
			title = "(no title)"
		}

		line := "  " + dateStyle.Render(formatUnix(rec.LastMsgAt)) + " " + title
		if rec.Project != "" {
			line += " " + projectStyle.Render(shortProject(rec.Project))
		}
		if rec.GitBranch != "" {
			line += " " + branchStyle.Render("["+rec.GitBranch+"]")
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "    %s\n", dimStyle.Render("id: "+rec.ID))
	}
}

func formatUnix(unix int64) string {
	if unix == 0 {
		return "unknown"
	}
	return time.Unix(unix, 0).Format("2006-01-02 15:04")
}

func shortProject(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		return ".../" + strings.Join(parts[len(parts)-2:], "/")
	}
	return path
}
