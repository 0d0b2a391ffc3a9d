// Package render presents readiness reports on a terminal or as JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
)

const (
	defaultWidth = 100
	minWidth     = 40
	maxWidth     = 120
	maxChecks    = 10
)

var checkIcons = map[readiness.CheckState]string{
	readiness.CheckSuccess: "✓",
	readiness.CheckFailure: "✗",
	readiness.CheckError:   "!",
	readiness.CheckPending: "•",
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the usable width of f, clamped for readability.
// Non-terminals get defaultWidth.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return min(max(w, minWidth), maxWidth)
}

// WriterWidth is Width for w when it is a file, defaultWidth otherwise.
func WriterWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		return Width(f)
	}
	return defaultWidth
}

// JSON writes the report as indented JSON.
func JSON(w io.Writer, r *readiness.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Terminal writes a human-readable report boxed to width columns.
func Terminal(w io.Writer, r *readiness.Report, width int) error {
	if width <= 0 {
		width = defaultWidth
	}
	var b strings.Builder

	badge := badgeStyle.Background(statusColor(r.Status)).Render(strings.ToUpper(string(r.Status)))
	ref := fmt.Sprintf("%s/%s #%d", r.PullRequest.Owner, r.PullRequest.Repository, r.PullRequest.Number)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, badge, " ", titleStyle.Render(ref)))
	b.WriteString("\n")
	if r.PullRequest.Title != "" {
		b.WriteString(truncate(r.PullRequest.Title, width-4))
		b.WriteString("\n")
	}
	meta := []string{}
	if r.PullRequest.Author != "" {
		meta = append(meta, "by "+r.PullRequest.Author)
	}
	if r.PullRequest.URL != "" {
		meta = append(meta, r.PullRequest.URL)
	}
	if len(meta) > 0 {
		b.WriteString(mutedStyle.Render(strings.Join(meta, "  ")))
		b.WriteString("\n")
	}

	if len(r.Issues) > 0 {
		b.WriteString(headingStyle.Render("Issues"))
		b.WriteString("\n")
		for _, issue := range r.Issues {
			b.WriteString(issueStyle.Render("  ✗ " + issue))
			b.WriteString("\n")
		}
	}
	if len(r.NextActions) > 0 {
		b.WriteString(headingStyle.Render("Next actions"))
		b.WriteString("\n")
		for i, a := range r.NextActions {
			b.WriteString(actionStyle.Render(fmt.Sprintf("  %d. %s", i+1, a)))
			b.WriteString("\n")
		}
	}

	writeSummary(&b, r.Summary, width)

	_, err := fmt.Fprintln(w, boxStyle.Width(width-2).Render(strings.TrimRight(b.String(), "\n")))
	return err
}

func writeSummary(b *strings.Builder, s readiness.Summary, width int) {
	b.WriteString(headingStyle.Render("Summary"))
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(b, "  %-12s %s\n", label, value)
	}
	row("Mergeable", string(s.Mergeable))
	if s.Draft {
		row("Draft", "yes")
	}
	row("Approvals", fmt.Sprintf("%d/%d (%.0f%%)", s.Approvals, s.RequiredApprovals, 100*s.ApprovalRatio))

	checks := fmt.Sprintf("%d passed, %d failing, %d pending", s.CheckCounts.Passed, s.CheckCounts.Failing, s.CheckCounts.Pending)
	if s.PassRatio != nil {
		checks += fmt.Sprintf(" (%.0f%% of completed)", 100*(*s.PassRatio))
	}
	row("Checks", checks)
	row("Changes", fmt.Sprintf("%d files, +%d -%d", s.ChangedFiles, s.Additions, s.Deletions))
	row("Comments", fmt.Sprintf("%d", s.Comments))
	if len(s.Degraded) > 0 {
		row("Incomplete", mutedStyle.Render(strings.Join(s.Degraded, ", ")+" could not be fetched"))
	}

	if len(s.Reviewers) > 0 {
		b.WriteString(headingStyle.Render("Reviewers"))
		b.WriteString("\n")
		for _, rv := range s.Reviewers {
			decision := rv.Decision
			if decision == "" {
				decision = mutedStyle.Render("awaiting review")
			}
			fmt.Fprintf(b, "  %-20s %s\n", rv.Login, decision)
		}
	}

	if len(s.Checks) > 0 {
		b.WriteString(headingStyle.Render("Checks"))
		b.WriteString("\n")
		for i, c := range s.Checks {
			if i == maxChecks {
				b.WriteString(mutedStyle.Render(fmt.Sprintf("  … %d more", len(s.Checks)-maxChecks)))
				b.WriteString("\n")
				break
			}
			icon := checkStyle(c.State).Render(checkIcons[c.State])
			fmt.Fprintf(b, "  %s %s\n", icon, truncate(c.Name, width-10))
		}
	}

	if len(s.TopFiles) > 0 {
		b.WriteString(headingStyle.Render("Largest changes"))
		b.WriteString("\n")
		for _, f := range s.TopFiles {
			stat := fmt.Sprintf("+%d -%d", f.Additions, f.Deletions)
			fmt.Fprintf(b, "  %-12s %s\n", stat, truncate(f.Filename, width-20))
		}
	}
}

// truncate shortens s to n runes, keeping the tail where paths carry the useful part.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
