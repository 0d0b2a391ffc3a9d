package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/codeGROOVE-dev/merge-ready/pkg/types"
)

// ErrNoSelection is returned when the picker is cancelled or has nothing to offer.
var ErrNoSelection = errors.New("no pull request selected")

// finderLine formats one picker row.
func finderLine(pr types.PullRequest) string {
	line := fmt.Sprintf("#%-6d %s", pr.Number, pr.Title)
	if pr.Draft {
		line += " [draft]"
	}
	if pr.Author != "" {
		line += "  @" + pr.Author
	}
	return line
}

// finderPreview formats the preview pane for one pull request.
func finderPreview(pr types.PullRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n\n", pr.Number, pr.Title)
	if pr.Author != "" {
		fmt.Fprintf(&b, "Author:  %s\n", pr.Author)
	}
	if !pr.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "Updated: %s\n", pr.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if pr.Draft {
		b.WriteString("Draft:   yes\n")
	}
	if pr.URL != "" {
		fmt.Fprintf(&b, "\n%s\n", pr.URL)
	}
	return b.String()
}

// SelectPullRequest lets the user pick one of prs with a fuzzy finder.
func SelectPullRequest(prs []types.PullRequest) (types.PullRequest, error) {
	if len(prs) == 0 {
		return types.PullRequest{}, fmt.Errorf("%w: no open pull requests", ErrNoSelection)
	}
	idx, err := fuzzyfinder.Find(
		prs,
		func(i int) string { return finderLine(prs[i]) },
		fuzzyfinder.WithPromptString("PR> "),
		fuzzyfinder.WithPreviewWindow(func(i, _, _ int) string {
			if i == -1 {
				return ""
			}
			return finderPreview(prs[i])
		}),
	)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return types.PullRequest{}, ErrNoSelection
	}
	if err != nil {
		return types.PullRequest{}, fmt.Errorf("pull request picker: %w", err)
	}
	return prs[idx], nil
}
