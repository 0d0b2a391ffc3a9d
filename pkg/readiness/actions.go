package readiness

import "fmt"

// MaxNextActions caps the action list. Actions beyond the cap are dropped, not summarized.
const MaxNextActions = 3

// ActionReadyForReview is the draft action.
const ActionReadyForReview = "Mark the PR as ready for review"

// NextActions builds the remediation list in priority order:
// conflicts, draft, failing checks, missing approvals, pending checks.
// Waiting on pending checks is only suggested while no check is failing.
func NextActions(s *Snapshot) []string {
	var actions []string
	failing := len(s.FailingChecks())

	if s.Mergeable == MergeableConflicting {
		actions = append(actions, IssueConflicts)
	}
	if s.Draft {
		actions = append(actions, ActionReadyForReview)
	}
	if failing > 0 {
		actions = append(actions, fmt.Sprintf("Fix %d failing %s", failing, plural(failing, "check", "checks")))
	}
	if n := s.MissingApprovals(); n > 0 {
		actions = append(actions, fmt.Sprintf("Get %d more %s", n, plural(n, "approval", "approvals")))
	}
	if n := len(s.PendingChecks()); n > 0 && failing == 0 {
		actions = append(actions, fmt.Sprintf("Wait for %d pending %s", n, plural(n, "check", "checks")))
	}

	if len(actions) > MaxNextActions {
		actions = actions[:MaxNextActions]
	}
	if actions == nil {
		return []string{}
	}
	return actions
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
