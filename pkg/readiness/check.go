package readiness

import "strings"

// CheckState is the normalized result of a check run.
type CheckState string

// CheckState values.
const (
	CheckSuccess CheckState = "success"
	CheckFailure CheckState = "failure"
	CheckPending CheckState = "pending"
	CheckError   CheckState = "error"
)

// checkStatusCompleted is the only platform status that carries a meaningful conclusion.
const checkStatusCompleted = "completed"

// conclusionStates maps the conclusion of a completed check to its normalized state.
// Conclusions missing from the table (neutral, unset, anything new) normalize to pending.
var conclusionStates = map[string]CheckState{
	"success":         CheckSuccess,
	"skipped":         CheckSuccess,
	"failure":         CheckFailure,
	"timed_out":       CheckFailure,
	"cancelled":       CheckError,
	"action_required": CheckError,
	"startup_failure": CheckError,
	"stale":           CheckError,
	"error":           CheckError,
}

// NormalizeCheck maps a platform (status, conclusion) pair to a CheckState.
// Incomplete checks are always pending, whatever their conclusion says.
func NormalizeCheck(status, conclusion string) CheckState {
	if !isCompleted(status) {
		return CheckPending
	}
	if state, ok := conclusionStates[strings.ToLower(strings.TrimSpace(conclusion))]; ok {
		return state
	}
	return CheckPending
}

// Failing reports whether the state blocks a merge.
func (s CheckState) Failing() bool {
	return s == CheckFailure || s == CheckError
}

func isCompleted(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), checkStatusCompleted)
}
