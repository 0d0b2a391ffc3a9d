package readiness

import "fmt"

// Issue texts reported by the rules.
const (
	IssueConflicts = "Resolve the existing merge conflicts before merging"
	IssueDraft     = "PR is still in draft"
)

// Outcome is what a single rule found. A zero Outcome means "no change".
type Outcome struct {
	Downgrade Status
	Issue     string
}

// Blocking reports whether the rule found something.
func (o Outcome) Blocking() bool {
	return o.Downgrade != ""
}

// Rule evaluates one blocking condition.
type Rule func(s *Snapshot) Outcome

// Rules is the fixed evaluation order. Issues are reported in this order.
var Rules = []Rule{
	RuleConflicts,
	RuleDraft,
	RuleApprovals,
	RuleChecks,
}

// Verdict is the classifier output.
type Verdict struct {
	Status      Status   `json:"status"`
	Issues      []string `json:"issues"`
	NextActions []string `json:"next_actions"`
}

// Classify folds Rules over the snapshot. The status starts at ready and each rule can only
// move it toward not-ready.
func Classify(s *Snapshot) Verdict {
	v := Verdict{
		Status:      StatusReady,
		Issues:      []string{},
		NextActions: NextActions(s),
	}
	for _, rule := range Rules {
		out := rule(s)
		if !out.Blocking() {
			continue
		}
		v.Status = Worst(v.Status, out.Downgrade)
		if out.Issue != "" {
			v.Issues = append(v.Issues, out.Issue)
		}
	}
	return v
}

// RuleConflicts blocks on confirmed merge conflicts. Unknown mergeability is not a conflict.
func RuleConflicts(s *Snapshot) Outcome {
	if s.Mergeable != MergeableConflicting {
		return Outcome{}
	}
	return Outcome{Downgrade: StatusNotReady, Issue: IssueConflicts}
}

// RuleDraft blocks drafts regardless of any other signal.
func RuleDraft(s *Snapshot) Outcome {
	if !s.Draft {
		return Outcome{}
	}
	return Outcome{Downgrade: StatusNotReady, Issue: IssueDraft}
}

// RuleApprovals marks the PR pending while approvals are missing.
func RuleApprovals(s *Snapshot) Outcome {
	missing := s.MissingApprovals()
	if missing == 0 {
		return Outcome{}
	}
	return Outcome{Downgrade: StatusPending, Issue: fmt.Sprintf("Needs %d more approval(s)", missing)}
}

// RuleChecks blocks on failing or errored checks. Pending checks never downgrade.
func RuleChecks(s *Snapshot) Outcome {
	failing := s.FailingChecks()
	if len(failing) == 0 {
		return Outcome{}
	}
	return Outcome{Downgrade: StatusNotReady, Issue: fmt.Sprintf("%d check(s) failing", len(failing))}
}

// MissingApprovals returns how many approvals are still required, never negative.
func (s *Snapshot) MissingApprovals() int {
	return max(0, s.RequiredApprovals-s.Approvals)
}

// FailingChecks returns the checks in the failure or error state.
func (s *Snapshot) FailingChecks() []Check {
	var out []Check
	for _, c := range s.Checks {
		if c.State.Failing() {
			out = append(out, c)
		}
	}
	return out
}

// PendingChecks returns the checks that have neither passed nor failed.
func (s *Snapshot) PendingChecks() []Check {
	var out []Check
	for _, c := range s.Checks {
		if c.State == CheckPending {
			out = append(out, c)
		}
	}
	return out
}
