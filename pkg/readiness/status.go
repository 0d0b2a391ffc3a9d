// Package readiness decides whether a pull request can be merged and what is blocking it.
//
// Extract turns a raw platform snapshot into a canonical Snapshot, Classify folds a fixed list of
// rules over it to produce a Verdict, and Evaluate wraps both with display figures.
// Nothing in this package performs I/O or keeps state between calls.
package readiness

// Status is the tri-state readiness verdict.
type Status string

// Status values, best first.
const (
	StatusReady    Status = "ready"
	StatusPending  Status = "pending"
	StatusNotReady Status = "not-ready"
)

// rank orders statuses from best (0) to worst. Unknown values rank as not-ready.
func (s Status) rank() int {
	switch s {
	case StatusReady:
		return 0
	case StatusPending:
		return 1
	default:
		return 2
	}
}

// Valid reports whether s is one of the three defined statuses.
func (s Status) Valid() bool {
	return s == StatusReady || s == StatusPending || s == StatusNotReady
}

// Worse reports whether s is strictly further from ready than other.
func (s Status) Worse(other Status) bool {
	return s.rank() > other.rank()
}

// Worst returns the status furthest from ready. It is the monotone combine used by Classify:
// once a status has been downgraded no later rule can raise it again.
func Worst(a, b Status) Status {
	if b.Worse(a) {
		return b
	}
	return a
}
