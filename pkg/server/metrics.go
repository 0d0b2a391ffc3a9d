package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
)

// maxTracked bounds the distinct repositories and pull requests remembered.
// Past it, new keys are not counted and Stats reports DistinctCapped.
const maxTracked = 10_000

// Metrics tracks what the service has evaluated, for the health endpoint.
type Metrics struct {
	startedAt      time.Time
	lastEvaluation time.Time
	repos          map[string]bool
	pullRequests   map[string]bool
	byStatus       map[readiness.Status]int64
	evaluations    int64
	failures       int64
	limit          int
	capped         bool
	mu             sync.RWMutex
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:    time.Now(),
		repos:        make(map[string]bool),
		pullRequests: make(map[string]bool),
		byStatus:     make(map[readiness.Status]int64),
		limit:        maxTracked,
	}
}

// RecordEvaluation records a verdict served for a pull request.
func (m *Metrics) RecordEvaluation(owner, repo string, number int, status readiness.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(m.repos, owner+"/"+repo)
	m.track(m.pullRequests, fmt.Sprintf("%s/%s#%d", owner, repo, number))
	m.byStatus[status]++
	m.evaluations++
	m.lastEvaluation = time.Now()
}

func (m *Metrics) track(set map[string]bool, key string) {
	if set[key] {
		return
	}
	if len(set) >= m.limit {
		m.capped = true
		return
	}
	set[key] = true
}

// RecordFailure records a request that could not produce a verdict.
func (m *Metrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

// Stats is a point-in-time copy of Metrics.
type Stats struct {
	StartedAt      time.Time                  `json:"started_at"`
	LastEvaluation time.Time                  `json:"last_evaluation"`
	ByStatus       map[readiness.Status]int64 `json:"by_status"`
	Repositories   int                        `json:"repositories"`
	PullRequests   int                        `json:"pull_requests"`
	Evaluations    int64                      `json:"evaluations"`
	Failures       int64                      `json:"failures"`
	DistinctCapped bool                       `json:"distinct_capped,omitempty"`
}

// Stats returns the current statistics.
func (m *Metrics) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byStatus := make(map[readiness.Status]int64, len(m.byStatus))
	for k, v := range m.byStatus {
		byStatus[k] = v
	}
	return Stats{
		StartedAt:      m.startedAt,
		LastEvaluation: m.lastEvaluation,
		ByStatus:       byStatus,
		Repositories:   len(m.repos),
		PullRequests:   len(m.pullRequests),
		Evaluations:    m.evaluations,
		Failures:       m.failures,
		DistinctCapped: m.capped,
	}
}
