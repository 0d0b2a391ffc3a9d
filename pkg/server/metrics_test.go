package server

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
)

func TestMetrics_DistinctSetsAreBounded(t *testing.T) {
	g := NewWithT(t)
	m := NewMetrics()
	m.limit = 2

	m.RecordEvaluation("acme", "widgets", 1, readiness.StatusReady)
	m.RecordEvaluation("acme", "widgets", 2, readiness.StatusPending)
	g.Expect(m.Stats().DistinctCapped).To(BeFalse())

	m.RecordEvaluation("acme", "gears", 3, readiness.StatusNotReady)
	m.RecordEvaluation("acme", "widgets", 1, readiness.StatusReady)

	stats := m.Stats()
	g.Expect(stats.Evaluations).To(Equal(int64(4)))
	g.Expect(stats.Repositories).To(Equal(2))
	g.Expect(stats.PullRequests).To(Equal(2))
	g.Expect(stats.DistinctCapped).To(BeTrue())
	g.Expect(stats.ByStatus).To(HaveKeyWithValue(readiness.StatusReady, int64(2)))
}
