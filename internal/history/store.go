// Package history keeps a process-local, append-only log of past runs for
// the UI's "recent runs" displays. Nothing is persisted to disk.
package history

import (
	"sync"

	"listing_syndicator/internal/domain"
)

const defaultLimit = 20

// Store is a bounded, insertion-ordered ring of RunReports, most recent
// first. Record is the only mutator; corrections happen via a new run, so
// the audit trail is preserved.
type Store struct {
	mu      sync.RWMutex
	limit   int
	reports []*domain.RunReport
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Store{limit: limit}
}

// Record appends a finalized report, evicting the oldest entry on
// overflow. The report is deep-copied: the store owns its entries so a
// later run cannot corrupt history. Safe for concurrent use; two runs may
// finish near-simultaneously.
func (s *Store) Record(report *domain.RunReport) {
	clone := report.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append([]*domain.RunReport{clone}, s.reports...)
	if len(s.reports) > s.limit {
		s.reports = s.reports[:s.limit]
	}
}

// Recent returns up to n reports, most recent first. Returned reports are
// copies; callers may not mutate history through them.
func (s *Store) Recent(n int) []*domain.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.reports) {
		n = len(s.reports)
	}
	out := make([]*domain.RunReport, 0, n)
	for _, r := range s.reports[:n] {
		out = append(out, r.Clone())
	}
	return out
}

// Get returns the report recorded under runID, if still retained.
func (s *Store) Get(runID string) (*domain.RunReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.RunID == runID {
			return r.Clone(), true
		}
	}
	return nil, false
}

// Len returns the number of retained reports.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
