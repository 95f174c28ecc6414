package export

import (
	"time"

	"listing_syndicator/internal/domain"
)

// Aggregate merges the export outcome and the activation results into a
// finalized RunReport. Pure: no I/O, no shared state.
func Aggregate(runID string, startedAt, finishedAt time.Time, outcome *domain.ExportOutcome, activations []domain.ActivationResult) *domain.RunReport {
	report := &domain.RunReport{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Status:     domain.RunCompleted,
		ExportStats: domain.ExportStats{
			Successful: outcome.Successful,
			Failed:     outcome.Failed,
			Errors:     append([]domain.ExportError(nil), outcome.Errors...),
		},
		ActivationResults: activations,
	}

	for _, a := range activations {
		if !a.Activated {
			report.ActivationFailed++
		}
	}
	return report
}

// successfulRefs returns the refs whose export succeeded, preserving input
// order. A ref counts as failed when it appears in the outcome's error
// list; counts reported by the Partner are normalized against this set so
// the report invariant holds even if the Partner's counters drift.
func successfulRefs(refs []domain.ListingRef, outcome *domain.ExportOutcome) []domain.ListingRef {
	failed := make(map[int]struct{}, len(outcome.Errors))
	for _, e := range outcome.Errors {
		failed[e.Ref.PropertyID] = struct{}{}
	}

	ok := make([]domain.ListingRef, 0, len(refs))
	for _, ref := range refs {
		if _, bad := failed[ref.PropertyID]; !bad {
			ok = append(ok, ref)
		}
	}

	outcome.Successful = len(ok)
	outcome.Failed = len(refs) - len(ok)
	return ok
}

// resolveRefs fills in the full listing refs on export errors that the
// Partner reported by listing id only.
func resolveRefs(refs []domain.ListingRef, errs []domain.ExportError) {
	byID := make(map[int]domain.ListingRef, len(refs))
	for _, ref := range refs {
		byID[ref.PropertyID] = ref
	}
	for i := range errs {
		if full, ok := byID[errs[i].Ref.PropertyID]; ok {
			errs[i].Ref = full
		}
	}
}
