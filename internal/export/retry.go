package export

import (
	"listing_syndicator/internal/domain"
)

// RetrySet computes the refs eligible for a retry run from a prior report:
// export-step failures plus failed activations, deduplicated by property
// id. Order follows first appearance in the report.
func RetrySet(report *domain.RunReport) []domain.ListingRef {
	seen := make(map[int]struct{})
	var refs []domain.ListingRef

	add := func(ref domain.ListingRef) {
		if _, dup := seen[ref.PropertyID]; dup {
			return
		}
		seen[ref.PropertyID] = struct{}{}
		refs = append(refs, ref)
	}

	for _, e := range report.ExportStats.Errors {
		if e.Step == domain.StepExport {
			add(e.Ref)
		}
	}
	for _, a := range report.ActivationResults {
		if !a.Activated {
			add(a.Ref)
		}
	}
	return refs
}
