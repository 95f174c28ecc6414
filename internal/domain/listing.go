package domain

// ListingRef identifies one property to syndicate. Immutable for the
// duration of a run.
type ListingRef struct {
	PropertyID int
	ExternalID string // Partner-side external identifier, empty when not yet assigned
	RemoteID   string // Partner-side remote identifier, empty when not yet assigned
}
