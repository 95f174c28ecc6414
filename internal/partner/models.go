package partner

// API request/response shapes for the Partner's syndication endpoints.

type exportRequest struct {
	ListingIDs []int `json:"listingIds"`
}

// exportResponse covers both submission modes: async responses carry a
// jobId, synchronous responses carry counts and a per-item error list.
type exportResponse struct {
	JobID      string            `json:"jobId"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Errors     []exportItemError `json:"errors"`
}

type exportItemError struct {
	ListingID int    `json:"listingId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type statusResponse struct {
	Status      string            `json:"status"`
	Processed   int               `json:"processed"`
	Total       int               `json:"total"`
	Successful  int               `json:"successful"`
	Failed      int               `json:"failed"`
	CurrentItem *currentItem      `json:"currentItem"`
	Errors      []exportItemError `json:"errors"`
}

type currentItem struct {
	ListingID  int    `json:"listingId"`
	ExternalID string `json:"externalId"`
}

type activateResponse struct {
	Activated bool   `json:"activated"`
	Error     string `json:"error"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
