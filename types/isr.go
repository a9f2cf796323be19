package types

// RegenerationResult is what a regeneration attempt hands back to its
// caller. Errors carries render-reported errors; when present and the
// skip-caching-on-errors policy is active the content was not cached and
// the caller decides the response status.
type RegenerationResult struct {
	Content string
	Errors  []string
}

// ServeResult is a cache hit ready for transmission.
type ServeResult struct {
	Content []byte
	Stale   bool
}

type InvalidateRequest struct {
	Token string   `json:"token" validate:"required"`
	URLs  []string `json:"urlsToInvalidate" validate:"required,min=1,dive,required"`
}

type InvalidateReport struct {
	NotInCache      []string            `json:"notInCache"`
	URLWithErrors   map[string][]string `json:"urlWithErrors"`
	InvalidatedURLs []string            `json:"invalidatedUrls"`
}

type InvalidateResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	*InvalidateReport
}
