package types

import "net/http"

// Variant partitions the cache for one logical URL along a request
// dimension (locale, device class, cookie). Detect decides whether an
// inbound request belongs to the variant; Simulate synthesizes a request
// that would match it, used when a rebuild has no real request to work
// from. A nil Simulate means identity.
type Variant struct {
	ID       string
	Detect   func(req *http.Request) bool
	Simulate func(req *http.Request) *http.Request
}

// VariantRebuildItem is one unit of work produced by expanding a URL
// against the configured variant list for invalidation.
type VariantRebuildItem struct {
	URL      string
	CacheKey string
	Simulate func(req *http.Request) *http.Request
}

// CacheKeyGenerator derives the cache key for a URL. It must be pure:
// equal inputs always yield equal keys, and distinct variants of one URL
// yield distinct keys. Every component references keys only through this
// function, never by re-deriving them from the raw URL.
type CacheKeyGenerator func(url string, allowedQueryParams []string, variant *Variant) string
