package isr

import (
	"net/http"

	"github.com/saiset-co/sai-isr/types"
)

// DetectVariant returns the first variant in declared order whose Detect
// predicate matches, or nil when the request belongs to the default
// (no-variant) partition.
func DetectVariant(req *http.Request, variants []types.Variant) *types.Variant {
	for i := range variants {
		if variants[i].Detect != nil && variants[i].Detect(req) {
			return &variants[i]
		}
	}
	return nil
}

// ExpandVariants turns one logical URL into the full set of rebuild items:
// the default entry first, then one per configured variant in declaration
// order. Callers report invalidation results keyed by this list, so the
// order is part of the contract.
func ExpandVariants(url string, variants []types.Variant, generate types.CacheKeyGenerator, allowedQueryParams []string) []types.VariantRebuildItem {
	items := make([]types.VariantRebuildItem, 0, len(variants)+1)

	items = append(items, types.VariantRebuildItem{
		URL:      url,
		CacheKey: generate(url, allowedQueryParams, nil),
		Simulate: identityRequest,
	})

	for i := range variants {
		simulate := variants[i].Simulate
		if simulate == nil {
			simulate = identityRequest
		}

		items = append(items, types.VariantRebuildItem{
			URL:      url,
			CacheKey: generate(url, allowedQueryParams, &variants[i]),
			Simulate: simulate,
		})
	}

	return items
}

func identityRequest(req *http.Request) *http.Request {
	return req
}
