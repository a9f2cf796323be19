package isr

import (
	"net/url"
	"sort"
	"strings"

	"github.com/saiset-co/sai-isr/types"
)

// DefaultCacheKeyGenerator keeps only the allow-listed query parameters,
// sorts them so parameter order never changes the key, and appends the
// variant id when a variant matched. Pure: equal inputs always produce
// equal keys.
func DefaultCacheKeyGenerator(rawURL string, allowedQueryParams []string, variant *types.Variant) string {
	key := canonicalURL(rawURL, allowedQueryParams)

	if variant != nil && variant.ID != "" {
		key += "|" + variant.ID
	}

	return key
}

func canonicalURL(rawURL string, allowedQueryParams []string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if len(allowedQueryParams) == 0 {
		return parsed.Path
	}

	query := parsed.Query()
	var kept []string
	for _, param := range allowedQueryParams {
		values, exists := query[param]
		if !exists {
			continue
		}
		for _, value := range values {
			kept = append(kept, param+"="+value)
		}
	}

	if len(kept) == 0 {
		return parsed.Path
	}

	sort.Strings(kept)
	return parsed.Path + "?" + strings.Join(kept, "&")
}
