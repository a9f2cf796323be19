package isr

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/saiset-co/sai-isr/types"
)

// Invalidate authenticates token and rebuilds every variant of every URL
// in urls. Authorization is checked before anything touches the store, so
// a rejected call performs zero store operations.
func (e *Engine) Invalidate(ctx context.Context, token string, urls []string) (*types.InvalidateReport, error) {
	if err := e.authorizeInvalidation(token); err != nil {
		return nil, err
	}

	request := &types.InvalidateRequest{Token: token, URLs: urls}
	if err := e.validate.Struct(request); err != nil {
		return nil, types.Errorf(types.ErrInvalidatePayload, "%v", err)
	}

	return e.invalidateAll(ctx, urls), nil
}

// invalidateAll is the unauthenticated core, shared with the in-process
// scheduler. Items are processed sequentially; a slow renderer must not
// fan out across the whole URL set at once.
func (e *Engine) invalidateAll(ctx context.Context, urls []string) *types.InvalidateReport {
	cfg := e.config.GetConfig()

	report := &types.InvalidateReport{
		NotInCache:      []string{},
		URLWithErrors:   map[string][]string{},
		InvalidatedURLs: []string{},
	}

	for _, url := range urls {
		items := ExpandVariants(url, e.variants, e.generateKey, cfg.AllowedQueryParams)

		for _, item := range items {
			e.processRebuildItem(ctx, cfg, item, report)
		}
	}

	e.logger.Info("invalidation batch processed",
		zap.Int("urls", len(urls)),
		zap.Int("invalidated", len(report.InvalidatedURLs)),
		zap.Int("not_in_cache", len(report.NotInCache)),
		zap.Int("with_errors", len(report.URLWithErrors)))

	return report
}

func (e *Engine) processRebuildItem(ctx context.Context, cfg *types.ISRConfig, item types.VariantRebuildItem, report *types.InvalidateReport) {
	exists, err := Execute(ctx, e.cacheTimeout(cfg), "cache check for "+item.CacheKey+" timed out",
		func(ctx context.Context) (bool, error) {
			return e.store.Has(ctx, item.CacheKey)
		})

	// A failing lookup is treated as absence rather than aborting the
	// whole batch.
	if err != nil || !exists {
		if err != nil {
			e.logger.Warn("cache check failed during invalidation",
				zap.String("cache_key", item.CacheKey), zap.Error(err))
		}
		report.NotInCache = append(report.NotInCache, item.CacheKey)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		report.URLWithErrors[item.CacheKey] = []string{err.Error()}
		return
	}
	req = item.Simulate(req)

	// ModeGenerate: an invalidation rebuild is never skipped by an
	// unrelated in-flight regeneration.
	result, err := e.coordinator.Regenerate(ctx, req, item.URL, item.CacheKey, ModeGenerate)
	if err != nil {
		report.URLWithErrors[item.CacheKey] = []string{err.Error()}
		return
	}

	if result != nil && len(result.Errors) > 0 {
		report.URLWithErrors[item.CacheKey] = result.Errors
		return
	}

	report.InvalidatedURLs = append(report.InvalidatedURLs, item.CacheKey)
}

func (e *Engine) authorizeInvalidation(token string) error {
	cfg := e.config.GetConfig()

	switch {
	case cfg.InvalidateSecretHash != "":
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.InvalidateSecretHash), []byte(token)); err != nil {
			return types.ErrInvalidateUnauthorized
		}
		return nil
	case cfg.InvalidateSecret != "":
		if subtle.ConstantTimeCompare([]byte(cfg.InvalidateSecret), []byte(token)) != 1 {
			return types.ErrInvalidateUnauthorized
		}
		return nil
	default:
		return types.ErrNoSecretConfigured
	}
}
