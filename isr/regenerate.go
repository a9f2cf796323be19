package isr

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/types"
)

type RegenerationMode int

const (
	// ModeRegenerate is single-flight: a key already in flight yields a
	// skip signal instead of a second render.
	ModeRegenerate RegenerationMode = iota
	// ModeGenerate never deduplicates. Used for on-demand generation and
	// invalidation rebuilds, where being skipped would lose the refresh.
	ModeGenerate
)

func (m RegenerationMode) String() string {
	if m == ModeGenerate {
		return "generate"
	}
	return "regenerate"
}

// ModifyGeneratedHTMLFunc post-processes freshly rendered markup before it
// is cached and returned. ModifyCachedHTMLFunc post-processes markup read
// back from the cache; it only runs when compression is off.
type ModifyGeneratedHTMLFunc func(req *http.Request, html string, revalidate *int) string
type ModifyCachedHTMLFunc func(req *http.Request, html string) string

// Coordinator drives one regeneration: render under a deadline, read the
// page's revalidate directive, transform, and write back to the store.
type Coordinator struct {
	config          types.ConfigManager
	logger          types.Logger
	metrics         types.MetricsManager
	renderer        types.Renderer
	store           types.CacheStore
	registry        *InflightRegistry
	compressor      *Compressor
	modifyGenerated ModifyGeneratedHTMLFunc
	buildID         string
}

func NewCoordinator(
	config types.ConfigManager,
	logger types.Logger,
	metrics types.MetricsManager,
	renderer types.Renderer,
	store types.CacheStore,
	registry *InflightRegistry,
	compressor *Compressor,
	modifyGenerated ModifyGeneratedHTMLFunc,
	buildID string,
) (*Coordinator, error) {
	if renderer == nil {
		return nil, types.ErrRendererIsNil
	}

	if modifyGenerated == nil {
		modifyGenerated = defaultModifyGeneratedHTML
	}

	return &Coordinator{
		config:          config,
		logger:          logger,
		metrics:         metrics,
		renderer:        renderer,
		store:           store,
		registry:        registry,
		compressor:      compressor,
		modifyGenerated: modifyGenerated,
		buildID:         buildID,
	}, nil
}

// Regenerate renders url and refreshes its cache entry. Under
// ModeRegenerate a (nil, nil) return means another regeneration of the
// same key is in flight and this call was skipped. The registry slot is
// released on every exit path, panics included.
func (c *Coordinator) Regenerate(ctx context.Context, req *http.Request, url, cacheKey string, mode RegenerationMode) (*types.RegenerationResult, error) {
	if mode == ModeRegenerate {
		if !c.registry.TryAcquire(cacheKey) {
			c.recordRegeneration(mode, "skipped")
			return nil, nil
		}
		defer c.registry.Release(cacheKey)
	}

	cfg := c.config.GetConfig()

	renderStart := time.Now()
	html, err := Execute(ctx, c.renderTimeout(cfg), "render of "+url+" timed out",
		func(ctx context.Context) (string, error) {
			return c.renderer.Render(ctx, url, req, cfg.Render)
		})
	c.renderDuration().ObserveDuration(renderStart)

	if err != nil {
		c.recordRegeneration(mode, "error")
		c.logger.Warn("render failed",
			zap.String("url", url),
			zap.String("cache_key", cacheKey),
			zap.Error(err))
		return nil, types.WrapError(err, "regeneration of "+cacheKey+" failed")
	}

	var reportedErrors []string
	var revalidate *int

	if state := extractRenderState(html); state != nil {
		reportedErrors = state.Errors
		revalidate = state.Revalidate
	}
	if revalidate == nil {
		revalidate = cfg.DefaultRevalidate
	}

	transformed := c.modifyGenerated(req, html, revalidate)
	result := &types.RegenerationResult{Content: transformed, Errors: reportedErrors}

	skipOnErrors := cfg.SkipCachingOnErrors == nil || *cfg.SkipCachingOnErrors
	if len(reportedErrors) > 0 && skipOnErrors {
		c.recordRegeneration(mode, "render_errors")
		c.logger.Info("page reported errors, skipping cache write",
			zap.String("cache_key", cacheKey),
			zap.Strings("errors", reportedErrors))
		return result, nil
	}

	// nil or negative revalidate means the page opted out of caching.
	if revalidate == nil || *revalidate < 0 {
		c.recordRegeneration(mode, "uncacheable")
		return result, nil
	}

	stored := []byte(transformed)
	if c.compressor != nil {
		compressed, err := c.compressor.Compress(stored)
		if err != nil {
			c.recordRegeneration(mode, "compress_error")
			c.logger.Error("failed to compress entry, skipping cache write",
				zap.String("cache_key", cacheKey), zap.Error(err))
			return result, nil
		}
		stored = compressed
	}

	meta := types.EntryMeta{
		Revalidate: revalidate,
		BuildID:    c.buildID,
		CreatedAt:  time.Now(),
		Errors:     reportedErrors,
	}

	if cfg.NonBlockingRender {
		go c.writeEntry(cacheKey, stored, meta)
	} else {
		c.awaitWriteEntry(ctx, cfg, cacheKey, stored, meta)
	}

	c.recordRegeneration(mode, "success")
	return result, nil
}

// writeEntry is the fire-and-forget path. The write outlives the request
// that spawned it on purpose: later requests benefit from the refresh.
func (c *Coordinator) writeEntry(cacheKey string, content []byte, meta types.EntryMeta) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in background cache write",
				zap.String("cache_key", cacheKey), zap.Any("panic", r))
		}
	}()

	cfg := c.config.GetConfig()
	ctx, cancel := context.WithTimeout(context.Background(), c.cacheTimeout(cfg))
	defer cancel()

	if err := c.store.Add(ctx, cacheKey, content, meta); err != nil {
		c.logger.Error("background cache write failed",
			zap.String("cache_key", cacheKey), zap.Error(err))
	}
}

func (c *Coordinator) awaitWriteEntry(ctx context.Context, cfg *types.ISRConfig, cacheKey string, content []byte, meta types.EntryMeta) {
	_, err := Execute(ctx, c.cacheTimeout(cfg), "cache write for "+cacheKey+" timed out",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.store.Add(ctx, cacheKey, content, meta)
		})
	if err != nil {
		// A failed write never fails the regeneration; the content is
		// still returned and the next request retries the cache.
		c.logger.Error("cache write failed",
			zap.String("cache_key", cacheKey), zap.Error(err))
	}
}

func (c *Coordinator) renderTimeout(cfg *types.ISRConfig) time.Duration {
	if cfg.RenderTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.RenderTimeoutMs) * time.Millisecond
}

func (c *Coordinator) cacheTimeout(cfg *types.ISRConfig) time.Duration {
	if cfg.CacheTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.CacheTimeoutMs) * time.Millisecond
}

func (c *Coordinator) recordRegeneration(mode RegenerationMode, result string) {
	c.metrics.Counter("isr_regenerations_total", map[string]string{
		"mode":   mode.String(),
		"result": result,
	}).Inc()
}

func (c *Coordinator) renderDuration() types.Histogram {
	return c.metrics.Histogram("isr_render_duration_seconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0}, nil)
}
