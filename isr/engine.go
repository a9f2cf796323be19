package isr

import (
	"context"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/store"
	"github.com/saiset-co/sai-isr/types"
)

type EngineState int32

const (
	EngineStateStopped EngineState = iota
	EngineStateStarting
	EngineStateRunning
	EngineStateStopping
)

// Options carries the embedder-supplied collaborators. Renderer is the
// only required one.
type Options struct {
	Renderer types.Renderer
	Variants []types.Variant

	// KeyGenerator overrides DefaultCacheKeyGenerator. Every component
	// derives keys through it, so overriding it changes key derivation
	// everywhere at once.
	KeyGenerator types.CacheKeyGenerator

	// ModifyGeneratedHTML transforms freshly rendered markup before it is
	// cached; nil falls back to a revalidate-comment stamp.
	// ModifyCachedHTML transforms markup read back from the cache, for
	// diagnostics; it is skipped entirely when compression is on.
	ModifyGeneratedHTML ModifyGeneratedHTMLFunc
	ModifyCachedHTML    ModifyCachedHTMLFunc

	// Store overrides the config-driven store factory.
	Store types.CacheStore
}

// Engine ties the serve, regeneration, and invalidation controllers
// together behind one lifecycle.
type Engine struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          types.Logger
	metrics         types.MetricsManager
	store           types.CacheStore
	registry        *InflightRegistry
	coordinator     *Coordinator
	compressor      *Compressor
	variants        []types.Variant
	generateKey     types.CacheKeyGenerator
	modifyCached    ModifyCachedHTMLFunc
	validate        *validator.Validate
	buildID         string
	cron            *cron.Cron
	state           atomic.Value
	bgRegenerations sync.WaitGroup
	shutdownTimeout time.Duration
}

func NewEngine(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, opts Options) (*Engine, error) {
	if opts.Renderer == nil {
		return nil, types.ErrRendererIsNil
	}

	cfg := config.GetConfig()
	if cfg == nil {
		return nil, types.ErrConfigIsNil
	}

	engineCtx, cancel := context.WithCancel(ctx)

	cacheStore := opts.Store
	if cacheStore == nil {
		var err error
		cacheStore, err = store.NewCacheStore(engineCtx, config, logger, metrics)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	var compressor *Compressor
	if cfg.Compression != nil && cfg.Compression.Enabled {
		var err error
		compressor, err = NewCompressor(cfg.Compression)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	generateKey := opts.KeyGenerator
	if generateKey == nil {
		generateKey = DefaultCacheKeyGenerator
	}

	buildID := resolveBuildID(cfg)
	registry := NewInflightRegistry()

	coordinator, err := NewCoordinator(config, logger, metrics, opts.Renderer,
		cacheStore, registry, compressor, opts.ModifyGeneratedHTML, buildID)
	if err != nil {
		cancel()
		return nil, err
	}

	engine := &Engine{
		ctx:             engineCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		metrics:         metrics,
		store:           cacheStore,
		registry:        registry,
		coordinator:     coordinator,
		compressor:      compressor,
		variants:        opts.Variants,
		generateKey:     generateKey,
		modifyCached:    opts.ModifyCachedHTML,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		buildID:         buildID,
		shutdownTimeout: 10 * time.Second,
	}

	engine.state.Store(EngineStateStopped)

	if cfg.Schedule != nil && cfg.Schedule.Enabled {
		if err := engine.setupSchedule(cfg.Schedule); err != nil {
			cancel()
			return nil, err
		}
	}

	logger.Info("ISR engine initialized",
		zap.String("store", storeType(cfg)),
		zap.String("build_id", buildID),
		zap.Int("variants", len(opts.Variants)),
		zap.Bool("compression", compressor != nil))

	return engine, nil
}

// Serve answers req from the cache. The second return value reports
// whether the response should be sent; false means fall through to live
// rendering. Internal failures never surface as errors, they degrade to
// fallthrough.
func (e *Engine) Serve(ctx context.Context, req *http.Request) (result *types.ServeResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while serving from cache", zap.Any("panic", r))
			result, ok = nil, false
		}
	}()

	cfg := e.config.GetConfig()
	url := req.URL.RequestURI()

	variant := DetectVariant(req, e.variants)
	cacheKey := e.generateKey(url, cfg.AllowedQueryParams, variant)

	entry, err := Execute(ctx, e.cacheTimeout(cfg), "cache lookup for "+cacheKey+" timed out",
		func(ctx context.Context) (*types.CacheEntry, error) {
			return e.store.Get(ctx, cacheKey)
		})
	if err != nil {
		if !types.IsError(err, types.ErrStoreNotFound) {
			e.metrics.Counter("isr_store_degraded_total", nil).Inc()
			e.logger.Warn("cache lookup failed, falling through to live render",
				zap.String("cache_key", cacheKey), zap.Error(err))
		}
		e.recordServe("miss")
		return nil, false
	}

	// An entry stamped by a previous deployment is a miss.
	if e.buildID != "" && entry.BuildID != e.buildID {
		e.recordServe("stale_build")
		return nil, false
	}

	content := entry.Content
	if e.compressor != nil {
		content, err = e.compressor.Decompress(content)
		if err != nil {
			e.logger.Warn("failed to decompress cache entry, falling through",
				zap.String("cache_key", cacheKey), zap.Error(err))
			e.recordServe("miss")
			return nil, false
		}
	}

	if !entry.IsStale(time.Now()) {
		e.recordServe("hit")
		return &types.ServeResult{Content: e.applyCachedTransform(req, content)}, true
	}

	if cfg.BackgroundRevalidation {
		e.spawnRegeneration(req, url, cacheKey)
		e.recordServe("stale")
		return &types.ServeResult{Content: e.applyCachedTransform(req, content), Stale: true}, true
	}

	fresh, err := e.coordinator.Regenerate(ctx, req, url, cacheKey, ModeRegenerate)
	if err != nil {
		e.recordServe("regen_failed")
		return nil, false
	}

	// nil result without error means another regeneration holds the key;
	// its outcome will land in the cache, so the stale copy is served.
	if fresh == nil {
		e.recordServe("stale")
		return &types.ServeResult{Content: e.applyCachedTransform(req, content), Stale: true}, true
	}

	e.recordServe("regenerated")
	return &types.ServeResult{Content: []byte(fresh.Content)}, true
}

// spawnRegeneration fires a detached stale-refresh. It deliberately drops
// the request's cancellation: other requests benefit from the refresh even
// if this caller goes away.
func (e *Engine) spawnRegeneration(req *http.Request, url, cacheKey string) {
	detached := req.Clone(context.Background())

	e.bgRegenerations.Add(1)
	go func() {
		defer e.bgRegenerations.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("panic in background regeneration",
					zap.String("cache_key", cacheKey), zap.Any("panic", r))
			}
		}()

		if _, err := e.coordinator.Regenerate(context.Background(), detached, url, cacheKey, ModeRegenerate); err != nil {
			e.logger.Warn("background regeneration failed",
				zap.String("cache_key", cacheKey), zap.Error(err))
		}
	}()
}

func (e *Engine) applyCachedTransform(req *http.Request, content []byte) []byte {
	// The debug transform cannot operate on compressed bytes.
	if e.compressor != nil || e.modifyCached == nil {
		return content
	}
	return []byte(e.modifyCached(req, string(content)))
}

func (e *Engine) Start() error {
	if !e.transitionState(EngineStateStopped, EngineStateStarting) {
		return types.ErrEngineAlreadyRunning
	}

	defer func() {
		if e.getState() == EngineStateStarting {
			e.setState(EngineStateRunning)
		}
	}()

	if err := e.store.Start(); err != nil && !types.IsError(err, types.ErrAlreadyRunning) {
		e.setState(EngineStateStopped)
		return types.WrapError(err, "failed to start cache store")
	}

	if e.cron != nil {
		e.cron.Start()
	}

	e.logger.Info("ISR engine started")
	return nil
}

func (e *Engine) Stop() error {
	if !e.transitionState(EngineStateRunning, EngineStateStopping) {
		return types.ErrEngineNotRunning
	}

	defer func() {
		e.setState(EngineStateStopped)
		e.cancel()
	}()

	if e.cron != nil {
		stopCtx := e.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(e.shutdownTimeout):
			e.logger.Warn("scheduled revalidation jobs did not stop in time")
		}
	}

	drained := make(chan struct{})
	go func() {
		e.bgRegenerations.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(e.shutdownTimeout):
		e.logger.Warn("background regenerations still running at shutdown")
	}

	if err := e.store.Stop(); err != nil && !types.IsError(err, types.ErrNotRunning) {
		e.logger.Error("failed to stop cache store", zap.Error(err))
		return err
	}

	e.logger.Info("ISR engine stopped")
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.getState() == EngineStateRunning
}

// Generate renders req's URL right now and caches the result. It never
// deduplicates: callers use it on a cache miss, where skipping behind an
// unrelated in-flight regeneration would not produce the needed entry.
func (e *Engine) Generate(ctx context.Context, req *http.Request) (*types.RegenerationResult, error) {
	cfg := e.config.GetConfig()
	url := req.URL.RequestURI()

	variant := DetectVariant(req, e.variants)
	cacheKey := e.generateKey(url, cfg.AllowedQueryParams, variant)

	return e.coordinator.Regenerate(ctx, req, url, cacheKey, ModeGenerate)
}

// Store exposes the engine's cache store, mainly for operational tooling.
func (e *Engine) Store() types.CacheStore {
	return e.store
}

func (e *Engine) BuildID() string {
	return e.buildID
}

func (e *Engine) getState() EngineState {
	return e.state.Load().(EngineState)
}

func (e *Engine) setState(newState EngineState) bool {
	currentState := e.getState()
	return e.state.CompareAndSwap(currentState, newState)
}

func (e *Engine) transitionState(from, to EngineState) bool {
	return e.state.CompareAndSwap(from, to)
}

func (e *Engine) cacheTimeout(cfg *types.ISRConfig) time.Duration {
	if cfg.CacheTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.CacheTimeoutMs) * time.Millisecond
}

func (e *Engine) recordServe(result string) {
	e.metrics.Counter("isr_serve_total", map[string]string{"result": result}).Inc()
}

// resolveBuildID prefers the configured id and falls back to the build
// stamp baked into the environment at deploy time.
func resolveBuildID(cfg *types.ISRConfig) string {
	if cfg.BuildID != "" {
		return cfg.BuildID
	}
	if v := os.Getenv("BUILD_VERSION"); v != "" {
		return v
	}
	return os.Getenv("BUILD_COMMIT")
}

func storeType(cfg *types.ISRConfig) string {
	if cfg.Store == nil {
		return ""
	}
	return cfg.Store.Type
}

var _ types.LifecycleManager = (*Engine)(nil)
