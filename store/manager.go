package store

import (
	"context"
	"time"

	"github.com/saiset-co/sai-isr/types"
)

var customStoreCreators = make(map[string]types.CacheStoreCreator)

func RegisterCacheStore(storeName string, creator types.CacheStoreCreator) {
	customStoreCreators[storeName] = creator
}

func NewCacheStore(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	storeConfig := config.GetConfig().Store

	if storeConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	storeName := storeConfig.Type

	var impl types.CacheStore
	var err error

	switch storeName {
	case "memory":
		impl, err = NewMemoryStore(ctx, logger, storeConfig)
	case "redis":
		impl, err = NewRedisStore(ctx, logger, storeConfig)
	case "fs":
		impl, err = NewFileStore(ctx, logger, storeConfig)
	case "clover":
		impl, err = NewCloverStore(ctx, logger, storeConfig)
	default:
		if creator, exists := customStoreCreators[storeName]; exists {
			impl, err = creator(storeConfig)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeName)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedStore(logger, metrics, impl), nil
}

type instrumentedStore struct {
	impl    types.CacheStore
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedStore(logger types.Logger, metrics types.MetricsManager, impl types.CacheStore) types.CacheStore {
	return &instrumentedStore{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (is *instrumentedStore) Add(ctx context.Context, key string, content []byte, meta types.EntryMeta) error {
	start := time.Now()
	err := is.impl.Add(ctx, key, content, meta)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("add", result, duration)
	return err
}

func (is *instrumentedStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	start := time.Now()
	entry, err := is.impl.Get(ctx, key)
	duration := time.Since(start)

	result := "hit"
	if err != nil {
		result = "error"
		if types.IsError(err, types.ErrStoreNotFound) {
			result = "miss"
		}
	}

	is.recordMetric("get", result, duration)
	return entry, err
}

func (is *instrumentedStore) Has(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	exists, err := is.impl.Has(ctx, key)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("has", result, duration)
	return exists, err
}

func (is *instrumentedStore) Delete(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	deleted, err := is.impl.Delete(ctx, key)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("delete", result, duration)
	return deleted, err
}

func (is *instrumentedStore) ListAll(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := is.impl.ListAll(ctx)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("list_all", result, duration)
	return keys, err
}

func (is *instrumentedStore) Clear(ctx context.Context) error {
	start := time.Now()
	err := is.impl.Clear(ctx)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("clear", result, duration)
	return err
}

func (is *instrumentedStore) Start() error {
	start := time.Now()
	err := is.impl.Start()
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("start", result, duration)
	return err
}

func (is *instrumentedStore) Stop() error {
	return is.impl.Stop()
}

func (is *instrumentedStore) IsRunning() bool {
	return is.impl.IsRunning()
}

func (is *instrumentedStore) recordMetric(operation, result string, duration time.Duration) {
	opCounter := is.metrics.Counter("cache_store_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("cache_store_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
