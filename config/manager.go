package config

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-isr/types"
)

type Manager struct {
	ctx         context.Context
	config      atomic.Pointer[types.ISRConfig]
	configPath  string
	loader      *Loader
	loadTimeout time.Duration
}

func NewManager(ctx context.Context, configPath string) (*Manager, error) {
	cm := &Manager{
		ctx:         ctx,
		configPath:  configPath,
		loader:      NewLoader(),
		loadTimeout: 30 * time.Second,
	}

	if err := cm.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// NewStaticManager wraps an in-code configuration, for embedders that do
// not want file-based config. Defaults are applied to unset fields and the
// result is validated the same way a file load would be.
func NewStaticManager(config *types.ISRConfig) (*Manager, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	loader := NewLoader()
	applyDefaults(config, loader.Defaults())

	if err := loader.Validate(config); err != nil {
		return nil, err
	}

	cm := &Manager{
		ctx:    context.Background(),
		loader: loader,
	}
	cm.config.Store(config)

	return cm, nil
}

func (cm *Manager) Load() error {
	if cm.configPath == "" {
		return types.ErrConfigNotFound
	}

	loadCtx, cancel := context.WithTimeout(cm.ctx, cm.loadTimeout)
	defer cancel()

	config, err := cm.loader.LoadFromFile(loadCtx, cm.configPath)
	if err != nil {
		return err
	}

	cm.config.Store(config)
	return nil
}

func (cm *Manager) GetConfig() *types.ISRConfig {
	return cm.config.Load()
}

func applyDefaults(config, defaults *types.ISRConfig) {
	if config.SkipCachingOnErrors == nil {
		config.SkipCachingOnErrors = defaults.SkipCachingOnErrors
	}
	if config.CacheTimeoutMs <= 0 {
		config.CacheTimeoutMs = defaults.CacheTimeoutMs
	}
	if config.RenderTimeoutMs <= 0 {
		config.RenderTimeoutMs = defaults.RenderTimeoutMs
	}
	if config.Store == nil {
		config.Store = defaults.Store
	}
	if config.Compression == nil {
		config.Compression = defaults.Compression
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.Schedule == nil {
		config.Schedule = defaults.Schedule
	}
}

var _ types.ConfigManager = (*Manager)(nil)
