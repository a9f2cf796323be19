package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

type MemoryState int32

const (
	MemoryStateStopped MemoryState = iota
	MemoryStateStarting
	MemoryStateRunning
	MemoryStateStopping
)

type MemoryConfig struct {
	// MaxEntries caps the number of cached pages; 0 means unbounded.
	// When the cap is reached the oldest entry is evicted first.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

type MemoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	config    *MemoryConfig
	logger    types.Logger
	data      map[string]*types.CacheEntry
	evictions uint64
	mu        sync.RWMutex
	state     atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.CacheStore, error) {
	var memConfig = &MemoryConfig{
		MaxEntries: 0,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, memConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory store config")
		}
	}

	storeCtx, cancel := context.WithCancel(ctx)

	store := &MemoryStore{
		ctx:    storeCtx,
		cancel: cancel,
		logger: logger,
		config: memConfig,
		data:   make(map[string]*types.CacheEntry),
	}

	store.state.Store(MemoryStateStopped)

	return store, nil
}

func (m *MemoryStore) Add(ctx context.Context, key string, content []byte, meta types.EntryMeta) error {
	if key == "" {
		m.logger.Error("Attempted to add cache entry with empty key")
		return types.ErrStoreKeyEmpty
	}

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	entry := &types.CacheEntry{
		Key:        key,
		Content:    make([]byte, len(content)),
		Revalidate: meta.Revalidate,
		BuildID:    meta.BuildID,
		CreatedAt:  createdAt,
		Errors:     meta.Errors,
	}
	copy(entry.Content, content)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxEntries > 0 {
		if _, exists := m.data[key]; !exists && len(m.data) >= m.config.MaxEntries {
			m.evictOneUnsafe()
		}
	}

	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, types.ErrStoreNotFound
	}

	return entry, nil
}

func (m *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, exists := m.data[key]
	m.mu.RUnlock()

	return exists, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists {
		return false, nil
	}

	delete(m.data, key)
	return true, nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}

	return keys, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	cleared := len(m.data)
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()

	m.logger.Info("Memory store cleared", zap.Int("cleared_entries", cleared))
	return nil
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(MemoryStateStopped, MemoryStateStarting) {
		m.logger.Warn("Memory store is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if m.getState() == MemoryStateStarting {
			m.setState(MemoryStateRunning)
		}
	}()

	m.logger.Info("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(MemoryStateRunning, MemoryStateStopping) {
		m.logger.Warn("Memory store is not running")
		return types.ErrNotRunning
	}

	defer func() {
		m.setState(MemoryStateStopped)
	}()

	m.cancel()

	m.mu.Lock()
	entriesCount := len(m.data)
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()

	m.logger.Info("Memory store stopped",
		zap.Int("cleared_entries", entriesCount),
		zap.Uint64("evictions", atomic.LoadUint64(&m.evictions)))
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == MemoryStateRunning
}

func (m *MemoryStore) getState() MemoryState {
	return m.state.Load().(MemoryState)
}

func (m *MemoryStore) setState(newState MemoryState) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryStore) transitionState(from, to MemoryState) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *MemoryStore) evictOneUnsafe() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(m.data, oldestKey)
		atomic.AddUint64(&m.evictions, 1)
	}
}
