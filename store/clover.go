package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

type CloverConfig struct {
	Path       string `yaml:"path" json:"path"`
	Collection string `yaml:"collection" json:"collection"`
}

// CloverStore keeps entries in an embedded document database. The whole
// entry is stored as one JSON string field so the codec stays the same as
// the other backends; a separate key field carries the lookup index.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	state  atomic.Value
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.CacheStore, error) {
	var cloverConfig = &CloverConfig{
		Path:       ".isr-clover",
		Collection: "isr_entries",
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover store config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.Errorf(types.ErrStoreConnectFailed, "clover at %s: %v", cloverConfig.Path, err)
	}

	exists, err := db.HasCollection(cloverConfig.Collection)
	if err != nil {
		db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := db.CreateCollection(cloverConfig.Collection); err != nil {
			db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	store := &CloverStore{
		db:     db,
		logger: logger,
		config: cloverConfig,
	}

	store.state.Store(MemoryStateStopped)
	return store, nil
}

func (c *CloverStore) Add(ctx context.Context, key string, content []byte, meta types.EntryMeta) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	entry := &types.CacheEntry{
		Key:        key,
		Content:    content,
		Revalidate: meta.Revalidate,
		BuildID:    meta.BuildID,
		CreatedAt:  createdAt,
		Errors:     meta.Errors,
	}

	data, err := utils.Marshal(entry)
	if err != nil {
		return types.WrapError(err, "failed to marshal cache entry")
	}

	if err := c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
		return types.Errorf(types.ErrStoreOperationFailed, "delete old %s: %v", key, err)
	}

	doc := clover.NewDocument()
	doc.Set("internal_id", uuid.New().String())
	doc.Set("key", key)
	doc.Set("entry", utils.BytesToString(data))

	if err := c.db.Insert(c.config.Collection, doc); err != nil {
		return types.Errorf(types.ErrStoreOperationFailed, "insert %s: %v", key, err)
	}

	return nil
}

func (c *CloverStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	doc, err := c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return nil, types.Errorf(types.ErrStoreOperationFailed, "find %s: %v", key, err)
	}

	if doc == nil {
		return nil, types.ErrStoreNotFound
	}

	raw, ok := doc.Get("entry").(string)
	if !ok {
		c.logger.Error("cache document has no entry field, dropping it", zap.String("key", key))
		c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key)).Delete()
		return nil, types.ErrStoreNotFound
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Error("failed to unmarshal cache entry, dropping it",
			zap.String("key", key), zap.Error(err))
		c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key)).Delete()
		return nil, types.ErrStoreNotFound
	}

	return &entry, nil
}

func (c *CloverStore) Has(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	doc, err := c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return false, types.Errorf(types.ErrStoreOperationFailed, "find %s: %v", key, err)
	}

	return doc != nil, nil
}

func (c *CloverStore) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	query := c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key))

	count, err := query.Count()
	if err != nil {
		return false, types.Errorf(types.ErrStoreOperationFailed, "count %s: %v", key, err)
	}

	if count == 0 {
		return false, nil
	}

	if err := query.Delete(); err != nil {
		return false, types.Errorf(types.ErrStoreOperationFailed, "delete %s: %v", key, err)
	}

	return true, nil
}

func (c *CloverStore) ListAll(ctx context.Context) ([]string, error) {
	docs, err := c.db.Query(c.config.Collection).FindAll()
	if err != nil {
		return nil, types.Errorf(types.ErrStoreOperationFailed, "find all: %v", err)
	}

	var keys []string
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (c *CloverStore) Clear(ctx context.Context) error {
	if err := c.db.Query(c.config.Collection).Delete(); err != nil {
		return types.Errorf(types.ErrStoreOperationFailed, "clear: %v", err)
	}

	c.logger.Info("Clover store cleared")
	return nil
}

func (c *CloverStore) Start() error {
	if !c.transitionState(MemoryStateStopped, MemoryStateStarting) {
		return types.ErrAlreadyRunning
	}

	defer func() {
		if c.getState() == MemoryStateStarting {
			c.setState(MemoryStateRunning)
		}
	}()

	c.logger.Info("Clover store started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.transitionState(MemoryStateRunning, MemoryStateStopping) {
		return types.ErrNotRunning
	}

	defer func() {
		c.setState(MemoryStateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover db")
	}

	c.logger.Info("Clover store stopped")
	return nil
}

func (c *CloverStore) IsRunning() bool {
	return c.getState() == MemoryStateRunning
}

func (c *CloverStore) getState() MemoryState {
	return c.state.Load().(MemoryState)
}

func (c *CloverStore) setState(newState MemoryState) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverStore) transitionState(from, to MemoryState) bool {
	return c.state.CompareAndSwap(from, to)
}
