package store

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

type RedisConfig struct {
	Host               string        `yaml:"host" json:"host"`
	Port               int           `yaml:"port" json:"port"`
	Password           string        `yaml:"password" json:"password"`
	DB                 int           `yaml:"db" json:"db"`
	PoolSize           int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConnections int           `yaml:"min_idle_connections" json:"min_idle_connections"`
	DialTimeout        time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix          string        `yaml:"key_prefix" json:"key_prefix"`
	ScanCount          int64         `yaml:"scan_count" json:"scan_count"`
}

// RedisStore persists entries without a redis TTL. Stale entries must stay
// readable for stale-while-revalidate serving, so expiry is decided by the
// serve path, never by the backend.
type RedisStore struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	started int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.CacheStore, error) {
	var redisConfig = &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		Password:           "",
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "sai-isr",
		ScanCount:          100,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis store config")
		}
	}

	store := &RedisStore{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
	}

	store.initRedisClient()

	if err := store.ping(); err != nil {
		return nil, types.Errorf(types.ErrStoreConnectFailed, "redis at %s:%d: %v",
			redisConfig.Host, redisConfig.Port, err)
	}

	return store, nil
}

func (r *RedisStore) Add(ctx context.Context, key string, content []byte, meta types.EntryMeta) error {
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

	if err := r.client.Set(ctx, r.buildFullKey(key), data, 0).Err(); err != nil {
		r.logger.Error("failed to set cache entry", zap.String("key", key), zap.Error(err))
		return types.Errorf(types.ErrStoreOperationFailed, "set %s: %v", key, err)
	}

	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	result, err := r.client.Get(ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, types.ErrStoreNotFound
		}
		return nil, types.Errorf(types.ErrStoreOperationFailed, "get %s: %v", key, err)
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal(result, &entry); err != nil {
		r.logger.Error("failed to unmarshal cache entry, dropping it",
			zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, r.buildFullKey(key))
		return nil, types.ErrStoreNotFound
	}

	return &entry, nil
}

func (r *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	count, err := r.client.Exists(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		return false, types.Errorf(types.ErrStoreOperationFailed, "exists %s: %v", key, err)
	}

	return count > 0, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	deleted, err := r.client.Del(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		return false, types.Errorf(types.ErrStoreOperationFailed, "del %s: %v", key, err)
	}

	return deleted > 0, nil
}

func (r *RedisStore) ListAll(ctx context.Context) ([]string, error) {
	var keys []string
	prefix := r.buildFullKey("")

	iter := r.client.Scan(ctx, 0, prefix+"*", r.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}

	if err := iter.Err(); err != nil {
		return nil, types.Errorf(types.ErrStoreOperationFailed, "scan: %v", err)
	}

	return keys, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	keys, err := r.ListAll(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = r.buildFullKey(key)
	}

	if err := r.client.Del(ctx, fullKeys...).Err(); err != nil {
		return types.Errorf(types.ErrStoreOperationFailed, "clear: %v", err)
	}

	r.logger.Info("Redis store cleared", zap.Int("cleared_entries", len(keys)))
	return nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrAlreadyRunning
	}

	r.logger.Info("Redis store started",
		zap.String("addr", fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)),
		zap.String("key_prefix", r.config.KeyPrefix))

	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrNotRunning
	}

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Error("Failed to close redis client", zap.Error(err))
			return types.WrapError(err, "failed to close redis client")
		}
	}

	r.logger.Info("Redis store stopped")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) initRedisClient() {
	r.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", r.config.Host, r.config.Port),
		Password:     r.config.Password,
		DB:           r.config.DB,
		PoolSize:     r.config.PoolSize,
		MinIdleConns: r.config.MinIdleConnections,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	})
}

func (r *RedisStore) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) buildFullKey(key string) string {
	if r.config.KeyPrefix != "" {
		return r.config.KeyPrefix + ":" + key
	}
	return key
}
