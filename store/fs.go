package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

type FileConfig struct {
	Path string `yaml:"path" json:"path"`
	// DirMode and FileMode are numeric permission bits, e.g. 0o755
	// (YAML/JSON configs pass them as numbers, not quoted strings).
	DirMode  os.FileMode `yaml:"dir_mode" json:"dir_mode"`
	FileMode os.FileMode `yaml:"file_mode" json:"file_mode"`
}

// FileStore writes one JSON document per cache key. File names are derived
// from a hash of the key; the original key travels inside the document so
// ListAll can recover it.
type FileStore struct {
	ctx     context.Context
	logger  types.Logger
	config  *FileConfig
	mu      sync.RWMutex
	started int32
}

func NewFileStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.CacheStore, error) {
	var fileConfig = &FileConfig{
		Path:     ".isr-cache",
		DirMode:  0o755,
		FileMode: 0o644,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, fileConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal file store config")
		}
	}

	if err := os.MkdirAll(fileConfig.Path, fileConfig.DirMode); err != nil {
		return nil, types.Errorf(types.ErrStoreConnectFailed, "mkdir %s: %v", fileConfig.Path, err)
	}

	return &FileStore{
		ctx:    ctx,
		logger: logger,
		config: fileConfig,
	}, nil
}

func (f *FileStore) Add(ctx context.Context, key string, content []byte, meta types.EntryMeta) error {
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

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.entryPath(key)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, f.config.FileMode); err != nil {
		return types.Errorf(types.ErrStoreOperationFailed, "write %s: %v", key, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return types.Errorf(types.ErrStoreOperationFailed, "rename %s: %v", key, err)
	}

	return nil
}

func (f *FileStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	f.mu.RLock()
	data, err := os.ReadFile(f.entryPath(key))
	f.mu.RUnlock()

	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrStoreNotFound
		}
		return nil, types.Errorf(types.ErrStoreOperationFailed, "read %s: %v", key, err)
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal(data, &entry); err != nil {
		f.logger.Error("failed to unmarshal cache entry, dropping it",
			zap.String("key", key), zap.Error(err))
		f.mu.Lock()
		os.Remove(f.entryPath(key))
		f.mu.Unlock()
		return nil, types.ErrStoreNotFound
	}

	return &entry, nil
}

func (f *FileStore) Has(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	f.mu.RLock()
	_, err := os.Stat(f.entryPath(key))
	f.mu.RUnlock()

	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, types.Errorf(types.ErrStoreOperationFailed, "stat %s: %v", key, err)
	}

	return true, nil
}

func (f *FileStore) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	f.mu.Lock()
	err := os.Remove(f.entryPath(key))
	f.mu.Unlock()

	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, types.Errorf(types.ErrStoreOperationFailed, "remove %s: %v", key, err)
	}

	return true, nil
}

func (f *FileStore) ListAll(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	files, err := os.ReadDir(f.config.Path)
	if err != nil {
		return nil, types.Errorf(types.ErrStoreOperationFailed, "readdir: %v", err)
	}

	// Keys live inside the documents, so every file has to be read back.
	// A file that fails to read or parse is skipped, not fatal.
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)

	var keysMu sync.Mutex
	var keys []string

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		name := file.Name()
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := os.ReadFile(filepath.Join(f.config.Path, name))
			if err != nil {
				f.logger.Warn("failed to read cache file", zap.String("file", name), zap.Error(err))
				return nil
			}

			var entry types.CacheEntry
			if err := utils.Unmarshal(data, &entry); err != nil {
				f.logger.Warn("failed to parse cache file", zap.String("file", name), zap.Error(err))
				return nil
			}

			keysMu.Lock()
			keys = append(keys, entry.Key)
			keysMu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	files, err := os.ReadDir(f.config.Path)
	if err != nil {
		return types.Errorf(types.ErrStoreOperationFailed, "readdir: %v", err)
	}

	cleared := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		if err := os.Remove(filepath.Join(f.config.Path, file.Name())); err != nil {
			f.logger.Warn("failed to remove cache file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}
		cleared++
	}

	f.logger.Info("File store cleared", zap.Int("cleared_entries", cleared))
	return nil
}

func (f *FileStore) Start() error {
	if !atomic.CompareAndSwapInt32(&f.started, 0, 1) {
		return types.ErrAlreadyRunning
	}

	f.logger.Info("File store started", zap.String("path", f.config.Path))
	return nil
}

func (f *FileStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&f.started, 1, 0) {
		return types.ErrNotRunning
	}

	f.logger.Info("File store stopped")
	return nil
}

func (f *FileStore) IsRunning() bool {
	return atomic.LoadInt32(&f.started) == 1
}

func (f *FileStore) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.config.Path, hex.EncodeToString(sum[:])+".json")
}
