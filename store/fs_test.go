package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/saiset-co/sai-isr/logger"
	"github.com/saiset-co/sai-isr/types"
)

func newTestFileStore(t *testing.T) types.CacheStore {
	t.Helper()

	s, err := NewFileStore(context.Background(), logger.NewNopLogger(), &types.StoreConfig{
		Type:   "fs",
		Config: &FileConfig{Path: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	meta := types.EntryMeta{
		Revalidate: types.Revalidate(0),
		BuildID:    "deploy-7",
		CreatedAt:  time.Now(),
		Errors:     []string{"upstream 502"},
	}

	if err := s.Add(ctx, "/products?page=2", []byte("<html>products</html>"), meta); err != nil {
		t.Fatalf("Add: %v", err)
	}

	entry, err := s.Get(ctx, "/products?page=2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if entry.Key != "/products?page=2" {
		t.Errorf("key = %q", entry.Key)
	}
	if string(entry.Content) != "<html>products</html>" {
		t.Errorf("content = %q", entry.Content)
	}
	if entry.Revalidate == nil || *entry.Revalidate != 0 {
		t.Errorf("revalidate = %v, want 0", entry.Revalidate)
	}
	if len(entry.Errors) != 1 || entry.Errors[0] != "upstream 502" {
		t.Errorf("errors = %v", entry.Errors)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "/page", []byte("first"), types.EntryMeta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, "/page", []byte("second"), types.EntryMeta{}); err != nil {
		t.Fatalf("Add overwrite: %v", err)
	}

	entry, err := s.Get(ctx, "/page")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Content) != "second" {
		t.Errorf("content = %q, want second", entry.Content)
	}

	keys, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("len(keys) = %d, want 1", len(keys))
	}
}

func TestFileStoreHasDelete(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	exists, err := s.Has(ctx, "/missing")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if exists {
		t.Error("Has reported true for missing key")
	}

	if err := s.Add(ctx, "/page", []byte("x"), types.EntryMeta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	exists, err = s.Has(ctx, "/page")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !exists {
		t.Error("Has reported false for existing key")
	}

	deleted, err := s.Delete(ctx, "/page")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("Delete reported false for existing key")
	}

	if _, err := s.Get(ctx, "/page"); !types.IsError(err, types.ErrStoreNotFound) {
		t.Errorf("Get after delete err = %v, want ErrStoreNotFound", err)
	}
}

func TestFileStoreDistinctKeysDistinctFiles(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "/page?a=1", []byte("one"), types.EntryMeta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, "/page?a=2", []byte("two"), types.EntryMeta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	one, err := s.Get(ctx, "/page?a=1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	two, err := s.Get(ctx, "/page?a=2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(one.Content) == string(two.Content) {
		t.Error("distinct keys returned the same content")
	}
}

func TestFileStoreNumericModeConfig(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(context.Background(), logger.NewNopLogger(), &types.StoreConfig{
		Type: "fs",
		Config: map[string]interface{}{
			"path":      dir,
			"dir_mode":  0o700,
			"file_mode": 0o600,
		},
	})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	if err := s.Add(ctx, "/page", []byte("x"), types.EntryMeta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1", len(files))
	}

	info, err := files[0].Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("file mode = %v, want 0600", got)
	}
}

func TestFileStoreClear(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	for _, key := range []string{"/a", "/b"} {
		if err := s.Add(ctx, key, []byte(key), types.EntryMeta{}); err != nil {
			t.Fatalf("Add %s: %v", key, err)
		}
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	keys, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("len(keys) = %d after clear, want 0", len(keys))
	}
}
