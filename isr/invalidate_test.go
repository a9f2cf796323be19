package isr

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/saiset-co/sai-isr/logger"
	"github.com/saiset-co/sai-isr/store"
	"github.com/saiset-co/sai-isr/types"
)

// countingStore tallies every operation that reaches the underlying store.
type countingStore struct {
	types.CacheStore
	ops int64
}

func (c *countingStore) Add(ctx context.Context, key string, content []byte, meta types.EntryMeta) error {
	atomic.AddInt64(&c.ops, 1)
	return c.CacheStore.Add(ctx, key, content, meta)
}

func (c *countingStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	atomic.AddInt64(&c.ops, 1)
	return c.CacheStore.Get(ctx, key)
}

func (c *countingStore) Has(ctx context.Context, key string) (bool, error) {
	atomic.AddInt64(&c.ops, 1)
	return c.CacheStore.Has(ctx, key)
}

func (c *countingStore) Delete(ctx context.Context, key string) (bool, error) {
	atomic.AddInt64(&c.ops, 1)
	return c.CacheStore.Delete(ctx, key)
}

func (c *countingStore) operations() int64 {
	return atomic.LoadInt64(&c.ops)
}

func TestInvalidateRejectsWrongSecret(t *testing.T) {
	counting := &countingStore{CacheStore: newMemoryStoreForTest(t)}
	engine := newTestEngine(t, newTestConfig(t, nil), Options{
		Renderer: &fakeRenderer{html: "<html></html>"},
		Store:    counting,
	})

	_, err := engine.Invalidate(context.Background(), "wrong-secret", []string{"/page"})
	if !types.IsError(err, types.ErrInvalidateUnauthorized) {
		t.Fatalf("err = %v, want ErrInvalidateUnauthorized", err)
	}
	if counting.operations() != 0 {
		t.Errorf("rejected call performed %d store operations", counting.operations())
	}
}

func TestInvalidateRequiresConfiguredSecret(t *testing.T) {
	cfg := newTestConfig(t, func(c *types.ISRConfig) {
		c.InvalidateSecret = ""
	})
	engine := newTestEngine(t, cfg, Options{
		Renderer: &fakeRenderer{html: "<html></html>"},
	})

	_, err := engine.Invalidate(context.Background(), "anything", []string{"/page"})
	if !types.IsError(err, types.ErrNoSecretConfigured) {
		t.Errorf("err = %v, want ErrNoSecretConfigured", err)
	}
}

func TestInvalidateAcceptsHashedSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	cfg := newTestConfig(t, func(c *types.ISRConfig) {
		c.InvalidateSecret = ""
		c.InvalidateSecretHash = string(hash)
	})
	engine := newTestEngine(t, cfg, Options{
		Renderer: &fakeRenderer{html: pageWithState("body", `{"revalidate":60}`)},
	})

	if _, err := engine.Invalidate(context.Background(), "hashed-secret", []string{"/page"}); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
	if _, err := engine.Invalidate(context.Background(), "wrong", []string{"/page"}); !types.IsError(err, types.ErrInvalidateUnauthorized) {
		t.Errorf("err = %v, want ErrInvalidateUnauthorized", err)
	}
}

func TestInvalidateRejectsEmptyURLList(t *testing.T) {
	engine := newTestEngine(t, newTestConfig(t, nil), Options{
		Renderer: &fakeRenderer{html: "<html></html>"},
	})

	_, err := engine.Invalidate(context.Background(), "test-secret", nil)
	if !types.IsError(err, types.ErrInvalidatePayload) {
		t.Errorf("err = %v, want ErrInvalidatePayload", err)
	}
}

func TestInvalidateExpandsVariants(t *testing.T) {
	renderer := &fakeRenderer{html: pageWithState("rebuilt", `{"revalidate":60}`)}
	engine := newTestEngine(t, newTestConfig(t, nil), Options{
		Renderer: renderer,
		Variants: []types.Variant{{ID: "mobile"}, {ID: "amp"}},
	})

	meta := types.EntryMeta{
		Revalidate: types.Revalidate(300),
		BuildID:    "test-build",
		CreatedAt:  time.Now(),
	}
	// Only some of the six expanded keys are cached.
	seedEntry(t, engine, "/a", "a", meta)
	seedEntry(t, engine, "/a|mobile", "a-mobile", meta)
	seedEntry(t, engine, "/b|amp", "b-amp", meta)

	report, err := engine.Invalidate(context.Background(), "test-secret", []string{"/a", "/b"})
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if got := len(report.InvalidatedURLs) + len(report.NotInCache) + len(report.URLWithErrors); got != 6 {
		t.Errorf("report covers %d items, want 6", got)
	}

	wantInvalidated := map[string]bool{"/a": true, "/a|mobile": true, "/b|amp": true}
	for _, key := range report.InvalidatedURLs {
		if !wantInvalidated[key] {
			t.Errorf("unexpected invalidated key %q", key)
		}
		delete(wantInvalidated, key)
	}
	if len(wantInvalidated) != 0 {
		t.Errorf("keys never invalidated: %v", wantInvalidated)
	}

	wantMissing := map[string]bool{"/a|amp": true, "/b": true, "/b|mobile": true}
	for _, key := range report.NotInCache {
		if !wantMissing[key] {
			t.Errorf("unexpected missing key %q", key)
		}
		delete(wantMissing, key)
	}
	if len(wantMissing) != 0 {
		t.Errorf("keys not reported missing: %v", wantMissing)
	}

	if renderer.callCount() != 3 {
		t.Errorf("renderer calls = %d, want one per cached key", renderer.callCount())
	}
}

func TestInvalidateRefreshesEntry(t *testing.T) {
	renderer := &fakeRenderer{html: pageWithState("rebuilt", `{"revalidate":60}`)}
	engine := newTestEngine(t, newTestConfig(t, nil), Options{Renderer: renderer})

	seedEntry(t, engine, "/page", "old", types.EntryMeta{
		Revalidate: types.Revalidate(300),
		BuildID:    "test-build",
		CreatedAt:  time.Now().Add(-time.Hour),
	})

	report, err := engine.Invalidate(context.Background(), "test-secret", []string{"/page"})
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(report.InvalidatedURLs) != 1 {
		t.Fatalf("InvalidatedURLs = %v", report.InvalidatedURLs)
	}

	entry, err := engine.Store().Get(context.Background(), "/page")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(string(entry.Content), "rebuilt") {
		t.Errorf("entry content = %q, want the rebuilt markup", entry.Content)
	}
}

func TestInvalidateReportsRenderFailures(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("browser crashed")}
	engine := newTestEngine(t, newTestConfig(t, nil), Options{Renderer: renderer})

	seedEntry(t, engine, "/broken", "old", types.EntryMeta{
		Revalidate: types.Revalidate(300),
		BuildID:    "test-build",
		CreatedAt:  time.Now(),
	})

	report, err := engine.Invalidate(context.Background(), "test-secret", []string{"/broken"})
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(report.URLWithErrors["/broken"]) == 0 {
		t.Errorf("URLWithErrors = %v, want an entry for /broken", report.URLWithErrors)
	}
	if len(report.InvalidatedURLs) != 0 {
		t.Errorf("InvalidatedURLs = %v", report.InvalidatedURLs)
	}
}

func TestInvalidateSimulatesVariantRequests(t *testing.T) {
	var seenAgents []string
	renderer := types.RendererFunc(func(ctx context.Context, url string, req *http.Request, opts types.RenderOptions) (string, error) {
		seenAgents = append(seenAgents, req.UserAgent())
		return pageWithState("body", `{"revalidate":60}`), nil
	})

	engine := newTestEngine(t, newTestConfig(t, nil), Options{
		Renderer: renderer,
		Variants: []types.Variant{{
			ID: "mobile",
			Simulate: func(req *http.Request) *http.Request {
				cloned := req.Clone(req.Context())
				cloned.Header.Set("User-Agent", "Mobile Safari")
				return cloned
			},
		}},
	})

	meta := types.EntryMeta{
		Revalidate: types.Revalidate(300),
		BuildID:    "test-build",
		CreatedAt:  time.Now(),
	}
	seedEntry(t, engine, "/page", "d", meta)
	seedEntry(t, engine, "/page|mobile", "m", meta)

	if _, err := engine.Invalidate(context.Background(), "test-secret", []string{"/page"}); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if len(seenAgents) != 2 {
		t.Fatalf("renders = %d, want 2", len(seenAgents))
	}
	if seenAgents[1] != "Mobile Safari" {
		t.Errorf("variant rebuild UA = %q", seenAgents[1])
	}
}

func newMemoryStoreForTest(t *testing.T) types.CacheStore {
	t.Helper()
	cacheStore, err := store.NewMemoryStore(context.Background(), logger.NewNopLogger(),
		&types.StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	return cacheStore
}
