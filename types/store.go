package types

import (
	"context"
	"time"
)

// CacheStore is the persistence contract every ISR deployment target
// implements. Entries must survive their own staleness: the serve path
// still needs the stale body while a regeneration runs, so backends never
// expire entries on their own.
type CacheStore interface {
	LifecycleManager
	Add(ctx context.Context, key string, content []byte, meta EntryMeta) error
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	ListAll(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

type CacheStoreCreator func(config interface{}) (CacheStore, error)

// CacheEntry is a rendered page plus the metadata the serve path needs to
// decide freshness. Revalidate semantics: nil means the entry was produced
// by a page that opted out of caching (such an entry is never written),
// 0 means serve forever until explicitly invalidated, n>0 means serve as-is
// for n seconds after CreatedAt and then trigger regeneration.
type CacheEntry struct {
	Key        string    `json:"key"`
	Content    []byte    `json:"content"`
	Revalidate *int      `json:"revalidate"`
	BuildID    string    `json:"build_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Errors     []string  `json:"errors,omitempty"`
}

type EntryMeta struct {
	Revalidate *int      `json:"revalidate"`
	BuildID    string    `json:"build_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Errors     []string  `json:"errors,omitempty"`
}

// IsStale reports whether the entry's revalidate window has elapsed at now.
// Entries with revalidate 0 never go stale.
func (e *CacheEntry) IsStale(now time.Time) bool {
	if e.Revalidate == nil || *e.Revalidate <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > time.Duration(*e.Revalidate)*time.Second
}

// Revalidate builds the pointer form used across entry metadata.
func Revalidate(seconds int) *int {
	return &seconds
}
