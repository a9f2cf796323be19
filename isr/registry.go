package isr

import "sync"

// InflightRegistry is the single-flight gate: one key may be regenerating
// at a time. Membership test and insert happen under one lock so two
// concurrent TryAcquire calls for the same key can never both succeed.
// The registry is process-local; a restart clears it, which is fine since
// its only job is intra-process deduplication.
type InflightRegistry struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewInflightRegistry() *InflightRegistry {
	return &InflightRegistry{
		keys: make(map[string]struct{}),
	}
}

// TryAcquire inserts key and reports whether the caller won the slot.
func (r *InflightRegistry) TryAcquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, inflight := r.keys[key]; inflight {
		return false
	}

	r.keys[key] = struct{}{}
	return true
}

// Release removes key. Safe to call for a key that was never acquired.
func (r *InflightRegistry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.keys, key)
}

func (r *InflightRegistry) Contains(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, inflight := r.keys[key]
	return inflight
}

func (r *InflightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.keys)
}
