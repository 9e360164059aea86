// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/research-engine/pkg/types"
)

type fakeBackend struct {
	calls atomic.Int32
	delay time.Duration
	mu    sync.Mutex
	views map[string]*types.AggregateView
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{views: make(map[string]*types.AggregateView)}
}

func (f *fakeBackend) GetCompleteView(ctx context.Context, datasetID string) (*types.AggregateView, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.views[datasetID]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("dataset %s not found", datasetID)
}

func TestCacheGetFallsThroughOnMiss(t *testing.T) {
	backend := newFakeBackend()
	backend.views["GSE1"] = &types.AggregateView{Dataset: types.Dataset{ID: "GSE1", Title: "First"}}

	c := New(backend, types.CacheConfig{TTL: time.Hour, MaxEntries: 10})

	view, err := c.Get(t.Context(), "GSE1")
	if err != nil {
		t.Fatal(err)
	}
	if view.Dataset.Title != "First" {
		t.Errorf("Title = %q", view.Dataset.Title)
	}
	if backend.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls.Load())
	}

	if _, err := c.Get(t.Context(), "GSE1"); err != nil {
		t.Fatal(err)
	}
	if backend.calls.Load() != 1 {
		t.Errorf("backend calls after hit = %d, want 1 (should serve from tier 1)", backend.calls.Load())
	}
}

func TestCacheInvalidate(t *testing.T) {
	backend := newFakeBackend()
	backend.views["GSE1"] = &types.AggregateView{Dataset: types.Dataset{ID: "GSE1"}}

	c := New(backend, types.CacheConfig{TTL: time.Hour, MaxEntries: 10})
	c.Get(t.Context(), "GSE1")
	c.Invalidate("GSE1")

	c.Get(t.Context(), "GSE1")
	if backend.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2 (invalidate should force a rebuild)", backend.calls.Load())
	}
}

func TestCacheExpiresByTTL(t *testing.T) {
	backend := newFakeBackend()
	backend.views["GSE1"] = &types.AggregateView{Dataset: types.Dataset{ID: "GSE1"}}

	c := New(backend, types.CacheConfig{TTL: time.Millisecond, MaxEntries: 10})
	c.Get(t.Context(), "GSE1")
	time.Sleep(5 * time.Millisecond)
	c.Get(t.Context(), "GSE1")

	if backend.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2 (expired entry should rebuild)", backend.calls.Load())
	}
}

func TestCacheEvictsLRUWhenOverCapacity(t *testing.T) {
	backend := newFakeBackend()
	for _, id := range []string{"GSE1", "GSE2", "GSE3"} {
		backend.views[id] = &types.AggregateView{Dataset: types.Dataset{ID: id}}
	}

	c := New(backend, types.CacheConfig{TTL: time.Hour, MaxEntries: 2})
	c.Get(t.Context(), "GSE1")
	c.Get(t.Context(), "GSE2")
	c.Get(t.Context(), "GSE3") // evicts GSE1, the least recently used

	c.Get(t.Context(), "GSE1")
	if backend.calls.Load() != 4 {
		t.Errorf("backend calls = %d, want 4 (GSE1 should have been evicted)", backend.calls.Load())
	}
}

func TestCacheSingleflightCoalescesConcurrentMisses(t *testing.T) {
	backend := newFakeBackend()
	backend.views["GSE1"] = &types.AggregateView{Dataset: types.Dataset{ID: "GSE1"}}
	backend.delay = 20 * time.Millisecond

	c := New(backend, types.CacheConfig{TTL: time.Hour, MaxEntries: 10})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(t.Context(), "GSE1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if backend.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1 (concurrent misses should coalesce)", backend.calls.Load())
	}
}
