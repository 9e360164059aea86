// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache is the two-tier read-through cache in front of the
// unified store's aggregate-view query. Tier 1 is an in-process LRU with
// per-entry TTL, optionally backed by an embedded Badger database so it
// survives process restarts. Tier 2 is always internal/store.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/research-engine/pkg/types"
)

// Backend is the tier-2 dependency: whatever can rebuild an aggregate
// view from truth. Satisfied by *store.Store without importing it here,
// keeping the cache package free to be tested with a fake.
type Backend interface {
	GetCompleteView(ctx context.Context, datasetID string) (*types.AggregateView, error)
}

type cacheEntry struct {
	key       string
	view      *types.AggregateView
	expiresAt time.Time
	elem      *list.Element
}

// Cache is the tiered read-through cache keyed by dataset ID.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // front = most recently used
	maxLen  int
	ttl     time.Duration

	backend Backend
	group   singleflight.Group

	durable *badger.DB // nil unless cfg.Cache.DurableDir was set and opened successfully
}

// New builds a Cache in front of backend. When cfg.DurableDir is set, a
// Badger database is opened to back tier 1 across restarts; if that open
// fails the cache silently degrades to in-process-only.
func New(backend Backend, cfg types.CacheConfig) *Cache {
	maxLen := cfg.MaxEntries
	if maxLen <= 0 {
		maxLen = 1000
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		maxLen:  maxLen,
		ttl:     ttl,
		backend: backend,
	}

	if cfg.DurableDir != "" {
		opts := badger.DefaultOptions(cfg.DurableDir).WithLogger(nil)
		db, err := badger.Open(opts)
		if err == nil {
			c.durable = db
		}
	}

	return c
}

// Close releases the Badger handle, if any.
func (c *Cache) Close() error {
	if c.durable != nil {
		return c.durable.Close()
	}
	return nil
}

// Get returns the aggregate view for datasetID, serving from tier 1 on a
// hit and falling through to the backend (tier 2) on a miss. Concurrent
// misses for the same key are coalesced via singleflight so only one
// rebuild runs per key at a time.
func (c *Cache) Get(ctx context.Context, datasetID string) (*types.AggregateView, error) {
	if view, ok := c.getFresh(datasetID); ok {
		return view, nil
	}

	result, err, _ := c.group.Do(datasetID, func() (any, error) {
		if view, ok := c.getFresh(datasetID); ok {
			return view, nil
		}
		view, err := c.backend.GetCompleteView(ctx, datasetID)
		if err != nil {
			return nil, err
		}
		c.put(datasetID, view)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.AggregateView), nil
}

func (c *Cache) getFresh(datasetID string) (*types.AggregateView, bool) {
	c.mu.Lock()
	entry, ok := c.entries[datasetID]
	if ok {
		if time.Now().After(entry.expiresAt) {
			c.evictLocked(entry)
			ok = false
		} else {
			c.order.MoveToFront(entry.elem)
		}
	}
	view := (*types.AggregateView)(nil)
	if ok {
		view = entry.view
	}
	c.mu.Unlock()

	if ok {
		return view, true
	}
	if c.durable == nil {
		return nil, false
	}
	return c.getFromDurable(datasetID)
}

func (c *Cache) getFromDurable(datasetID string) (*types.AggregateView, bool) {
	var raw []byte
	err := c.durable.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(datasetID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}

	var view types.AggregateView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.putLocked(datasetID, &view)
	c.mu.Unlock()
	return &view, true
}

func (c *Cache) put(datasetID string, view *types.AggregateView) {
	c.mu.Lock()
	c.putLocked(datasetID, view)
	c.mu.Unlock()

	if c.durable != nil {
		if raw, err := json.Marshal(view); err == nil {
			c.durable.Update(func(txn *badger.Txn) error {
				return txn.SetEntry(badger.NewEntry([]byte(datasetID), raw).WithTTL(c.ttl))
			})
		}
	}
}

func (c *Cache) putLocked(datasetID string, view *types.AggregateView) {
	if existing, ok := c.entries[datasetID]; ok {
		existing.view = view
		existing.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	entry := &cacheEntry{key: datasetID, view: view, expiresAt: time.Now().Add(c.ttl)}
	entry.elem = c.order.PushFront(entry)
	c.entries[datasetID] = entry

	for len(c.entries) > c.maxLen {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.evictLocked(oldest.Value.(*cacheEntry))
	}
}

func (c *Cache) evictLocked(entry *cacheEntry) {
	c.order.Remove(entry.elem)
	delete(c.entries, entry.key)
}

// Invalidate removes datasetID from both tiers. The coordinator calls it
// once, when RunForDataset finishes (including its early return when P1
// is skipped); the per-stage commits inside a run do not invalidate, so a
// view read during a run can be stale until the run ends.
func (c *Cache) Invalidate(datasetID string) {
	c.mu.Lock()
	if entry, ok := c.entries[datasetID]; ok {
		c.evictLocked(entry)
	}
	c.mu.Unlock()

	if c.durable != nil {
		c.durable.Update(func(txn *badger.Txn) error {
			err := txn.Delete([]byte(datasetID))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		})
	}
}
