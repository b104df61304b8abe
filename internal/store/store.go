// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/relay-tui/internal/api"
	"github.com/jeranaias/relay-tui/internal/cache"
)

// warmRefreshInterval throttles the background refresh scheduled after a
// cache hit, so rapid re-loads don't stampede the server.
const warmRefreshInterval = 30 * time.Second

// Env answers the two questions every store asks before touching the
// network: is anyone logged in, and are we in reviewer/demo mode.
type Env struct {
	Authed   func() bool
	Reviewer func() bool
}

func (e Env) authed() bool   { return e.Authed != nil && e.Authed() }
func (e Env) reviewer() bool { return e.Reviewer != nil && e.Reviewer() }

// =============================================================================
// GENERIC ENTITY STORE
// =============================================================================

// entityStore is the shared core behind the typed stores. T is the entity
// type; kind names the cache snapshot key.
type entityStore[T any] struct {
	kind  string
	cache *cache.Cache
	env   Env

	fetch func(ctx context.Context) ([]T, error)
	id    func(T) string
	less  func(a, b T) bool // nil keeps server order
	demo  func() []T

	limiter *rate.Limiter

	mu        sync.Mutex
	items     []T
	loaded    bool
	disposed  bool
	onReplace func([]T)
}

// SetOnReplace installs a hook invoked with the new list after every
// successful fetch. Used by the selection reconciler to track model-list
// refreshes.
func (s *entityStore[T]) SetOnReplace(fn func([]T)) {
	s.mu.Lock()
	s.onReplace = fn
	s.mu.Unlock()
}

func newEntityStore[T any](
	kind string,
	c *cache.Cache,
	env Env,
	fetch func(ctx context.Context) ([]T, error),
	id func(T) string,
	less func(a, b T) bool,
	demo func() []T,
) *entityStore[T] {
	return &entityStore[T]{
		kind:    kind,
		cache:   c,
		env:     env,
		fetch:   fetch,
		id:      id,
		less:    less,
		demo:    demo,
		limiter: rate.NewLimiter(rate.Every(warmRefreshInterval), 1),
	}
}

// Load returns the entity list, cache-first. It never returns an error:
// fetch failures degrade to an empty list and are logged.
func (s *entityStore[T]) Load(ctx context.Context) []T {
	if s.env.reviewer() {
		return s.demo()
	}

	if !s.env.authed() {
		s.mu.Lock()
		s.items = nil
		s.loaded = true
		s.mu.Unlock()
		s.persist(nil)
		return nil
	}

	if cached, ok := cache.GetJSON[[]T](s.cache, cache.SnapshotKey(s.kind)); ok && len(cached) > 0 {
		s.mu.Lock()
		s.items = cached
		s.loaded = true
		s.mu.Unlock()

		// Warm refresh runs after the cached value is already captured for
		// return; callers always observe the snapshot first.
		if s.limiter.Allow() {
			go func() {
				if err := s.Refresh(context.Background()); err != nil {
					log.Printf("store: %s: warm refresh: %v", s.kind, err)
				}
			}()
		}
		return cached
	}

	items, err := s.fetch(ctx)
	if err != nil {
		if errors.Is(err, api.ErrForbidden) {
			log.Printf("store: %s: feature disabled: %v", s.kind, err)
		} else {
			log.Printf("store: %s: load: %v", s.kind, err)
		}
		return nil
	}
	s.replace(items)
	return s.Snapshot()
}

// Refresh forces a network fetch. On failure the previous state is
// preserved and the error returned.
func (s *entityStore[T]) Refresh(ctx context.Context) error {
	if s.env.reviewer() {
		return nil
	}
	items, err := s.fetch(ctx)
	if err != nil {
		log.Printf("store: %s: refresh: %v", s.kind, err)
		return err
	}
	s.replace(items)
	return nil
}

// replace installs a fetched list, sorts, and persists. Dropped silently if
// the store was disposed while the fetch was in flight.
func (s *entityStore[T]) replace(items []T) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.items = items
	s.loaded = true
	s.sortLocked()
	snapshot := append([]T(nil), s.items...)
	hook := s.onReplace
	s.mu.Unlock()
	s.persist(snapshot)
	if hook != nil {
		hook(snapshot)
	}
}

// Snapshot returns a copy of the current list.
func (s *entityStore[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.items...)
}

// Upsert inserts or replaces by id. No-op until a load has happened.
func (s *entityStore[T]) Upsert(item T) {
	s.mutate(func() {
		key := s.id(item)
		for i := range s.items {
			if s.id(s.items[i]) == key {
				s.items[i] = item
				return
			}
		}
		s.items = append(s.items, item)
	})
}

// Update applies fn to the entity with the given id, if resident.
func (s *entityStore[T]) Update(id string, fn func(T) T) {
	s.mutate(func() {
		for i := range s.items {
			if s.id(s.items[i]) == id {
				s.items[i] = fn(s.items[i])
				return
			}
		}
	})
}

// Remove deletes by id, if resident.
func (s *entityStore[T]) Remove(id string) {
	s.mutate(func() {
		for i := range s.items {
			if s.id(s.items[i]) == id {
				s.items = append(s.items[:i], s.items[i+1:]...)
				return
			}
		}
	})
}

// mutate runs fn on resident state, then re-sorts and re-persists.
func (s *entityStore[T]) mutate(fn func()) {
	s.mu.Lock()
	if !s.loaded || s.disposed {
		s.mu.Unlock()
		return
	}
	fn()
	s.sortLocked()
	snapshot := append([]T(nil), s.items...)
	s.mu.Unlock()
	s.persist(snapshot)
}

func (s *entityStore[T]) sortLocked() {
	if s.less == nil {
		return
	}
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.less(s.items[i], s.items[j])
	})
}

// persist writes the snapshot to the cache. Best-effort: failures are
// logged inside the cache layer, never surfaced here.
func (s *entityStore[T]) persist(items []T) {
	if items == nil {
		items = []T{}
	}
	cache.SetJSON(s.cache, cache.SnapshotKey(s.kind), items)
}

// Dispose marks the store dead; late fetch completions become no-ops.
func (s *entityStore[T]) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}
