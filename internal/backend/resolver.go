// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend resolves the server-declared transport and feature
// configuration into the client's realtime transport policy.
package backend

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/state"
)

// Fetcher is the slice of the API client the resolver needs.
type Fetcher interface {
	GetBackendConfig(ctx context.Context) (*model.BackendConfig, error)
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver fetches and merges backend configuration, derives transport
// availability, and enforces server-forced transport overrides onto the
// user's settings.
type Resolver struct {
	api      Fetcher
	cache    *cache.Cache
	settings *state.Container[config.Settings]
	queue    *state.Queue

	mu          sync.Mutex
	lastConfig  *model.BackendConfig
	lastOptions *model.TransportOptions
}

// NewResolver creates a resolver. The settings container is where a
// server-enforced transport mode gets written.
func NewResolver(api Fetcher, c *cache.Cache, settings *state.Container[config.Settings], q *state.Queue) *Resolver {
	return &Resolver{api: api, cache: c, settings: settings, queue: q}
}

// Refresh fetches the backend config and re-derives transport availability.
// Called on every refresh trigger (startup, active server change). An absent
// config leaves all resolved state unchanged.
func (r *Resolver) Refresh(ctx context.Context) error {
	cfg, err := r.api.GetBackendConfig(ctx)
	if err != nil {
		log.Printf("backend: config fetch: %v", err)
		return err
	}
	if cfg == nil {
		return nil
	}

	// A server-enforced transport mode overwrites the user's preference.
	// The write is deferred to the next microtask so settings state is
	// never mutated from within this read path.
	if enforced := strings.ToLower(cfg.EnforcedTransport); enforced != "" {
		if current := r.settings.Get(); !strings.EqualFold(current.Transport, enforced) {
			r.queue.Defer(func() {
				r.settings.Update(func(s config.Settings) config.Settings {
					s.Transport = enforced
					return s
				})
			})
		}
	}

	opts := model.DeriveTransportOptions(cfg)

	r.mu.Lock()
	r.lastConfig = cfg
	r.lastOptions = &opts
	r.mu.Unlock()

	// Persist from the async refresh path only; the sync accessor stays pure.
	cache.SetJSON(r.cache, cache.KeyBackendConfig, cfg)
	cache.SetJSON(r.cache, cache.KeyTransportOptions, opts)

	return nil
}

// Config returns the last-fetched backend config, or nil before any
// successful refresh.
func (r *Resolver) Config() *model.BackendConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastConfig
}

// TransportOptionsSync returns the last-resolved transport availability
// without side effects. Falls back to the cached value, then to the
// permissive default.
func (r *Resolver) TransportOptionsSync() model.TransportOptions {
	r.mu.Lock()
	if r.lastOptions != nil {
		opts := *r.lastOptions
		r.mu.Unlock()
		return opts
	}
	r.mu.Unlock()

	if opts, ok := cache.GetJSONSync[model.TransportOptions](r.cache, cache.KeyTransportOptions); ok {
		return opts
	}
	return model.DeriveTransportOptions(nil)
}
