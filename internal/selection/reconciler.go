// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package selection resolves which model is active.
//
// Resolution cascades: reviewer dataset, then a manual user choice, then the
// settings default, then the cached resolved default, then the server's
// declared default, then the first model available. A set manual flag stops
// every automatic path from overwriting the selection.
package selection

import (
	"context"
	"log"
	"sync"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/state"
	"github.com/jeranaias/relay-tui/internal/store"
)

// DefaultModelAPI is the API surface the reconciler consumes.
type DefaultModelAPI interface {
	GetDefaultModel(ctx context.Context) (string, error)
}

// Selection is the published active-model state. Model is nil while nothing
// has resolved yet; Manual reports whether the user chose it explicitly.
type Selection struct {
	Model  *model.ModelInfo
	Manual bool
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler owns the model selection state.
type Reconciler struct {
	api      DefaultModelAPI
	cache    *cache.Cache
	settings *state.Container[config.Settings]
	models   *store.Models
	env      store.Env
	queue    *state.Queue

	selected *state.Container[Selection]

	mu       sync.Mutex
	disposed bool
}

// NewReconciler creates the reconciler and hooks model-list refreshes.
func NewReconciler(
	api DefaultModelAPI,
	c *cache.Cache,
	settings *state.Container[config.Settings],
	models *store.Models,
	env store.Env,
	q *state.Queue,
) *Reconciler {
	r := &Reconciler{
		api:      api,
		cache:    c,
		settings: settings,
		models:   models,
		env:      env,
		queue:    q,
		selected: state.New("selection", Selection{}, q),
	}
	models.SetOnReplace(r.onModelsRefreshed)
	return r
}

// Selected exposes the selection container for observers.
func (r *Reconciler) Selected() *state.Container[Selection] {
	return r.selected
}

// Current returns the selected model, or nil.
func (r *Reconciler) Current() *model.ModelInfo {
	return r.selected.Get().Model
}

// SetManual records an explicit user choice. Automatic resolution will not
// overwrite it until the flag is cleared.
func (r *Reconciler) SetManual(m model.ModelInfo) {
	r.selected.Set(Selection{Model: &m, Manual: true})
}

// ClearManual drops the manual flag, re-opening the selection to automatic
// resolution. The selection itself is kept until something replaces it.
func (r *Reconciler) ClearManual() {
	r.selected.Update(func(s Selection) Selection {
		s.Manual = false
		return s
	})
}

// Resolve computes the active model, short-circuiting down the cascade.
// Never returns an error: every failure falls through to the next step.
func (r *Reconciler) Resolve(ctx context.Context) *model.ModelInfo {
	cur := r.selected.Get()

	// Reviewer mode runs on the synthetic dataset, still honoring a manual
	// choice.
	if r.env.Reviewer != nil && r.env.Reviewer() {
		if cur.Manual && cur.Model != nil {
			return cur.Model
		}
		demo := store.DemoModels()
		if len(demo) == 0 {
			return nil
		}
		return r.selectAuto(demo[0], false)
	}

	// A manual selection is never overwritten.
	if cur.Manual && cur.Model != nil {
		return cur.Model
	}

	// Settings default, looked up in the cached model list first.
	if id := r.defaultModelID(); id != "" {
		if m, ok := r.lookupCached(id); ok {
			return r.selectAuto(m, true)
		}
	}

	// Previously resolved default.
	if m, ok := cache.GetJSONSync[model.ModelInfo](r.cache, cache.KeyResolvedDefaultModel); ok && m.ID != "" {
		return r.selectAuto(m, false)
	}

	// Server-declared default: select a placeholder immediately so callers
	// are not blocked, then reconcile it against the full list off this path.
	if id, err := r.api.GetDefaultModel(ctx); err != nil {
		log.Printf("selection: default model: %v", err)
	} else if id != "" {
		placeholder := model.ModelInfo{ID: id, Name: id}
		out := r.selectAuto(placeholder, false)
		r.queue.Defer(func() {
			r.reconcilePlaceholder(context.Background(), id)
		})
		return out
	}

	// Last resort: first entry of the full list.
	list := r.models.Load(ctx)
	if len(list) == 0 {
		return nil
	}
	return r.selectAuto(list[0], false)
}

// defaultModelID returns the configured default model id. Older accounts
// carry it in the server-side settings document instead of the local config,
// so the cached copy of that document is consulted as a fallback.
func (r *Reconciler) defaultModelID() string {
	if id := r.settings.Get().DefaultModel; id != "" {
		return id
	}
	if doc, ok := cache.GetJSONSync[map[string]any](r.cache, cache.KeyUserSettings); ok {
		if id, ok := doc["default_model"].(string); ok {
			return id
		}
	}
	return ""
}

// lookupCached finds a model by id in the resident list, falling back to the
// cached snapshot when nothing is resident yet.
func (r *Reconciler) lookupCached(id string) (model.ModelInfo, bool) {
	if m, ok := r.models.ByID(id); ok {
		return m, true
	}
	if snap, ok := cache.GetJSONSync[[]model.ModelInfo](r.cache, cache.SnapshotKey("models")); ok {
		for _, m := range snap {
			if m.ID == id {
				return m, true
			}
		}
	}
	return model.ModelInfo{}, false
}

// reconcilePlaceholder replaces a placeholder selection with the real entry
// from the full model list: match by id, else by unique name, else first.
func (r *Reconciler) reconcilePlaceholder(ctx context.Context, id string) {
	r.mu.Lock()
	disposed := r.disposed
	r.mu.Unlock()
	if disposed {
		return
	}

	list := r.models.Load(ctx)
	if len(list) == 0 {
		return
	}

	resolved := list[0]
	found := false
	for _, m := range list {
		if m.ID == id {
			resolved = m
			found = true
			break
		}
	}
	if !found {
		matches := 0
		for _, m := range list {
			if m.Name == id {
				matches++
				resolved = m
			}
		}
		if matches != 1 {
			resolved = list[0]
		}
	}

	// Only replace a still-automatic selection that still carries the
	// placeholder id; anything else superseded the placeholder already.
	cur := r.selected.Get()
	if cur.Manual {
		return
	}
	if cur.Model != nil && cur.Model.ID != id {
		return
	}
	r.selectAuto(resolved, true)
}

// selectAuto installs an automatic selection unless a manual one appeared in
// the meantime. persist additionally records it as the resolved default.
func (r *Reconciler) selectAuto(m model.ModelInfo, persist bool) *model.ModelInfo {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	var out *model.ModelInfo
	r.selected.Update(func(s Selection) Selection {
		if s.Manual && s.Model != nil {
			out = s.Model
			return s
		}
		s.Model = &m
		out = &m
		return s
	})
	if persist && out != nil && out.ID == m.ID {
		cache.SetJSON(r.cache, cache.KeyResolvedDefaultModel, m)
	}
	return out
}

// onModelsRefreshed replaces the current selection in place when the
// refreshed list carries an updated entry for the same id. The manual flag
// is left untouched.
func (r *Reconciler) onModelsRefreshed(list []model.ModelInfo) {
	r.selected.Update(func(s Selection) Selection {
		if s.Model == nil {
			return s
		}
		for _, m := range list {
			if m.ID == s.Model.ID {
				updated := m
				s.Model = &updated
				return s
			}
		}
		return s
	})
}

// Dispose stops late asynchronous reconciliation from touching state.
func (r *Reconciler) Dispose() {
	r.mu.Lock()
	r.disposed = true
	r.mu.Unlock()
}
