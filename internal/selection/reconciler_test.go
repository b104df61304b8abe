// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package selection

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/state"
	"github.com/jeranaias/relay-tui/internal/store"
)

type stubModelsAPI struct {
	models    func(ctx context.Context) ([]model.ModelInfo, error)
	defaultID func(ctx context.Context) (string, error)
}

func (s *stubModelsAPI) GetModels(ctx context.Context) ([]model.ModelInfo, error) {
	if s.models == nil {
		return nil, errors.New("not stubbed")
	}
	return s.models(ctx)
}

func (s *stubModelsAPI) GetImageModels(context.Context) ([]model.ModelInfo, error) {
	return nil, errors.New("not stubbed")
}

func (s *stubModelsAPI) GetDefaultModel(ctx context.Context) (string, error) {
	if s.defaultID == nil {
		return "", nil
	}
	return s.defaultID(ctx)
}

type fixture struct {
	rec      *Reconciler
	cache    *cache.Cache
	settings *state.Container[config.Settings]
	models   *store.Models
	queue    *state.Queue
}

func newFixture(t *testing.T, api *stubModelsAPI, reviewer bool) *fixture {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	q := state.NewQueue()
	t.Cleanup(q.Close)

	env := store.Env{
		Authed:   func() bool { return true },
		Reviewer: func() bool { return reviewer },
	}
	settings := state.New("settings", config.Default(), q)
	models := store.NewModels(api, c, env)
	rec := NewReconciler(api, c, settings, models, env, q)
	t.Cleanup(rec.Dispose)

	return &fixture{rec: rec, cache: c, settings: settings, models: models, queue: q}
}

func TestResolve_ManualFlagSuppressesSettingsDefault(t *testing.T) {
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			return []model.ModelInfo{{ID: "m-1", Name: "One"}, {ID: "m-2", Name: "Two"}}, nil
		},
	}
	f := newFixture(t, api, false)
	f.models.Load(context.Background())

	f.rec.SetManual(model.ModelInfo{ID: "m-2", Name: "Two"})
	f.settings.Update(func(s config.Settings) config.Settings {
		s.DefaultModel = "m-1"
		return s
	})

	got := f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-2" {
		t.Fatalf("Resolve = %v, manual selection must stand", got)
	}

	// Clearing the flag re-opens automatic resolution.
	f.rec.ClearManual()
	got = f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-1" {
		t.Fatalf("Resolve = %v, want settings default m-1", got)
	}
}

func TestResolve_SettingsDefaultPersistsResolved(t *testing.T) {
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			return []model.ModelInfo{{ID: "m-1", Name: "One"}}, nil
		},
	}
	f := newFixture(t, api, false)
	f.models.Load(context.Background())
	f.settings.Update(func(s config.Settings) config.Settings {
		s.DefaultModel = "m-1"
		return s
	})

	got := f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-1" {
		t.Fatalf("Resolve = %v", got)
	}

	resolved, ok := cache.GetJSONSync[model.ModelInfo](f.cache, cache.KeyResolvedDefaultModel)
	if !ok || resolved.ID != "m-1" {
		t.Errorf("resolved default = %+v ok=%v, want persisted m-1", resolved, ok)
	}
}

func TestResolve_LegacySettingsDocumentFallback(t *testing.T) {
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			return []model.ModelInfo{{ID: "m-1", Name: "One"}, {ID: "m-legacy", Name: "Legacy"}}, nil
		},
	}
	f := newFixture(t, api, false)
	f.models.Load(context.Background())

	// Local config has no default; the cached server-side settings document
	// carries one.
	cache.SetJSON(f.cache, cache.KeyUserSettings, map[string]any{"default_model": "m-legacy"})

	got := f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-legacy" {
		t.Fatalf("Resolve = %v, want legacy settings default", got)
	}
}

func TestResolve_CachedResolvedDefaultFallback(t *testing.T) {
	api := &stubModelsAPI{
		defaultID: func(context.Context) (string, error) {
			t.Error("cached resolved default must short-circuit the server query")
			return "", nil
		},
	}
	f := newFixture(t, api, false)
	cache.SetJSON(f.cache, cache.KeyResolvedDefaultModel, model.ModelInfo{ID: "m-cached", Name: "Cached"})

	got := f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-cached" {
		t.Fatalf("Resolve = %v, want cached resolved default", got)
	}
}

func TestResolve_ServerDefaultPlaceholderThenReconciled(t *testing.T) {
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			return []model.ModelInfo{
				{ID: "m-1", Name: "One"},
				{ID: "m-2", Name: "Two", ContextLength: 200000},
			}, nil
		},
		defaultID: func(context.Context) (string, error) { return "m-2", nil },
	}
	f := newFixture(t, api, false)

	got := f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-2" || got.Name != "m-2" {
		t.Fatalf("Resolve = %v, want immediate placeholder for m-2", got)
	}

	// The deferred reconciliation swaps the placeholder for the real entry.
	f.queue.Flush()
	cur := f.rec.Current()
	if cur == nil || cur.Name != "Two" || cur.ContextLength != 200000 {
		t.Fatalf("Current = %+v, want reconciled m-2", cur)
	}
	if f.rec.Selected().Get().Manual {
		t.Error("automatic reconciliation must not set the manual flag")
	}
}

func TestResolve_PlaceholderNotReplacedAfterManualChoice(t *testing.T) {
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			return []model.ModelInfo{{ID: "m-1", Name: "One"}, {ID: "m-2", Name: "Two"}}, nil
		},
		defaultID: func(context.Context) (string, error) { return "m-2", nil },
	}
	f := newFixture(t, api, false)

	f.rec.Resolve(context.Background())
	f.rec.SetManual(model.ModelInfo{ID: "m-1", Name: "One"})
	f.queue.Flush()

	cur := f.rec.Selected().Get()
	if cur.Model == nil || cur.Model.ID != "m-1" || !cur.Manual {
		t.Fatalf("selection = %+v, manual choice must survive reconciliation", cur)
	}
}

func TestResolve_FirstAvailableFallback(t *testing.T) {
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			return []model.ModelInfo{{ID: "m-9", Name: "Nine"}}, nil
		},
		defaultID: func(context.Context) (string, error) { return "", nil },
	}
	f := newFixture(t, api, false)

	got := f.rec.Resolve(context.Background())
	if got == nil || got.ID != "m-9" {
		t.Fatalf("Resolve = %v, want first of full list", got)
	}
}

func TestResolve_ReviewerModeUsesSyntheticModels(t *testing.T) {
	api := &stubModelsAPI{
		defaultID: func(context.Context) (string, error) {
			t.Error("reviewer mode must not query the server")
			return "", nil
		},
	}
	f := newFixture(t, api, true)

	got := f.rec.Resolve(context.Background())
	want := store.DemoModels()[0]
	if got == nil || got.ID != want.ID {
		t.Fatalf("Resolve = %v, want %s", got, want.ID)
	}
}

func TestModelsRefresh_ReplacesSelectionInPlace(t *testing.T) {
	updated := false
	api := &stubModelsAPI{
		models: func(context.Context) ([]model.ModelInfo, error) {
			if updated {
				return []model.ModelInfo{{ID: "m-1", Name: "One", ContextLength: 999}}, nil
			}
			return []model.ModelInfo{{ID: "m-1", Name: "One"}}, nil
		},
	}
	f := newFixture(t, api, false)
	f.models.Load(context.Background())

	f.rec.SetManual(model.ModelInfo{ID: "m-1", Name: "One"})

	updated = true
	if err := f.models.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	cur := f.rec.Selected().Get()
	if cur.Model == nil || cur.Model.ContextLength != 999 {
		t.Fatalf("selection = %+v, want refreshed entry", cur.Model)
	}
	if !cur.Manual {
		t.Error("in-place replacement must preserve the manual flag")
	}
}
