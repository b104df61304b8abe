// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/model"
)

// ModelsAPI is the API surface the models store consumes.
type ModelsAPI interface {
	GetModels(ctx context.Context) ([]model.ModelInfo, error)
	GetImageModels(ctx context.Context) ([]model.ModelInfo, error)
}

// Models holds the server's model list. The list is replaced wholesale on
// refresh and keeps server order.
type Models struct {
	*entityStore[model.ModelInfo]
	api ModelsAPI
}

// NewModels creates the models store.
func NewModels(a ModelsAPI, c *cache.Cache, env Env) *Models {
	return &Models{
		entityStore: newEntityStore(
			"models", c, env,
			a.GetModels,
			func(m model.ModelInfo) string { return m.ID },
			nil,
			DemoModels,
		),
		api: a,
	}
}

// ImageModels fetches the image-capable model list. Not cached: the list is
// small and only needed when an image flow opens.
func (s *Models) ImageModels(ctx context.Context) ([]model.ModelInfo, error) {
	if s.env.reviewer() {
		return DemoModels()[:1], nil
	}
	return s.api.GetImageModels(ctx)
}

// ByID returns the resident model with the given id.
func (s *Models) ByID(id string) (model.ModelInfo, bool) {
	for _, m := range s.Snapshot() {
		if m.ID == id {
			return m, true
		}
	}
	return model.ModelInfo{}, false
}
