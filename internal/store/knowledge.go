// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/model"
)

// KnowledgeAPI is the API surface the knowledge store consumes.
type KnowledgeAPI interface {
	GetKnowledgeBases(ctx context.Context) ([]model.KnowledgeBase, error)
	GetKnowledgeBaseItems(ctx context.Context, kbID string) ([]model.KnowledgeItem, error)
}

// Knowledge holds the user's knowledge bases, newest first.
type Knowledge struct {
	*entityStore[model.KnowledgeBase]
	api KnowledgeAPI
}

// NewKnowledge creates the knowledge-base store.
func NewKnowledge(a KnowledgeAPI, c *cache.Cache, env Env) *Knowledge {
	return &Knowledge{
		entityStore: newEntityStore(
			"knowledge_bases", c, env,
			a.GetKnowledgeBases,
			func(kb model.KnowledgeBase) string { return kb.ID },
			func(x, y model.KnowledgeBase) bool { return x.UpdatedAt.After(y.UpdatedAt) },
			demoKnowledgeBases,
		),
		api: a,
	}
}

// Items fetches the documents in one knowledge base. Never cached.
func (s *Knowledge) Items(ctx context.Context, kbID string) ([]model.KnowledgeItem, error) {
	if s.env.reviewer() {
		return []model.KnowledgeItem{{ID: "demo-item-1", Name: "trail-safety.md"}}, nil
	}
	return s.api.GetKnowledgeBaseItems(ctx, kbID)
}
