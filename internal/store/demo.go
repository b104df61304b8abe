// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
)

// =============================================================================
// REVIEWER / DEMO DATASET
// =============================================================================

// Fixed timestamps keep the demo dataset fully deterministic.
var (
	demoT1 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	demoT2 = time.Date(2025, 3, 2, 14, 30, 0, 0, time.UTC)
	demoT3 = time.Date(2025, 3, 3, 18, 15, 0, 0, time.UTC)
)

func demoConversations() []model.Conversation {
	return []model.Conversation{
		{
			ID:        "demo-conv-1",
			Title:     "Planning a hiking trip",
			CreatedAt: demoT3,
			UpdatedAt: demoT3,
			Pinned:    true,
			Messages: []model.Message{
				{ID: "demo-msg-1", Role: "user", Content: "What should I pack for a three-day hike?", Timestamp: demoT3},
				{ID: "demo-msg-2", Role: "assistant", Content: "Start with layers, a rain shell, and more water capacity than you think you need.", Timestamp: demoT3, ModelID: "demo-model-1"},
			},
		},
		{
			ID:        "demo-conv-2",
			Title:     "Sourdough troubleshooting",
			CreatedAt: demoT2,
			UpdatedAt: demoT2,
			FolderID:  "demo-folder-1",
			Messages: []model.Message{
				{ID: "demo-msg-3", Role: "user", Content: "My starter smells like acetone, is it dead?", Timestamp: demoT2},
				{ID: "demo-msg-4", Role: "assistant", Content: "Not dead, just hungry. Feed it twice daily for a few days.", Timestamp: demoT2, ModelID: "demo-model-1"},
			},
		},
		{
			ID:        "demo-conv-3",
			Title:     "Archived notes",
			CreatedAt: demoT1,
			UpdatedAt: demoT1,
			Archived:  true,
			Messages:  []model.Message{},
		},
	}
}

func demoFolders() []model.Folder {
	return []model.Folder{
		{ID: "demo-folder-1", Name: "Cooking", ConversationIDs: []string{"demo-conv-2"}, UpdatedAt: demoT2},
	}
}

// DemoModels is exported: the selection reconciler needs the synthetic model
// list to honor reviewer mode without constructing a store.
func DemoModels() []model.ModelInfo {
	return []model.ModelInfo{
		{ID: "demo-model-1", Name: "Relay Demo Large", Provider: "relay", ContextLength: 128000, Capabilities: []string{"vision"}},
		{ID: "demo-model-2", Name: "Relay Demo Small", Provider: "relay", ContextLength: 32000},
	}
}

func demoFiles() []model.FileInfo {
	return []model.FileInfo{
		{ID: "demo-file-1", Name: "trail-map.pdf", Size: 482133, UpdatedAt: demoT3},
		{ID: "demo-file-2", Name: "recipe.md", Size: 2048, UpdatedAt: demoT2},
	}
}

func demoKnowledgeBases() []model.KnowledgeBase {
	return []model.KnowledgeBase{
		{ID: "demo-kb-1", Name: "Field Guides", Description: "Reference material", UpdatedAt: demoT1},
	}
}
