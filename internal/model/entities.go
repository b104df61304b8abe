// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// FOLDER TYPE
// =============================================================================

// Folder represents a server-side conversation folder.
//
// A folder carries an explicit member list. A conversation's effective folder
// membership is the union of its own FolderID field and any folder whose
// ConversationIDs names it; when both exist the conversation's own field wins.
type Folder struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ConversationIDs []string  `json:"conversation_ids"`
	UpdatedAt       time.Time `json:"updated_at"`

	// ConversationCount is the server-reported member count. It can exceed
	// len(ConversationIDs) when the membership list lags the count.
	ConversationCount int `json:"conversation_count,omitempty"`
}

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a model the server offers. The model list is replaced
// wholesale on refresh; individual entries carry no mutable timestamp.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider identifies who serves the model
	Provider string `json:"provider,omitempty"`

	// ContextLength is the maximum context window size
	ContextLength int `json:"context_length,omitempty"`

	// Capabilities lists server-declared capability tags (vision, tools, ...)
	Capabilities []string `json:"capabilities,omitempty"`
}

// =============================================================================
// FILE AND KNOWLEDGE TYPES
// =============================================================================

// FileInfo describes a user-uploaded file known to the server.
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KnowledgeBase describes a server-side knowledge base.
type KnowledgeBase struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KnowledgeItem is a single document within a knowledge base.
type KnowledgeItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// =============================================================================
// USER TYPES
// =============================================================================

// CurrentUser is the authenticated user's identity as the server reports it.
type CurrentUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Permissions carries the per-feature permission flags for the current user.
type Permissions struct {
	Chat      bool `json:"chat"`
	FileShare bool `json:"file_share"`
	WebSearch bool `json:"web_search"`
}

// Voice describes a server-side TTS voice.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
