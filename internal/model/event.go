// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// =============================================================================
// REALTIME EVENT TYPES
// =============================================================================

// DeltaSource identifies which realtime namespace produced an event.
type DeltaSource string

const (
	// SourceChat is the direct chat-events namespace.
	SourceChat DeltaSource = "chat"

	// SourceChannel is the broadcast channel-events namespace.
	SourceChannel DeltaSource = "channel"
)

// AckFunc acknowledges receipt of an event back to the server. May be nil
// when the server did not request acknowledgment.
type AckFunc func(payload any)

// RawEvent is an event as it arrives off the socket, before normalization.
type RawEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Delta is a normalized realtime event delivered to conversation-scoped
// subscribers. Source tags which namespace it came from.
type Delta struct {
	Source         DeltaSource
	ConversationID string
	Event          RawEvent
	Ack            AckFunc
}

// SubscriptionKey identifies one realtime delta subscription. Each active key
// owns exactly one socket registration and one shared output stream.
type SubscriptionKey struct {
	Source         DeltaSource
	ConversationID string
	SessionID      string
	RequireFocus   bool
}
