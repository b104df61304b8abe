// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// BACKEND CONFIG
// =============================================================================

// BackendConfig is the server-declared capability set fetched at startup and
// on active-server changes. The transport flags drive realtime policy.
type BackendConfig struct {
	// Version is the server's reported version string.
	Version string `json:"version,omitempty"`

	// EnforcedTransport, when non-empty, is a transport mode the server
	// requires clients to use ("polling" or "websocket"). It overwrites the
	// user's transport preference.
	EnforcedTransport string `json:"enforced_transport,omitempty"`

	// WebsocketOnly disallows polling transport entirely.
	WebsocketOnly bool `json:"websocket_only,omitempty"`

	// PollingOnly disallows the websocket upgrade entirely.
	PollingOnly bool `json:"polling_only,omitempty"`

	// Features maps feature names to enablement (folders, notes, ...).
	Features map[string]bool `json:"features,omitempty"`
}

// TransportOptions is the derived realtime transport availability policy.
type TransportOptions struct {
	AllowPolling          bool `json:"allow_polling"`
	AllowWebsocketUpgrade bool `json:"allow_websocket_upgrade"`
}

// DeriveTransportOptions computes availability from a backend config with
// fixed precedence: websocketOnly beats pollingOnly beats permissive default.
func DeriveTransportOptions(cfg *BackendConfig) TransportOptions {
	if cfg != nil && cfg.WebsocketOnly {
		return TransportOptions{AllowPolling: false, AllowWebsocketUpgrade: true}
	}
	if cfg != nil && cfg.PollingOnly {
		return TransportOptions{AllowPolling: true, AllowWebsocketUpgrade: false}
	}
	return TransportOptions{AllowPolling: true, AllowWebsocketUpgrade: true}
}

// =============================================================================
// CONNECTION IDENTITY
// =============================================================================

// ConnIdentity is the parameter tuple that decides whether an existing
// realtime connection can be reused. Any mismatch forces teardown and
// recreation; transport mode is never mutated in place.
type ConnIdentity struct {
	ServerID              string
	WebsocketOnly         bool
	AllowWebsocketUpgrade bool
}

// Equal reports whether two identities describe the same connection target.
func (a ConnIdentity) Equal(b ConnIdentity) bool {
	return a.ServerID == b.ServerID &&
		a.WebsocketOnly == b.WebsocketOnly &&
		a.AllowWebsocketUpgrade == b.AllowWebsocketUpgrade
}
