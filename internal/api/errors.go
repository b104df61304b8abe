// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common Relay API failures.
var (
	// ErrNotConfigured indicates no server URL is set.
	ErrNotConfigured = errors.New("relay server not configured")

	// ErrUnauthorized indicates the auth token is invalid or expired (401).
	// Propagated to the auth-invalid callback, never a hard logout.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrForbidden indicates the server refused the endpoint (403). Callers
	// treat this as "feature disabled", not "temporarily broken".
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnreachable indicates a transport-level failure (network/server
	// down). Callers fall back to cached state.
	ErrUnreachable = errors.New("server unreachable")
)

// APIError represents an error response from the Relay API.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("relay error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("relay error (HTTP %d): %s", e.Status, e.Message)
}

// IsAuthError reports whether err is a 401-class failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden reports whether err is a 403-class feature-disable signal.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
