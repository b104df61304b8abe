// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package socket owns the realtime connection lifecycle.
//
// A Manager holds at most one live connection. The connection's identity is
// the tuple (server id, websocket-only, allow-websocket-upgrade): any change
// to it tears the connection down and builds a new one; a changed auth token
// alone is hot-swapped onto the existing connection without reconnecting.
// Connect attempts are deferred onto the state queue and tagged with a
// generation counter, so an attempt superseded by a newer teardown cycle is
// silently dropped.
//
// Nothing outside the Manager constructs or destroys the connection; other
// components observe it through the Manager's connection container.
package socket
