// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state provides named reactive state containers and a deferred
// microtask queue.
//
// A Container holds one value and notifies subscribers when it changes.
// Consumers choose between two access modes:
//
//   - Read: Get() returns the current value with no subscription; the
//     consumer is not re-notified when the value changes later.
//   - Watch: Watch() returns the current value plus a subscription that
//     fires on every subsequent change.
//
// Notifications are dispatched through a Queue so a listener never observes
// its own container being mutated re-entrantly from inside the mutating call
// stack. The Queue is also exposed directly (Defer) for callers that must
// postpone a mutation out of a read path.
//
// Derived containers recompute from declared upstream containers only when
// one of those upstreams changes; the dependency graph is acyclic by
// construction (a derived container cannot be a dependency of itself).
package state
