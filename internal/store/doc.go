// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements cache-backed entity stores with
// stale-while-revalidate semantics.
//
// Every store follows the same contract: Load returns the cached snapshot
// when one exists and schedules a background refresh; an unauthenticated
// Load returns empty and resets the cached snapshot; Refresh replaces state
// only on success and preserves it on failure; mutators operate on resident
// state only and re-sort and re-persist after every change. The in-memory
// list is the source of truth once the network has answered at least once;
// the cache is a durable mirror.
//
// Reviewer mode short-circuits every store onto a fixed synthetic dataset,
// touching neither network nor cache.
package store
