// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures synchronized from the Relay server.
//
// Every entity kind the client mirrors locally lives here: conversations and
// their messages, folders, models, user files, and knowledge bases, plus the
// backend configuration and realtime event types that flow over the socket.
//
// # Key Types
//
//   - Conversation: a chat with its ordered message list and folder association
//   - Folder: a named group carrying an explicit member conversation id list
//   - ModelInfo: a server-declared model; the model list is replaced wholesale
//   - BackendConfig: server-declared transport and feature capabilities
//   - Delta: a normalized realtime event tagged with its source namespace
//
// Entities are plain data; the stores in internal/store own mutation and
// ordering rules.
package model
