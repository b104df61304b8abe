// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/model"
)

// FilesAPI is the API surface the files store consumes.
type FilesAPI interface {
	GetUserFiles(ctx context.Context) ([]model.FileInfo, error)
	GetFileContent(ctx context.Context, id string) ([]byte, error)
	UploadFile(ctx context.Context, path, name string) (*model.FileInfo, error)
}

// Files holds the user's uploaded files, newest first.
type Files struct {
	*entityStore[model.FileInfo]
	api FilesAPI
}

// NewFiles creates the files store.
func NewFiles(a FilesAPI, c *cache.Cache, env Env) *Files {
	return &Files{
		entityStore: newEntityStore(
			"files", c, env,
			a.GetUserFiles,
			func(f model.FileInfo) string { return f.ID },
			func(x, y model.FileInfo) bool { return x.UpdatedAt.After(y.UpdatedAt) },
			demoFiles,
		),
		api: a,
	}
}

// Content fetches a file's bytes. Never cached.
func (s *Files) Content(ctx context.Context, id string) ([]byte, error) {
	return s.api.GetFileContent(ctx, id)
}

// Upload sends a local file to the server and upserts the returned entry.
func (s *Files) Upload(ctx context.Context, path, name string) (*model.FileInfo, error) {
	info, err := s.api.UploadFile(ctx, path, name)
	if err != nil {
		return nil, err
	}
	if info != nil {
		s.Upsert(*info)
	}
	return info, nil
}
