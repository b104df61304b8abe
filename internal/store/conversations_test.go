// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/model"
)

// stubConvAPI is a function-table stub for ConversationsAPI.
type stubConvAPI struct {
	conversations func(ctx context.Context) ([]model.Conversation, error)
	conversation  func(ctx context.Context, id string) (*model.Conversation, error)
	folders       func(ctx context.Context) ([]model.Folder, bool, error)
	summaries     func(ctx context.Context, folderID string) ([]model.ConversationSummary, error)
}

func (s *stubConvAPI) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	return s.conversations(ctx)
}

func (s *stubConvAPI) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if s.conversation == nil {
		return nil, errors.New("not stubbed")
	}
	return s.conversation(ctx, id)
}

func (s *stubConvAPI) GetFolders(ctx context.Context) ([]model.Folder, bool, error) {
	return s.folders(ctx)
}

func (s *stubConvAPI) GetFolderConversationSummaries(ctx context.Context, folderID string) ([]model.ConversationSummary, error) {
	if s.summaries == nil {
		return nil, nil
	}
	return s.summaries(ctx, folderID)
}

func (s *stubConvAPI) SearchChats(context.Context, string, bool, int, string, string) ([]model.Conversation, error) {
	return nil, errors.New("not stubbed")
}

func (s *stubConvAPI) SearchMessages(context.Context, string, int) ([]model.Message, error) {
	return nil, errors.New("not stubbed")
}

func findConv(t *testing.T, convs []model.Conversation, id string) model.Conversation {
	t.Helper()
	for _, c := range convs {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("conversation %q not found in %v", id, convs)
	return model.Conversation{}
}

func TestReconcile_FolderMembershipWithSummaryFetch(t *testing.T) {
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a", Title: "A"}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return []model.Folder{{ID: "f1", Name: "Work", ConversationIDs: []string{"a", "b"}}}, true, nil
		},
		summaries: func(_ context.Context, folderID string) ([]model.ConversationSummary, error) {
			if folderID != "f1" {
				t.Errorf("summaries fetched for %q", folderID)
			}
			return []model.ConversationSummary{{ID: "b", Title: "B"}}, nil
		},
	}

	s := NewConversations(api, newTestCache(t), authedEnv())
	got := s.Load(context.Background())

	a := findConv(t, got, "a")
	if a.FolderID != "f1" {
		t.Errorf("a.FolderID = %q, want f1", a.FolderID)
	}
	b := findConv(t, got, "b")
	if b.FolderID != "f1" || b.Title != "B" {
		t.Errorf("b = %+v, want folder f1 title B", b)
	}
}

func TestReconcile_UnresolvedMemberBecomesPlaceholder(t *testing.T) {
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a"}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return []model.Folder{{ID: "f1", Name: "Work", ConversationIDs: []string{"a", "b"}}}, true, nil
		},
		summaries: func(context.Context, string) ([]model.ConversationSummary, error) {
			return nil, nil
		},
	}

	s := NewConversations(api, newTestCache(t), authedEnv())
	got := s.Load(context.Background())

	b := findConv(t, got, "b")
	if b.FolderID != "f1" {
		t.Errorf("b.FolderID = %q, want f1", b.FolderID)
	}
	if b.Title != PlaceholderTitle {
		t.Errorf("b.Title = %q, want placeholder", b.Title)
	}
	if b.Messages == nil || len(b.Messages) != 0 {
		t.Errorf("b.Messages = %v, want empty non-nil", b.Messages)
	}
}

func TestReconcile_OwnFolderFieldWins(t *testing.T) {
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a", FolderID: "f2"}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return []model.Folder{
				{ID: "f1", Name: "Claims A", ConversationIDs: []string{"a"}},
				{ID: "f2", Name: "Owns A"},
			}, true, nil
		},
	}

	s := NewConversations(api, newTestCache(t), authedEnv())
	got := s.Load(context.Background())

	if a := findConv(t, got, "a"); a.FolderID != "f2" {
		t.Errorf("a.FolderID = %q, want own field f2", a.FolderID)
	}
}

func TestReconcile_NoSummaryFetchWhenComplete(t *testing.T) {
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a"}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return []model.Folder{{ID: "f1", Name: "Work", ConversationIDs: []string{"a"}}}, true, nil
		},
		summaries: func(context.Context, string) ([]model.ConversationSummary, error) {
			t.Error("summaries fetched for a fully mapped folder")
			return nil, nil
		},
	}

	NewConversations(api, newTestCache(t), authedEnv()).Load(context.Background())
}

func TestReconcile_EmptyMembershipWithClaimedCountTriggersFetch(t *testing.T) {
	fetched := false
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a"}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return []model.Folder{{ID: "f1", Name: "Work", ConversationCount: 2}}, true, nil
		},
		summaries: func(context.Context, string) ([]model.ConversationSummary, error) {
			fetched = true
			return []model.ConversationSummary{{ID: "c", Title: "C"}}, nil
		},
	}

	s := NewConversations(api, newTestCache(t), authedEnv())
	got := s.Load(context.Background())

	if !fetched {
		t.Fatal("expected a summaries fetch for the unmapped folder")
	}
	if c := findConv(t, got, "c"); c.FolderID != "f1" {
		t.Errorf("c.FolderID = %q, want f1", c.FolderID)
	}
}

func TestLoad_FolderFailurePreservesEnabledFlag(t *testing.T) {
	folderErr := false
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a"}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			if folderErr {
				return nil, false, errors.New("unreachable")
			}
			return []model.Folder{{ID: "f1", Name: "Work"}}, true, nil
		},
	}

	s := NewConversations(api, newTestCache(t), authedEnv())
	s.Load(context.Background())
	if !s.FoldersEnabled() {
		t.Fatal("folders should be enabled after successful load")
	}

	folderErr = true
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("folder failure must not fail the refresh: %v", err)
	}
	if !s.FoldersEnabled() {
		t.Error("transient folder failure must preserve the enabled flag")
	}
	if got := s.Folders(); len(got) != 0 {
		t.Errorf("Folders = %v, want empty fallback", got)
	}
}

func TestLoad_CacheHitSurfacesBeforeNetworkFetch(t *testing.T) {
	c := newTestCache(t)
	cache.SetJSON(c, cache.SnapshotKey("conversations"), []model.Conversation{{ID: "cached"}})

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			<-block
			return nil, errors.New("too late")
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			<-block
			return nil, false, errors.New("too late")
		},
	}

	s := NewConversations(api, c, authedEnv())
	got := s.Load(context.Background())
	if len(got) != 1 || got[0].ID != "cached" {
		t.Errorf("Load = %v, want cached snapshot", got)
	}
}

func TestLoad_UnauthenticatedResetsSnapshots(t *testing.T) {
	c := newTestCache(t)
	cache.SetJSON(c, cache.SnapshotKey("conversations"), []model.Conversation{{ID: "stale"}})

	s := NewConversations(&stubConvAPI{}, c, anonEnv())
	if got := s.Load(context.Background()); len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
	snap, ok := cache.GetJSONSync[[]model.Conversation](c, cache.SnapshotKey("conversations"))
	if !ok || len(snap) != 0 {
		t.Errorf("snapshot = %v ok=%v, want empty reset", snap, ok)
	}
}

func TestVisible_PinnedFirstThenNewest(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{
				{ID: "new", UpdatedAt: base.Add(3 * time.Hour)},
				{ID: "pinned-old", Pinned: true, UpdatedAt: base},
				{ID: "archived", Archived: true, UpdatedAt: base.Add(4 * time.Hour)},
				{ID: "old", UpdatedAt: base.Add(time.Hour)},
			}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return nil, false, nil
		},
	}

	s := NewConversations(api, newTestCache(t), authedEnv())
	s.Load(context.Background())

	got := s.Visible()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (archived hidden)", len(got))
	}
	if got[0].ID != "pinned-old" || got[1].ID != "new" || got[2].ID != "old" {
		t.Errorf("order = [%s %s %s], want [pinned-old new old]", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestMutate_UpsertResortsAndPersists(t *testing.T) {
	c := newTestCache(t)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	api := &stubConvAPI{
		conversations: func(context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: "a", UpdatedAt: base}}, nil
		},
		folders: func(context.Context) ([]model.Folder, bool, error) {
			return nil, false, nil
		},
	}

	s := NewConversations(api, c, authedEnv())
	s.Load(context.Background())

	s.Upsert(model.Conversation{ID: "b", UpdatedAt: base.Add(time.Hour)})
	s.Upsert(model.Conversation{ID: "b", Title: "renamed", UpdatedAt: base.Add(2 * time.Hour)})

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "b" || snap[0].Title != "renamed" {
		t.Errorf("snapshot = %v", snap)
	}

	cached, _ := cache.GetJSONSync[[]model.Conversation](c, cache.SnapshotKey("conversations"))
	if len(cached) != 2 || cached[0].ID != "b" {
		t.Errorf("cached = %v", cached)
	}
}
