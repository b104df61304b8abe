// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jeranaias/relay-tui/internal/api"
	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/model"
)

// PlaceholderTitle is used for folder members the server lists but never
// returned in full. The entry keeps the folder's member count consistent
// until the real conversation loads.
const PlaceholderTitle = "Untitled conversation"

// ConversationsAPI is the API surface the conversations store consumes.
type ConversationsAPI interface {
	GetConversations(ctx context.Context) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetFolders(ctx context.Context) ([]model.Folder, bool, error)
	GetFolderConversationSummaries(ctx context.Context, folderID string) ([]model.ConversationSummary, error)
	SearchChats(ctx context.Context, query string, archived bool, limit int, sortBy, sortOrder string) ([]model.Conversation, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)
}

// =============================================================================
// CONVERSATIONS STORE
// =============================================================================

// Conversations holds the synchronized conversation list together with the
// server's folders. The two load together: folder membership is reconciled
// into each conversation's FolderID on every fetch.
type Conversations struct {
	api   ConversationsAPI
	cache *cache.Cache
	env   Env

	limiter *rate.Limiter

	mu             sync.Mutex
	items          []model.Conversation
	folders        []model.Folder
	foldersEnabled bool
	loaded         bool
	disposed       bool
}

// NewConversations creates the conversations store.
func NewConversations(a ConversationsAPI, c *cache.Cache, env Env) *Conversations {
	return &Conversations{
		api:            a,
		cache:          c,
		env:            env,
		foldersEnabled: true,
		limiter:        rate.NewLimiter(rate.Every(warmRefreshInterval), 1),
	}
}

// Load returns the conversation list, cache-first. Never returns an error:
// fetch failures degrade to an empty list and are logged.
func (s *Conversations) Load(ctx context.Context) []model.Conversation {
	if s.env.reviewer() {
		s.mu.Lock()
		s.items = demoConversations()
		s.folders = demoFolders()
		s.foldersEnabled = true
		s.loaded = true
		s.mu.Unlock()
		return demoConversations()
	}

	if !s.env.authed() {
		s.mu.Lock()
		s.items = nil
		s.folders = nil
		s.loaded = true
		s.mu.Unlock()
		cache.SetJSON(s.cache, cache.SnapshotKey("conversations"), []model.Conversation{})
		cache.SetJSON(s.cache, cache.SnapshotKey("folders"), []model.Folder{})
		return nil
	}

	cached, ok := cache.GetJSON[[]model.Conversation](s.cache, cache.SnapshotKey("conversations"))
	if ok && len(cached) > 0 {
		folders, _ := cache.GetJSON[[]model.Folder](s.cache, cache.SnapshotKey("folders"))
		s.mu.Lock()
		s.items = cached
		s.folders = folders
		s.loaded = true
		s.mu.Unlock()

		if s.limiter.Allow() {
			go func() {
				if err := s.Refresh(context.Background()); err != nil {
					log.Printf("store: conversations: warm refresh: %v", err)
				}
			}()
		}
		return cached
	}

	if err := s.fetchAndReconcile(ctx); err != nil {
		if errors.Is(err, api.ErrForbidden) {
			log.Printf("store: conversations: feature disabled: %v", err)
		} else {
			log.Printf("store: conversations: load: %v", err)
		}
		return nil
	}
	return s.Snapshot()
}

// Refresh forces a fetch-and-reconcile. On failure the previous state is
// preserved and the error returned.
func (s *Conversations) Refresh(ctx context.Context) error {
	if s.env.reviewer() {
		return nil
	}
	if err := s.fetchAndReconcile(ctx); err != nil {
		log.Printf("store: conversations: refresh: %v", err)
		return err
	}
	return nil
}

// fetchAndReconcile fetches conversations and folders concurrently and
// merges folder membership into the conversation list. A folder fetch
// failure degrades to an empty folder list without failing the operation;
// the previously known folders-enabled flag stays in effect so a transient
// outage is not mistaken for the server disabling the feature.
func (s *Conversations) fetchAndReconcile(ctx context.Context) error {
	var (
		convs          []model.Conversation
		folders        []model.Folder
		foldersEnabled bool
		folderErr      error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		convs, err = s.api.GetConversations(gctx)
		return err
	})
	g.Go(func() error {
		fl, enabled, err := s.api.GetFolders(gctx)
		if err != nil {
			folderErr = err
			return nil
		}
		folders, foldersEnabled = fl, enabled
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if folderErr != nil {
		log.Printf("store: conversations: folders fetch: %v", folderErr)
	}

	convs = s.reconcile(ctx, convs, folders)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.items = convs
	s.loaded = true
	if folderErr == nil {
		s.folders = folders
		s.foldersEnabled = foldersEnabled
	} else {
		s.folders = nil
	}
	folderSnapshot := append([]model.Folder(nil), s.folders...)
	s.mu.Unlock()

	cache.SetJSON(s.cache, cache.SnapshotKey("conversations"), convs)
	if folderErr == nil {
		cache.SetJSON(s.cache, cache.SnapshotKey("folders"), folderSnapshot)
	}
	return nil
}

// reconcile maps folder membership onto conversations, fetches summaries for
// folders referencing unknown ids, and synthesizes placeholders for ids the
// server never resolves. Result is deduplicated and sorted newest first.
func (s *Conversations) reconcile(ctx context.Context, convs []model.Conversation, folders []model.Folder) []model.Conversation {
	// Dedupe the base set by id, first occurrence wins.
	byID := make(map[string]int, len(convs))
	out := convs[:0]
	for _, c := range convs {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = len(out)
		out = append(out, c)
	}
	convs = out

	membership := make(map[string]string)
	for _, f := range folders {
		for _, cid := range f.ConversationIDs {
			membership[cid] = f.ID
		}
	}

	// A conversation's own folder field wins over the membership mapping.
	for i := range convs {
		if convs[i].FolderID == "" {
			if fid, ok := membership[convs[i].ID]; ok {
				convs[i].FolderID = fid
			}
		}
	}

	for _, f := range folders {
		var missing []string
		for _, cid := range f.ConversationIDs {
			if _, ok := byID[cid]; !ok {
				missing = append(missing, cid)
			}
		}
		if len(missing) > 0 {
			log.Printf("store: conversations: folder %s references %d unknown conversations", f.ID, len(missing))
		}

		mapped := 0
		for i := range convs {
			if convs[i].FolderID == f.ID {
				mapped++
			}
		}

		// Fetch summaries only when the membership data is demonstrably
		// incomplete: unknown ids present, or the folder claims members while
		// nothing maps to it and its membership list came back empty.
		needFetch := len(missing) > 0 ||
			(f.ConversationCount > 0 && mapped == 0 && len(f.ConversationIDs) == 0)
		if !needFetch {
			continue
		}

		summaries, err := s.api.GetFolderConversationSummaries(ctx, f.ID)
		if err != nil {
			log.Printf("store: conversations: folder %s summaries: %v", f.ID, err)
		}
		for _, sum := range summaries {
			if _, ok := byID[sum.ID]; ok {
				continue
			}
			fid := sum.FolderID
			if fid == "" {
				fid = f.ID
			}
			byID[sum.ID] = len(convs)
			convs = append(convs, model.Conversation{
				ID:        sum.ID,
				Title:     sum.Title,
				UpdatedAt: sum.UpdatedAt,
				FolderID:  fid,
				Messages:  []model.Message{},
			})
		}

		// Ids still unresolved become placeholders so the folder's member
		// count stays consistent in the UI.
		for _, cid := range missing {
			if _, ok := byID[cid]; ok {
				continue
			}
			byID[cid] = len(convs)
			convs = append(convs, model.Conversation{
				ID:       cid,
				Title:    PlaceholderTitle,
				FolderID: f.ID,
				Messages: []model.Message{},
			})
		}
	}

	sortConversations(convs)
	return convs
}

func sortConversations(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Snapshot returns a copy of the full conversation list, newest first.
func (s *Conversations) Snapshot() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Conversation(nil), s.items...)
}

// Visible returns non-archived conversations with pinned entries first,
// each group newest first.
func (s *Conversations) Visible() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := make([]model.Conversation, 0, len(s.items))
	for _, c := range s.items {
		if !c.Archived {
			visible = append(visible, c)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].Pinned != visible[j].Pinned {
			return visible[i].Pinned
		}
		return visible[i].UpdatedAt.After(visible[j].UpdatedAt)
	})
	return visible
}

// Folders returns the folder list sorted by case-insensitive name.
func (s *Conversations) Folders() []model.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders := append([]model.Folder(nil), s.folders...)
	sort.SliceStable(folders, func(i, j int) bool {
		return strings.ToLower(folders[i].Name) < strings.ToLower(folders[j].Name)
	})
	return folders
}

// FoldersEnabled reports whether the server has the folders feature on.
// Preserved across transient folder fetch failures.
func (s *Conversations) FoldersEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foldersEnabled
}

// Get returns the resident conversation with the given id.
func (s *Conversations) Get(id string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.items {
		if c.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// =============================================================================
// MUTATORS
// =============================================================================

// Upsert inserts or replaces a conversation by id. No-op until loaded.
func (s *Conversations) Upsert(conv model.Conversation) {
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == conv.ID {
				s.items[i] = conv
				return
			}
		}
		s.items = append(s.items, conv)
	})
}

// Update applies fn to the conversation with the given id, if resident.
func (s *Conversations) Update(id string, fn func(model.Conversation) model.Conversation) {
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i] = fn(s.items[i])
				return
			}
		}
	})
}

// Remove deletes a conversation by id, if resident.
func (s *Conversations) Remove(id string) {
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items = append(s.items[:i], s.items[i+1:]...)
				return
			}
		}
	})
}

func (s *Conversations) mutate(fn func()) {
	s.mu.Lock()
	if !s.loaded || s.disposed {
		s.mu.Unlock()
		return
	}
	fn()
	sortConversations(s.items)
	snapshot := append([]model.Conversation(nil), s.items...)
	s.mu.Unlock()
	cache.SetJSON(s.cache, cache.SnapshotKey("conversations"), snapshot)
}

// =============================================================================
// PASSTHROUGH OPERATIONS
// =============================================================================

// Fetch pulls one conversation in full and upserts it.
func (s *Conversations) Fetch(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.api.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		s.Upsert(*conv)
	}
	return conv, nil
}

// SearchChats runs a server-side conversation search.
func (s *Conversations) SearchChats(ctx context.Context, query string, archived bool, limit int, sortBy, sortOrder string) ([]model.Conversation, error) {
	if s.env.reviewer() {
		q := strings.ToLower(query)
		var out []model.Conversation
		for _, c := range demoConversations() {
			if c.Archived == archived && strings.Contains(strings.ToLower(c.Title), q) {
				out = append(out, c)
			}
		}
		return out, nil
	}
	return s.api.SearchChats(ctx, query, archived, limit, sortBy, sortOrder)
}

// SearchMessages runs a server-side full-text message search.
func (s *Conversations) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	if s.env.reviewer() {
		q := strings.ToLower(query)
		var out []model.Message
		for _, c := range demoConversations() {
			for _, m := range c.Messages {
				if strings.Contains(strings.ToLower(m.Content), q) {
					out = append(out, m)
				}
			}
		}
		return out, nil
	}
	return s.api.SearchMessages(ctx, query, limit)
}

// Dispose marks the store dead; late fetch completions become no-ops.
func (s *Conversations) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}
