// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the REST client for the Relay server.
//
// The client maps HTTP status classes onto the package error taxonomy
// (ErrUnauthorized / ErrForbidden / ErrUnreachable) and performs no retries:
// refresh orchestration and cache fallback are the stores' job.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
)

// Configuration constants for the Relay API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// Shared HTTP client with connection pooling for all Relay requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a REST client for one Relay server.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	token   string

	httpClient *http.Client

	// onAuthInvalid is invoked when a request fails with a 401-class error,
	// so the owner can attempt a silent re-login.
	onAuthInvalid func()
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: sharedHTTPClient,
	}
}

// SetToken updates the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// BaseURL returns the server base URL the client targets.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// OnAuthInvalid installs the callback fired on 401-class failures.
func (c *Client) OnAuthInvalid(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthInvalid = fn
}

// IsConfigured returns true if the client has a server URL.
func (c *Client) IsConfigured() bool {
	return c.BaseURL() != ""
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// apiErrorResponse is the error envelope the server returns.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs one request and decodes a JSON response into out (out may be
// nil for fire-and-forget endpoints). No retries.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "relay-tui/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	log.Printf("api: %s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

// handleErrorResponse converts HTTP error responses to the error taxonomy.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := ""
	code := ""
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
		code = apiErr.Error.Code
	}

	switch statusCode {
	case http.StatusUnauthorized:
		c.mu.RLock()
		fn := c.onAuthInvalid
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
		if message != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, message)
		}
		return ErrUnauthorized
	case http.StatusForbidden:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrForbidden, message)
		}
		return ErrForbidden
	case http.StatusNotFound:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, message)
		}
		return ErrNotFound
	default:
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return &APIError{Code: code, Message: message, Status: statusCode}
	}
}

// =============================================================================
// CONFIG AND IDENTITY ENDPOINTS
// =============================================================================

// GetBackendConfig fetches the server-declared capability configuration.
func (c *Client) GetBackendConfig(ctx context.Context) (*model.BackendConfig, error) {
	var out model.BackendConfig
	if err := c.getJSON(ctx, "/api/config", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCurrentUser fetches the authenticated user's identity.
func (c *Client) GetCurrentUser(ctx context.Context) (*model.CurrentUser, error) {
	var out model.CurrentUser
	if err := c.getJSON(ctx, "/api/users/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserSettings fetches the server-side user settings document.
func (c *Client) GetUserSettings(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, "/api/users/me/settings", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUserPermissions fetches the per-feature permission flags.
func (c *Client) GetUserPermissions(ctx context.Context) (*model.Permissions, error) {
	var out model.Permissions
	if err := c.getJSON(ctx, "/api/users/me/permissions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// MODEL ENDPOINTS
// =============================================================================

// GetModels fetches the full model list.
func (c *Client) GetModels(ctx context.Context) ([]model.ModelInfo, error) {
	var out struct {
		Data []model.ModelInfo `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/models", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetDefaultModel fetches the server-declared default model id. Returns an
// empty string when the server declares none.
func (c *Client) GetDefaultModel(ctx context.Context) (string, error) {
	var out struct {
		DefaultModelID string `json:"default_model_id"`
	}
	if err := c.getJSON(ctx, "/api/models/default", &out); err != nil {
		return "", err
	}
	return out.DefaultModelID, nil
}

// GetImageModels fetches the image-generation model list.
func (c *Client) GetImageModels(ctx context.Context) ([]model.ModelInfo, error) {
	var out struct {
		Data []model.ModelInfo `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/images/models", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetAvailableServerVoices fetches the server TTS voice list.
func (c *Client) GetAvailableServerVoices(ctx context.Context) ([]model.Voice, error) {
	var out struct {
		Voices []model.Voice `json:"voices"`
	}
	if err := c.getJSON(ctx, "/api/audio/voices", &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// =============================================================================
// CONVERSATION ENDPOINTS
// =============================================================================

// GetConversations fetches the full conversation list.
func (c *Client) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.getJSON(ctx, "/api/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches one conversation by id, with messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.getJSON(ctx, "/api/chats/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFolders fetches the folder list. The second return reports whether the
// server has the folders feature enabled.
func (c *Client) GetFolders(ctx context.Context) ([]model.Folder, bool, error) {
	var out struct {
		Folders []model.Folder `json:"folders"`
		Enabled bool           `json:"enabled"`
	}
	// A 403 here means the feature is disabled, not that the server is
	// broken; callers distinguish it with IsForbidden.
	if err := c.getJSON(ctx, "/api/folders", &out); err != nil {
		return nil, false, err
	}
	return out.Folders, out.Enabled, nil
}

// GetFolderConversationSummaries fetches the lightweight conversation list
// for one folder.
func (c *Client) GetFolderConversationSummaries(ctx context.Context, folderID string) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.getJSON(ctx, "/api/folders/"+url.PathEscape(folderID)+"/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchChats searches conversations server-side.
func (c *Client) SearchChats(ctx context.Context, query string, archived bool, limit int, sortBy, sortOrder string) ([]model.Conversation, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("archived", strconv.FormatBool(archived))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if sortBy != "" {
		q.Set("sort_by", sortBy)
	}
	if sortOrder != "" {
		q.Set("sort_order", sortOrder)
	}

	var out []model.Conversation
	if err := c.getJSON(ctx, "/api/chats/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchMessages searches message content server-side.
func (c *Client) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out []model.Message
	if err := c.getJSON(ctx, "/api/messages/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// FILE AND KNOWLEDGE ENDPOINTS
// =============================================================================

// GetUserFiles fetches the user's uploaded file list.
func (c *Client) GetUserFiles(ctx context.Context) ([]model.FileInfo, error) {
	var out []model.FileInfo
	if err := c.getJSON(ctx, "/api/files", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFileContent fetches the raw content of a file by id.
func (c *Client) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+"/api/files/"+url.PathEscape(id)+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, data)
	}
	return data, nil
}

// UploadFile uploads a local file under the given display name.
func (c *Client) UploadFile(ctx context.Context, path, name string) (*model.FileInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name == "" {
		name = filepath.Base(path)
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload body: %w", err)
	}

	var out model.FileInfo
	if err := c.do(ctx, http.MethodPost, "/api/files", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetKnowledgeBases fetches the knowledge base list.
func (c *Client) GetKnowledgeBases(ctx context.Context) ([]model.KnowledgeBase, error) {
	var out []model.KnowledgeBase
	if err := c.getJSON(ctx, "/api/knowledge", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetKnowledgeBaseItems fetches the items of one knowledge base.
func (c *Client) GetKnowledgeBaseItems(ctx context.Context, kbID string) ([]model.KnowledgeItem, error) {
	var out []model.KnowledgeItem
	if err := c.getJSON(ctx, "/api/knowledge/"+url.PathEscape(kbID)+"/items", &out); err != nil {
		return nil, err
	}
	return out, nil
}
