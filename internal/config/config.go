// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides the user settings for the relay client.
//
// Settings load from ~/.relay/config.toml with environment overrides and
// validation. The loaded Settings value is immutable by convention; callers
// publish changes through the state container wired in main, so observers
// (the socket manager, the model reconciler) see every change.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/relay-tui/internal/util"
)

// Transport preference values.
const (
	TransportAuto      = "auto"
	TransportPolling   = "polling"
	TransportWebsocket = "websocket"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the complete relay client configuration.
type Settings struct {
	// Server is the active server base URL.
	Server string `toml:"server"`

	// ServerID identifies the active server; derived from Server when empty.
	ServerID string `toml:"server_id"`

	// Token is the auth bearer token. Usually supplied via RELAY_TOKEN.
	Token string `toml:"token"`

	// Transport is the preferred realtime transport: auto, polling, websocket.
	// The server's enforced transport mode may overwrite this.
	Transport string `toml:"transport"`

	// DefaultModel is the user's preferred default model id.
	DefaultModel string `toml:"default_model"`

	// ReviewerMode makes stores serve a fixed synthetic dataset with no
	// network or cache access, for app-review/demo flows.
	ReviewerMode bool `toml:"reviewer_mode"`

	// UI passthrough settings (consumed by the rendering layer).
	Theme  string `toml:"theme"`
	Locale string `toml:"locale"`
}

// Default returns Settings with sensible default values.
func Default() Settings {
	return Settings{
		Transport: TransportAuto,
		Theme:     "dark",
		Locale:    "en",
	}
}

// EffectiveServerID returns ServerID, falling back to the server URL's host.
func (s Settings) EffectiveServerID() string {
	if s.ServerID != "" {
		return s.ServerID
	}
	if u, err := url.Parse(s.Server); err == nil && u.Host != "" {
		return u.Host
	}
	return s.Server
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the relay configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relay"), nil
}

// Path returns the path to the TOML settings file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CachePath returns the path to the snapshot cache database.
func CachePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads settings from the default path, applying defaults, environment
// overrides, and validation. A missing file is not an error.
func Load() (Settings, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads settings from a specific file path.
func LoadFromPath(path string) (Settings, error) {
	s := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return Default(), fmt.Errorf("failed to decode settings file: %w", err)
		}
	}

	s.ApplyEnvOverrides()
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Save writes settings to the default path atomically with 0600 permissions
// (the file may contain the auth token).
func Save(s Settings) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(s, path)
}

// SaveToPath writes settings to a specific path.
func SaveToPath(s Settings, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# relay configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// =============================================================================
// ENV OVERRIDES, DEFAULTS, VALIDATION
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - RELAY_SERVER: overrides server
//   - RELAY_TOKEN: overrides token
//   - RELAY_TRANSPORT: overrides transport
//   - RELAY_REVIEWER: "1"/"true" enables reviewer mode
func (s *Settings) ApplyEnvOverrides() {
	if v := os.Getenv("RELAY_SERVER"); v != "" {
		s.Server = v
	}
	if v := os.Getenv("RELAY_TOKEN"); v != "" {
		s.Token = v
	}
	if v := os.Getenv("RELAY_TRANSPORT"); v != "" {
		s.Transport = v
	}
	if v := os.Getenv("RELAY_REVIEWER"); v != "" {
		s.ReviewerMode = v == "1" || strings.EqualFold(v, "true")
	}
}

// SetDefaults fills zero-value fields with defaults.
func (s *Settings) SetDefaults() {
	d := Default()
	if s.Transport == "" {
		s.Transport = d.Transport
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.Locale == "" {
		s.Locale = d.Locale
	}
}

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the settings and returns any errors.
func (s *Settings) Validate() error {
	var errs ValidateErrors

	validTransports := map[string]bool{
		TransportAuto: true, TransportPolling: true, TransportWebsocket: true,
	}
	if !validTransports[strings.ToLower(s.Transport)] {
		errs = append(errs, ValidationError{
			Field:   "transport",
			Message: fmt.Sprintf("invalid transport '%s', must be one of: auto, polling, websocket", s.Transport),
		})
	}

	if s.Server != "" {
		u, err := url.Parse(s.Server)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "server",
				Message: fmt.Sprintf("invalid server URL '%s'", s.Server),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
