// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromPath_Missing(t *testing.T) {
	s, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should load defaults, got %v", err)
	}
	if s.Transport != TransportAuto {
		t.Errorf("Transport = %q, want auto", s.Transport)
	}
	if s.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", s.Theme)
	}
}

func TestLoadFromPath_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	in := Default()
	in.Server = "https://relay.example"
	in.ServerID = "prod"
	in.Transport = TransportWebsocket
	in.DefaultModel = "m-default"

	if err := SaveToPath(in, path); err != nil {
		t.Fatalf("SaveToPath failed: %v", err)
	}

	out, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if out.Server != in.Server || out.ServerID != in.ServerID ||
		out.Transport != in.Transport || out.DefaultModel != in.DefaultModel {
		t.Errorf("round trip mismatch: %+v", out)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("settings file perm = %o, want 0600", info.Mode().Perm())
	}
}

func TestSettings_Validate(t *testing.T) {
	s := Default()
	s.Transport = "carrier-pigeon"
	if err := s.Validate(); err == nil {
		t.Error("invalid transport should fail validation")
	}

	s = Default()
	s.Server = "ftp://bad.example"
	if err := s.Validate(); err == nil {
		t.Error("non-http server URL should fail validation")
	}

	s = Default()
	s.Server = "https://good.example"
	if err := s.Validate(); err != nil {
		t.Errorf("valid settings failed: %v", err)
	}
}

func TestSettings_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_SERVER", "https://env.example")
	t.Setenv("RELAY_TOKEN", "env-token")
	t.Setenv("RELAY_REVIEWER", "true")

	s := Default()
	s.ApplyEnvOverrides()

	if s.Server != "https://env.example" {
		t.Errorf("Server = %q", s.Server)
	}
	if s.Token != "env-token" {
		t.Errorf("Token = %q", s.Token)
	}
	if !s.ReviewerMode {
		t.Error("ReviewerMode should be enabled")
	}
}

func TestSettings_EffectiveServerID(t *testing.T) {
	s := Settings{Server: "https://relay.example:8443/base"}
	if got := s.EffectiveServerID(); got != "relay.example:8443" {
		t.Errorf("EffectiveServerID = %q", got)
	}

	s.ServerID = "explicit"
	if got := s.EffectiveServerID(); got != "explicit" {
		t.Errorf("EffectiveServerID = %q, want explicit", got)
	}
}
