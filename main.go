// relay-tui - terminal chat client synchronized against a Relay server.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/relay-tui/internal/api"
	"github.com/jeranaias/relay-tui/internal/backend"
	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/delta"
	"github.com/jeranaias/relay-tui/internal/netmon"
	"github.com/jeranaias/relay-tui/internal/selection"
	"github.com/jeranaias/relay-tui/internal/socket"
	"github.com/jeranaias/relay-tui/internal/state"
	"github.com/jeranaias/relay-tui/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const startupTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-tui: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	settings.ApplyEnvOverrides()
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cachePath, err := config.CachePath()
	if err != nil {
		return err
	}
	c, err := cache.Open(cachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()

	// Token falls back to the one cached by a previous login flow.
	if settings.Token == "" {
		if token, ok := c.GetString(cache.KeyAuthToken); ok {
			settings.Token = token
		}
	}

	queue := state.NewQueue()
	defer queue.Close()
	settingsC := state.New("settings", settings, queue)

	client := api.NewClient(settings.Server, settings.Token)
	client.OnAuthInvalid(func() {
		// Silent re-login hook; the session degrades to cached data.
		log.Printf("auth token rejected, reauthentication required")
	})
	settingsC.Subscribe(func(s config.Settings) {
		client.SetToken(s.Token)
	})

	monitor := netmon.New()
	defer monitor.Close()
	if host := probeHost(settings.Server); host != "" {
		monitor.StartProbe(host, netmon.DefaultProbeInterval)
	}

	env := store.Env{
		Authed:   func() bool { return settingsC.Get().Token != "" },
		Reviewer: func() bool { return settingsC.Get().ReviewerMode },
	}

	conversations := store.NewConversations(client, c, env)
	defer conversations.Dispose()
	models := store.NewModels(client, c, env)
	defer models.Dispose()
	files := store.NewFiles(client, c, env)
	defer files.Dispose()
	knowledge := store.NewKnowledge(client, c, env)
	defer knowledge.Dispose()

	resolver := backend.NewResolver(client, c, settingsC, queue)

	manager := socket.NewManager(settingsC, resolver.TransportOptionsSync, monitor, queue,
		func(cfg socket.ConnConfig) socket.Conn { return socket.NewWSConn(cfg) })
	defer manager.Dispose()

	router := delta.NewRouter(manager.Connection())
	defer router.Dispose()

	reconciler := selection.NewReconciler(client, c, settingsC, models, env, queue)
	defer reconciler.Dispose()

	watcher, err := startConfigWatcher(settingsC)
	if err != nil {
		log.Printf("config watch unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	startup(settingsC, c, client, resolver, conversations, models, files, knowledge, reconciler)
	manager.Reconcile()

	log.Printf("relay-tui %s connected to %s", Version, settings.Server)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("shutting down")
	return nil
}

// startup performs the initial synchronization pass. Every failure degrades
// to cached data; nothing here is fatal.
func startup(
	settingsC *state.Container[config.Settings],
	c *cache.Cache,
	client *api.Client,
	resolver *backend.Resolver,
	conversations *store.Conversations,
	models *store.Models,
	files *store.Files,
	knowledge *store.Knowledge,
	reconciler *selection.Reconciler,
) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := resolver.Refresh(ctx); err != nil {
		log.Printf("backend config unavailable, using cached policy")
	}

	if user, err := client.GetCurrentUser(ctx); err != nil {
		log.Printf("current user: %v", err)
	} else if user != nil {
		cache.SetJSON(c, cache.KeyCurrentUser, user)
	}

	if doc, err := client.GetUserSettings(ctx); err != nil {
		log.Printf("user settings: %v", err)
	} else if doc != nil {
		cache.SetJSON(c, cache.KeyUserSettings, doc)
	}

	conversations.Load(ctx)
	models.Load(ctx)
	files.Load(ctx)
	knowledge.Load(ctx)

	if m := reconciler.Resolve(ctx); m != nil {
		log.Printf("active model: %s", m.ID)
	}

	s := settingsC.Get()
	c.SetString(cache.KeyActiveServerID, s.EffectiveServerID())
	c.SetBool(cache.KeyReviewerMode, s.ReviewerMode)
	if s.Theme != "" {
		c.SetString(cache.KeyTheme, s.Theme)
	}
	if s.Locale != "" {
		c.SetString(cache.KeyLocale, s.Locale)
	}
}

// startConfigWatcher hot-reloads the settings file into the container. The
// socket manager and API client react through their subscriptions.
func startConfigWatcher(settingsC *state.Container[config.Settings]) (*config.Watcher, error) {
	path, err := config.Path()
	if err != nil {
		return nil, err
	}
	return config.Watch(path, func(s config.Settings) {
		s.ApplyEnvOverrides()
		if err := s.Validate(); err != nil {
			log.Printf("config: reloaded settings invalid: %v", err)
			return
		}
		settingsC.Set(s)
		log.Printf("config reloaded")
	})
}

func probeHost(server string) string {
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	return host
}
