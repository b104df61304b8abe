// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// SETTINGS FILE WATCHER
// =============================================================================

// Watcher hot-reloads the settings file when it changes on disk and hands
// every successfully loaded Settings value to the callback.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchDebounce coalesces rapid editor write events.
const WatchDebounce = 250 * time.Millisecond

// Watch starts watching the settings file at path. The callback runs on the
// watcher's goroutine; load failures are logged and the previous settings
// stay in effect.
func Watch(path string, onChange func(Settings)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}

	go func() {
		var timer *time.Timer
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(WatchDebounce, func() {
					s, err := LoadFromPath(path)
					if err != nil {
						log.Printf("config: reload %s: %v", path, err)
						return
					}
					onChange(s)
				})
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Printf("config: watch: %v", err)
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
