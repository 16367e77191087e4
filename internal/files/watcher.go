// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces rapid change events for one file.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher keeps the catalog in sync with documents dropped into, or
// removed from, the upload directory out-of-band (scp, editors, cron).
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher over the catalog's upload directory.
func NewWatcher(catalog *Catalog, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(catalog.UploadDir()); err != nil {
		fsw.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		catalog:  catalog,
		watcher:  fsw,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start begins processing filesystem events until Close is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.catalog.logger.Warn("upload watcher error", "err", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		if err := w.catalog.removeByName(event.Name); err != nil {
			w.catalog.logger.Warn("failed to drop removed document", "path", event.Name, "err", err)
		}
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.scheduleRefresh(event.Name)
	}
}

// scheduleRefresh debounces per path: editors emit bursts of writes and
// the extraction should run once, on the settled file.
func (w *Watcher) scheduleRefresh(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if w.ctx.Err() != nil {
			return
		}
		if err := w.catalog.refreshFromDisk(path); err != nil {
			w.catalog.logger.Warn("failed to refresh document", "path", path, "err", err)
		}
	})
}
