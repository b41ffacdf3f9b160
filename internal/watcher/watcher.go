// Package watcher observes the audio library directory and reports
// file changes, so project audio presence tracks the filesystem.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FSWatcher watches a directory with fsnotify. Watch blocks until the
// context is done or Stop is called.
type FSWatcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	callback func(path string, event EventType)
	fsw      *fsnotify.Watcher
}

func NewFSWatcher(logger *slog.Logger) *FSWatcher {
	return &FSWatcher{logger: logger}
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

func (w *FSWatcher) Watch(ctx context.Context, path string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create watcher: %w", err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return fmt.Errorf("cannot watch %s: %w", path, err)
	}

	w.logger.Info("watching library directory", "path", path)

	for {
		select {
		case <-ctx.Done():
			return w.Stop()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.dispatch(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *FSWatcher) dispatch(ev fsnotify.Event) {
	var event EventType
	switch {
	case ev.Has(fsnotify.Create):
		event = EventCreate
	case ev.Has(fsnotify.Write):
		event = EventModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		event = EventDelete
	default:
		return
	}

	w.mu.Lock()
	callback := w.callback
	w.mu.Unlock()

	if callback != nil {
		callback(ev.Name, event)
	}
}

func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

// StubWatcher is used when no library directory is configured.
type StubWatcher struct {
	logger   *slog.Logger
	callback func(path string, event EventType)
}

func NewStubWatcher(logger *slog.Logger) *StubWatcher {
	return &StubWatcher{logger: logger}
}

func (w *StubWatcher) Watch(ctx context.Context, path string) error {
	w.logger.Info("watcher stub: no library directory configured")
	return nil
}

func (w *StubWatcher) Stop() error {
	return nil
}

func (w *StubWatcher) OnChange(callback func(path string, event EventType)) {
	w.callback = callback
}
