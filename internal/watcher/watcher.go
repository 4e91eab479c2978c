// Package watcher feeds files dropped into a directory to a handler.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
)

const defaultSettle = 500 * time.Millisecond

// HandleFunc receives the path of a created or rewritten file.
type HandleFunc func(ctx context.Context, path string) error

type Watcher struct {
	dir    string
	handle HandleFunc
	settle time.Duration
	log    *zap.Logger
}

type Option func(*Watcher)

// WithSettle sets how long a file must stay quiet before it is handled.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.log = logger.OrNop(l) }
}

func New(dir string, handle HandleFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:    dir,
		handle: handle,
		settle: defaultSettle,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("watcher")
	return w
}

// Existing returns the visible regular files already in the directory.
func (w *Watcher) Existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", w.dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(w.dir, e.Name()))
	}
	return out, nil
}

// Run blocks until ctx is cancelled. Handler errors are logged and do not
// stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching", zap.String("dir", w.dir))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleFsEvent(ev); ok {
				pending[path] = time.Now()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("fs watcher error", zap.Error(err))
		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.settle {
					continue
				}
				delete(pending, path)
				if err := w.handle(ctx, path); err != nil {
					w.log.Warn("handle file failed", zap.String("path", path), zap.Error(err))
				}
			}
		}
	}
}

// handleFsEvent reports the file an event refers to when it should be
// handled: a visible regular file that was created or written.
func (w *Watcher) handleFsEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if isHidden(filepath.Base(ev.Name)) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ev.Name, true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
