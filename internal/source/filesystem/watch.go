package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Changes watches every library directory. Each relevant event marks the
// scan stale and delivers one signal; signals coalesce while undelivered.
func (p *Provider) Changes(ctx context.Context) (<-chan struct{}, error) {
	if _, err := p.current(ctx); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	p.mu.RLock()
	dirs := append([]string(nil), p.watched...)
	p.mu.RUnlock()
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			p.logger.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}

	out := make(chan struct{}, 1)
	go p.watch(ctx, w, out)
	return out, nil
}

func (p *Provider) watch(ctx context.Context, w *fsnotify.Watcher, out chan<- struct{}) {
	defer close(out)
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !p.relevant(w, event) {
				continue
			}
			p.markDirty()
			select {
			case out <- struct{}{}:
			default: // A pending signal already covers this change
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.logger.Error("file watcher error", "error", err)
		}
	}
}

// relevant filters out dotfiles, attribute changes and non-media files. New
// directories are added to the watch set.
func (p *Provider) relevant(w *fsnotify.Watcher, event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
			if err := w.Add(event.Name); err != nil {
				p.logger.Warn("failed to watch directory", "dir", event.Name, "error", err)
			}
			return true
		}
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if imageExts[ext] || videoExts[ext] {
		if rel, err := filepath.Rel(p.root, event.Name); err == nil && p.cache != nil {
			p.cache.InvalidateAsset(filepath.ToSlash(rel))
		}
		return true
	}
	// Removed or renamed directories carry no extension
	return ext == "" && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename))
}
