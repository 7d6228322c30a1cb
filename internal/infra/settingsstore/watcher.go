// internal/infra/settingsstore/watcher.go
package settingsstore

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"health_notification_bot/internal/domain/settings"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the document whenever the file at path is changed by someone else.
// It returns once the watcher is installed; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	// Atomic replacement swaps the inode, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	target := filepath.Clean(path)
	logCtx := s.logger.WithField("path", target)

	go func() {
		defer watcher.Close()
		var debounceTimer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, func() {
					if err := s.Reload(ctx); err != nil {
						logCtx.WithError(err).Warn("Failed to reload settings after external change")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logCtx.WithError(err).Warn("Settings watcher error")
			}
		}
	}()
	return nil
}

// Reload picks up an external edit. The store's own writes are ignored. A corrupt
// edit is preserved aside and the current document is written back.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.backend.Read(ctx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	own := bytes.Equal(data, s.lastWritten)
	s.mu.RUnlock()
	if data == nil || own {
		return nil
	}

	doc, dropped, err := decode(data)
	if err != nil {
		s.recoverCorrupt(ctx, data, err)
		return s.mutateLocked(ctx, func(*settings.Document) (bool, error) { return true, nil })
	}
	if len(dropped) > 0 {
		s.recoverReminders(ctx, data, dropped)
		s.mu.Lock()
		s.doc = doc
		s.mu.Unlock()
		return s.mutateLocked(ctx, func(*settings.Document) (bool, error) { return true, nil })
	}

	s.mu.Lock()
	s.doc = doc
	s.lastWritten = data
	s.mu.Unlock()
	s.logger.Info("Settings reloaded after external change")
	return nil
}
