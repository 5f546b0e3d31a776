package server

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchArtifacts reloads the registry when catalog.json or manifest.json
// change. The parent directories are watched because dbt replaces the files
// rather than writing them in place.
func (s *Server) watchArtifacts(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	files := s.watchedFiles()
	for _, dir := range parentDirs(files) {
		if err := watcher.Add(dir); err != nil {
			s.logger.Error("failed to watch artifacts directory", "dir", dir, "error", err)
			// keep serving the current snapshot
		}
	}

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
		stopped       bool
	)
	// No reload may run once the watcher has returned.
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !files[filepath.Clean(event.Name)] {
				continue
			}

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(s.opts.Debounce, func() {
				mu.Lock()
				defer mu.Unlock()
				if stopped {
					return
				}
				s.logger.Debug("artifact changed, reloading", "file", name)
				_ = s.Reload(ctx)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

func (s *Server) watchedFiles() map[string]bool {
	files := make(map[string]bool, 2)
	for _, p := range []string{s.opts.Registry.CatalogPath, s.opts.Registry.ManifestPath} {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		files[filepath.Clean(p)] = true
	}
	return files
}

func parentDirs(files map[string]bool) []string {
	seen := make(map[string]bool)
	var dirs []string
	for f := range files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}
