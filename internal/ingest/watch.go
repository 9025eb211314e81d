package ingest

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"cvmatcher/internal/types"
)

// BatchFunc receives the outcome of each batch a DropWatcher ingests.
type BatchFunc func(files []string, result *types.BatchResult, err error)

// DropWatcher ingests résumés copied into a directory. Events are debounced
// so a burst of copies becomes one batch.
type DropWatcher struct {
	svc            *Service
	dir            string
	jobDescription Document
	debounce       time.Duration
	onBatch        BatchFunc

	fsWatcher *fsnotify.Watcher
	pending   map[string]struct{}
}

// NewDropWatcher watches dir; every batch is matched against jobDescription.
func NewDropWatcher(svc *Service, dir string, jobDescription Document, debounce time.Duration, onBatch BatchFunc) (*DropWatcher, error) {
	if debounce <= 0 {
		debounce = time.Second
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot watch %s: not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return &DropWatcher{
		svc:            svc,
		dir:            dir,
		jobDescription: jobDescription,
		debounce:       debounce,
		onBatch:        onBatch,
		fsWatcher:      watcher,
		pending:        make(map[string]struct{}),
	}, nil
}

// Run processes events until ctx is cancelled. Files still pending at that
// point are dropped.
func (w *DropWatcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsWatcher.Close(); err != nil {
			w.svc.logger.LogError(err, "Failed to close file watcher")
		}
	}()

	w.svc.logger.Info("Watching directory for résumés",
		"directory", w.dir,
		"extensions", w.svc.Extensions(),
		"debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if w.shouldProcessEvent(event) {
				w.pending[event.Name] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.svc.logger.LogError(err, "File watcher error")

		case <-timer.C:
			w.flush(ctx)

		case <-ctx.Done():
			w.svc.logger.Info("Directory watcher stopped", "directory", w.dir)
			return nil
		}
	}
}

// shouldProcessEvent accepts writes and creations of supported, visible files
func (w *DropWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return w.svc.sources.Supports(base)
}

// flush ingests every pending file as one batch
func (w *DropWatcher) flush(ctx context.Context) {
	paths := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)

	documents := make([]Document, 0, len(paths))
	files := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			w.svc.logger.Warn("Skipping unreadable file", "file", path, "error", err.Error())
			continue
		}
		documents = append(documents, Document{Filename: filepath.Base(path), Data: data})
		files = append(files, path)
	}
	if len(documents) == 0 {
		return
	}

	w.svc.logger.Info("Ingesting dropped files", "count", len(documents))
	result, err := w.svc.ProcessUpload(ctx, documents, w.jobDescription)
	if w.onBatch != nil {
		w.onBatch(files, result, err)
	}
}
