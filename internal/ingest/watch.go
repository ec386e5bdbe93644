package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-ingests supported files in a directory whenever they are
// created or modified. Bursts of events for one file are debounced.
type Watcher struct {
	pipeline *Pipeline
	logger   *zap.Logger
	debounce time.Duration
}

func NewWatcher(p *Pipeline, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{pipeline: p, logger: p.logger, debounce: debounce}
}

// IngestDir ingests every supported file directly under dir.
func (w *Watcher) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir %s: %w", dir, err)
	}
	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		n, err := w.pipeline.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			w.logger.Warn("ingest failed", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

// Watch blocks until ctx is done. onIngest, if set, is called after each
// successful ingestion.
func (w *Watcher) Watch(ctx context.Context, dir string, onIngest func(path string, chunks int)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
		wg     sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok && t.Stop() {
			t.Reset(w.debounce)
			return
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(w.debounce, func() {
			defer wg.Done()
			mu.Lock()
			if timers[path] == t {
				delete(timers, path)
			}
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			n, err := w.pipeline.IngestFile(ctx, path)
			if err != nil {
				w.logger.Warn("ingest failed", zap.String("file", path), zap.Error(err))
				return
			}
			if onIngest != nil {
				onIngest(path, n)
			}
		})
		timers[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !Supported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule(event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
