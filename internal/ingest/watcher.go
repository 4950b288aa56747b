package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Strategy string

const (
	// StrategyImmediate enqueues each file once its size stops changing.
	StrategyImmediate Strategy = "immediate"
	// StrategyBatched enqueues files in debounced batches.
	StrategyBatched Strategy = "batched"
)

type Enqueuer interface {
	Enqueue(filenames ...string)
}

type WatcherConfig struct {
	Dir             string
	Strategy        Strategy
	ProcessExisting bool
	PollInterval    time.Duration
	StableTimeout   time.Duration
	BatchWindow     time.Duration
}

// Watcher feeds new upload files into the queue.
type Watcher struct {
	cfg     WatcherConfig
	queue   Enqueuer
	meta    MetadataStore
	logger  *zap.SugaredLogger
	poller  *SizePoller
	batcher *Batcher

	ready     chan struct{}
	readyOnce sync.Once
	mu      sync.Mutex
	polling map[string]struct{}
	wg      sync.WaitGroup
}

func NewWatcher(cfg WatcherConfig, queue Enqueuer, meta MetadataStore, logger *zap.SugaredLogger) (*Watcher, error) {
	w := &Watcher{
		cfg:     cfg,
		queue:   queue,
		meta:    meta,
		logger:  logger,
		ready:   make(chan struct{}),
		polling: map[string]struct{}{},
	}

	switch cfg.Strategy {
	case StrategyImmediate:
		w.poller = NewSizePoller(cfg.PollInterval, cfg.StableTimeout, logger)
	case StrategyBatched:
		w.batcher = NewBatcher(cfg.BatchWindow, func(batch []string) { queue.Enqueue(batch...) }, logger)
	default:
		return nil, fmt.Errorf("unknown watch strategy %q", cfg.Strategy)
	}
	return w, nil
}

// Run watches until ctx is done. Only a failure to start watching is
// returned; errors reported while running are logged.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.markReady()

	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	if w.cfg.ProcessExisting {
		w.scanExisting(ctx)
	}
	w.logger.Infow("Watching uploads", "dir", w.cfg.Dir, "strategy", w.cfg.Strategy,
		"processExisting", w.cfg.ProcessExisting)
	w.markReady()

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorw("Watcher error", "dir", w.cfg.Dir, "error", err)
		}
	}
}

// Ready is closed once the directory is being watched and any backlog has
// been handed off, or once Run has returned without getting that far.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) markReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		w.logger.Errorw("Failed to list uploads", "dir", w.cfg.Dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.observe(ctx, e.Name())
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)

	switch {
	case ev.Has(fsnotify.Create):
		w.observe(ctx, name)
	case ev.Has(fsnotify.Write):
		if w.batcher != nil {
			w.batcher.Touch(name)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.batcher != nil {
			w.batcher.Forget(name)
		}
		if err := w.meta.Delete(name); err != nil {
			w.logger.Errorw("Failed to delete metadata", "file", name, "error", err)
		}
	}
}

func (w *Watcher) observe(ctx context.Context, name string) {
	if !Qualifies(name) {
		w.logger.Debugw("Ignoring file", "file", name)
		return
	}
	w.logger.Infow("File added", "file", name)

	if w.batcher != nil {
		w.batcher.Add(name)
		return
	}
	w.enqueueWhenStable(ctx, name)
}

func (w *Watcher) enqueueWhenStable(ctx context.Context, name string) {
	w.mu.Lock()
	if _, ok := w.polling[name]; ok {
		w.mu.Unlock()
		return
	}
	w.polling[name] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.polling, name)
			w.mu.Unlock()
		}()

		err := w.poller.WaitStable(ctx, filepath.Join(w.cfg.Dir, name))
		switch {
		case errors.Is(err, ErrStableTimeout):
			w.logger.Warnw("File still changing, enqueueing anyway", "file", name)
		case err != nil:
			return
		}
		w.queue.Enqueue(name)
	}()
}

func (w *Watcher) stop() {
	if w.batcher != nil {
		if left := w.batcher.Stop(); len(left) > 0 {
			w.logger.Warnw("Discarding pending batch", "files", left)
		}
	}
	w.wg.Wait()
}
