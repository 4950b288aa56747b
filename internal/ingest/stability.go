package ingest

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultBatchWindow  = 5 * time.Second
)

var ErrStableTimeout = errors.New("file did not settle before timeout")

// SizePoller declares a file ready once two consecutive size reads agree.
type SizePoller struct {
	interval time.Duration
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// NewSizePoller returns a poller reading every interval. A zero timeout waits
// until the file settles or ctx is done.
func NewSizePoller(interval, timeout time.Duration, logger *zap.SugaredLogger) *SizePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &SizePoller{interval: interval, timeout: timeout, logger: logger}
}

// WaitStable blocks until path stops growing. Stat errors are logged and
// polling continues; a file that is briefly missing is not a failure.
func (p *SizePoller) WaitStable(ctx context.Context, path string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			p.logger.Debugw("Size poll failed", "file", path, "error", err)
			last = -1
		case info.Size() == last:
			return nil
		default:
			last = info.Size()
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrStableTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Batcher groups filenames that arrive close together. Every Add restarts a
// single countdown; when it expires with no further arrivals the pending
// names are flushed in insertion order as one batch.
type Batcher struct {
	mu      sync.Mutex
	window  time.Duration
	pending []string
	seen    map[string]struct{}
	timer   *time.Timer
	gen     uint64
	flush   func([]string)
	logger  *zap.SugaredLogger
}

func NewBatcher(window time.Duration, flush func([]string), logger *zap.SugaredLogger) *Batcher {
	if window <= 0 {
		window = DefaultBatchWindow
	}
	return &Batcher{
		window: window,
		seen:   map[string]struct{}{},
		flush:  flush,
		logger: logger,
	}
}

func (b *Batcher) Add(filename string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[filename]; !ok {
		b.seen[filename] = struct{}{}
		b.pending = append(b.pending, filename)
	}
	b.restart()
	b.logger.Debugw("File added to batch", "file", filename, "pending", len(b.pending))
}

// Touch restarts the countdown if filename is already pending, so a file that
// is still being written keeps the batch open.
func (b *Batcher) Touch(filename string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[filename]; ok {
		b.restart()
	}
}

// Forget drops filename from the pending batch, typically because the file
// was removed before the countdown expired.
func (b *Batcher) Forget(filename string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[filename]; !ok {
		return
	}
	delete(b.seen, filename)
	for i, name := range b.pending {
		if name == filename {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	if len(b.pending) == 0 && b.timer != nil {
		b.timer.Stop()
		b.timer = nil
		b.gen++
	}
	b.logger.Debugw("File dropped from batch", "file", filename, "pending", len(b.pending))
}

func (b *Batcher) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.pending...)
}

// Stop cancels the countdown and returns whatever was still pending.
func (b *Batcher) Stop() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	left := b.pending
	b.pending = nil
	b.seen = map[string]struct{}{}
	return left
}

// restart must be called with mu held.
func (b *Batcher) restart() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.window, func() { b.fire(gen) })
}

func (b *Batcher) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.seen = map[string]struct{}{}
	b.timer = nil
	b.mu.Unlock()

	b.logger.Infow("Flushing batch", "files", batch)
	b.flush(batch)
}
