package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DrGermanius/buyback/internal/metrics"
)

type Job struct {
	ID         string
	Filename   string
	Mode       Mode
	EnqueuedAt time.Time

	done chan outcome
}

type outcome struct {
	result Result
	err    error
}

// Queue runs conversions one at a time in FIFO order. The busy flag is the
// only thing that starts a conversion, so at most one is in flight no matter
// how many producers enqueue concurrently. A failed job is logged and the
// queue moves on; nothing is retried.
type Queue struct {
	mu     sync.Mutex
	jobs   []*Job
	busy   bool
	closed bool
	wg     sync.WaitGroup

	converter Converter
	meta      MetadataStore
	logger    *zap.SugaredLogger
	metrics   *metrics.Registry
	now       func() time.Time
}

func NewQueue(converter Converter, meta MetadataStore, logger *zap.SugaredLogger, reg *metrics.Registry) *Queue {
	return &Queue{
		converter: converter,
		meta:      meta,
		logger:    logger,
		metrics:   reg,
		now:       time.Now,
	}
}

// Enqueue schedules upserts of filenames without waiting for them.
func (q *Queue) Enqueue(filenames ...string) {
	for _, name := range filenames {
		if _, err := q.push(name, ModeUpsert, nil); err != nil {
			q.logger.Warnw("Dropping file", "file", name, "error", err)
		}
	}
	q.advance()
}

// Submit schedules one conversion and waits for its result. If ctx is done
// first the job still runs; only the wait is abandoned.
func (q *Queue) Submit(ctx context.Context, filename string, mode Mode) (Result, error) {
	done := make(chan outcome, 1)
	if _, err := q.push(filename, mode, done); err != nil {
		return Result{}, err
	}
	q.advance()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case o := <-done:
		return o.result, o.err
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Shutdown stops accepting jobs, fails the ones still waiting and blocks until
// the in-flight conversion finishes or ctx is done.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	waiting := q.jobs
	q.jobs = nil
	q.metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	for _, j := range waiting {
		q.logger.Warnw("Discarding queued job", "job", j.ID, "file", j.Filename)
		if j.done != nil {
			j.done <- outcome{err: ErrQueueClosed}
		}
	}

	idle := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(idle)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

func (q *Queue) push(filename string, mode Mode, done chan outcome) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	j := &Job{
		ID:         uuid.NewString(),
		Filename:   filename,
		Mode:       mode,
		EnqueuedAt: q.now(),
		done:       done,
	}
	q.jobs = append(q.jobs, j)
	q.metrics.QueueDepth.Set(float64(len(q.jobs)))
	q.logger.Infow("File queued", "job", j.ID, "file", filename, "mode", mode, "depth", len(q.jobs))
	return j, nil
}

// advance starts the head job unless one is already running.
func (q *Queue) advance() {
	q.mu.Lock()
	if q.busy || len(q.jobs) == 0 {
		q.mu.Unlock()
		return
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.busy = true
	q.wg.Add(1)
	q.metrics.QueueDepth.Set(float64(len(q.jobs)))
	q.mu.Unlock()

	go q.run(j)
}

func (q *Queue) run(j *Job) {
	defer q.wg.Done()

	if err := q.meta.MarkFirstSeen(j.Filename, q.now()); err != nil {
		q.logger.Errorw("Failed to record first-seen timestamp", "job", j.ID, "file", j.Filename, "error", err)
	}

	q.logger.Infow("Processing started", "job", j.ID, "file", j.Filename, "mode", j.Mode,
		"waited", q.now().Sub(j.EnqueuedAt))

	start := q.now()
	res, err := q.convert(j)
	q.metrics.ConversionSecs.Observe(q.now().Sub(start).Seconds())

	if err != nil {
		q.metrics.Files.WithLabelValues(metrics.ResultFailed).Inc()
		q.logger.Errorw("Processing failed", "job", j.ID, "file", j.Filename, "error", err)
	} else {
		q.metrics.Files.WithLabelValues(metrics.ResultSucceeded).Inc()
		q.logger.Infow("Processing finished", "job", j.ID, "file", j.Filename,
			"count", res.Count, "skipped", res.Skipped)
	}
	if j.done != nil {
		j.done <- outcome{result: res, err: err}
	}

	q.mu.Lock()
	q.busy = false
	q.mu.Unlock()
	q.advance()
}

// convert isolates the queue from a panicking converter.
func (q *Queue) convert(j *Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion panicked: %v", r)
		}
	}()
	return q.converter.Convert(context.Background(), j.Filename, j.Mode)
}
