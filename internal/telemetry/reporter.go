package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one best-effort side report, such as a decision or interaction submission
type Job func(ctx context.Context) error

// Options tunes a Reporter
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// DefaultOptions returns the settings used when none are configured.
// One worker keeps reports in submission order.
func DefaultOptions() Options {
	return Options{
		Workers:   1,
		QueueSize: 64,
		Timeout:   10 * time.Second,
	}
}

type job struct {
	name string
	fn   Job
}

// Reporter runs side reports off the caller's path.
// Reports are never retried and a full queue drops new reports.
type Reporter struct {
	opts    Options
	logger  *zap.Logger
	jobs    chan job
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewReporter starts the worker goroutines
func NewReporter(logger *zap.Logger, opts Options) *Reporter {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	r := &Reporter{
		opts:   opts,
		logger: logger,
		jobs:   make(chan job, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		r.workers.Add(1)
		go r.work()
	}

	return r
}

// Report queues fn and returns immediately; false means the report was dropped
func (r *Reporter) Report(name string, fn Job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("Dropping report after close", zap.String("report", name))
		return false
	}

	r.pending.Add(1)
	select {
	case r.jobs <- job{name: name, fn: fn}:
		return true
	default:
		r.pending.Done()
		r.logger.Warn("Report queue full, dropping report",
			zap.String("report", name),
			zap.Int("queue_size", r.opts.QueueSize))
		return false
	}
}

// Flush blocks until every queued report has finished
func (r *Reporter) Flush() {
	r.pending.Wait()
}

// Close drains queued reports and stops the workers
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	r.workers.Wait()
}

func (r *Reporter) work() {
	defer r.workers.Done()

	for j := range r.jobs {
		r.run(j)
	}
}

func (r *Reporter) run(j job) {
	defer r.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := r.safeCall(ctx, j); err != nil {
		r.logger.Warn("Side report failed",
			zap.String("report", j.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	r.logger.Debug("Side report sent",
		zap.String("report", j.name),
		zap.Duration("elapsed", time.Since(start)))
}

func (r *Reporter) safeCall(ctx context.Context, j job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return j.fn(ctx)
}
