// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package dispatch executes fan-out side effects asynchronously,
// decoupled from the request or transaction that triggered them.
package dispatch

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftline/driftline/pkg/errutil"
)

var tracer = otel.Tracer("driftline/dispatch")

// Job is a unit of asynchronous work. Jobs with the same affinity key
// run on the same worker and therefore in enqueue order; no ordering
// holds across different keys. A Job returning an error is retried; a
// Job that wants to drop (entity already gone) returns nil.
type Job interface {
	Kind() string
	AffinityKey() string
	Run(ctx context.Context) error
}

// Enqueuer accepts jobs for asynchronous execution.
type Enqueuer interface {
	Enqueue(job Job)
}

// Options configures a Dispatcher.
type Options struct {
	Workers   int           // worker goroutines, one queue each
	QueueSize int           // per-worker queue capacity
	Attempts  int           // total attempts per job (1 = no retry)
	RetryBase time.Duration // initial backoff, doubled per retry
	RetryCap  time.Duration // backoff ceiling
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 50 * time.Millisecond
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 2 * time.Second
	}
}

// Dispatcher runs jobs on a fixed worker pool with at-least-once
// semantics and bounded backoff. Enqueue never blocks: when a queue is
// full the job is dropped and logged, because fan-out is best-effort
// and must never stall the write path that triggered it.
type Dispatcher struct {
	opts   Options
	queues []chan Job

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Call Run to start the workers.
func New(opts Options) *Dispatcher {
	opts.defaults()
	queues := make([]chan Job, opts.Workers)
	for i := range queues {
		queues[i] = make(chan Job, opts.QueueSize)
	}
	return &Dispatcher{opts: opts, queues: queues}
}

// Enqueue queues a job and returns immediately. After shutdown, or when
// the target queue is full, the job is dropped with a log entry.
func (d *Dispatcher) Enqueue(job Job) {
	// The lock covers the send so a concurrent shutdown cannot close
	// the queue between the check and the send.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		RecordDropped(job.Kind())
		slog.Warn("job dropped: dispatcher stopped", "kind", job.Kind())
		return
	}

	q := d.queues[d.queueFor(job.AffinityKey())]
	select {
	case q <- job:
		RecordEnqueued(job.Kind())
		QueueDepth.Inc()
	default:
		RecordDropped(job.Kind())
		slog.Warn("job dropped: queue full",
			"kind", job.Kind(),
			"affinity_key", job.AffinityKey(),
		)
	}
}

func (d *Dispatcher) queueFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Run starts the workers and blocks until the context is cancelled and
// every queued job has finished. A job already running when the context
// is cancelled is not interrupted: once enqueued, a job runs to
// completion or retry exhaustion.
func (d *Dispatcher) Run(ctx context.Context) error {
	for _, q := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, q)
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, queue chan Job) {
	defer d.wg.Done()

	// Jobs keep running after shutdown begins, so execution uses a
	// context that carries values but not cancellation.
	jobCtx := context.WithoutCancel(ctx)

	for job := range queue {
		QueueDepth.Dec()
		d.execute(jobCtx, job)
	}
}

func (d *Dispatcher) execute(ctx context.Context, job Job) {
	ctx, span := tracer.Start(ctx, "dispatch.execute",
		trace.WithAttributes(
			attribute.String("job.kind", job.Kind()),
			attribute.String("job.affinity_key", job.AffinityKey()),
		),
	)
	defer span.End()

	start := time.Now()
	backoff := retry.WithMaxRetries(uint64(d.opts.Attempts-1),
		retry.WithCappedDuration(d.opts.RetryCap,
			retry.NewExponential(d.opts.RetryBase)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			RecordRetry(job.Kind())
		}
		if runErr := job.Run(ctx); runErr != nil {
			return retry.RetryableError(runErr)
		}
		return nil
	})

	RecordDuration(job.Kind(), time.Since(start))

	if err != nil {
		RecordFailed(job.Kind())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Retries exhausted: log and drop. The entity itself is
		// persisted; clients recover through the backlog read on
		// reconnect.
		errutil.LogError(slog.Default(), "job failed permanently",
			oops.Code("DISPATCH_EXHAUSTED").
				With("kind", job.Kind()).
				With("affinity_key", job.AffinityKey()).
				With("attempts", attempt).
				Wrap(err))
		return
	}
	RecordCompleted(job.Kind())
}
