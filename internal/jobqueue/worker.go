package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler processes one claimed job. A returned error schedules a retry
// until the job's attempt budget is spent.
type Handler func(ctx context.Context, job *Job) error

// Worker polls a queue and runs due jobs with bounded concurrency.
type Worker struct {
	q       *Queue
	handler Handler
	wg      sync.WaitGroup
}

// NewWorker binds a handler to the queue.
func (q *Queue) NewWorker(handler Handler) *Worker {
	return &Worker{q: q, handler: handler}
}

// Start launches the polling loop. It stops when ctx is cancelled; Wait
// blocks until in-flight jobs have finished.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.q.log.Info("queue worker started",
			zap.Int("concurrency", w.q.cfg.Concurrency),
			zap.Duration("poll_interval", w.q.shared.PollInterval))

		ticker := w.q.clk.NewTicker(w.q.shared.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.q.log.Info("queue worker shutting down")
				return
			case <-ticker.Chan():
				if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
					w.q.log.Error("failed to process due jobs", zap.Error(err))
				}
			}
		}
	}()
}

// Wait blocks until the polling loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// ProcessDue claims one batch of due jobs, runs them and records their
// outcome. It returns the number of jobs it ran.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	jobs, err := w.q.claimDue(ctx)
	if len(jobs) == 0 {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(w.q.cfg.Concurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			w.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), err
}

func (w *Worker) run(ctx context.Context, job Job) {
	log := w.q.log.With(zap.String("key", job.Key), zap.Int("attempt", job.Attempt))

	jobCtx, cancel := context.WithTimeout(ctx, w.q.shared.JobTimeout)
	start := time.Now()
	err := w.invoke(jobCtx, &job)
	cancel()
	runDuration.WithLabelValues(w.q.name).Observe(time.Since(start).Seconds())

	// Outcome writes must land even while shutting down.
	writeCtx := context.WithoutCancel(ctx)
	if err == nil {
		if e := w.q.markDone(writeCtx, job); e != nil {
			log.Error("failed to mark job done", zap.Error(e))
		}
		processedTotal.WithLabelValues(w.q.name, "done").Inc()
		return
	}

	retry, e := w.q.markFailed(writeCtx, job, err)
	if e != nil {
		log.Error("failed to record job failure", zap.Error(e), zap.NamedError("cause", err))
		return
	}
	if retry {
		processedTotal.WithLabelValues(w.q.name, "retry").Inc()
		log.Warn("job failed, will retry", zap.Error(err))
		return
	}
	processedTotal.WithLabelValues(w.q.name, "failed").Inc()
	log.Error("job failed permanently", zap.Error(err), zap.Int("max_attempts", job.MaxAttempts))
}

func (w *Worker) invoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}

// retryDelay is the wait before the attempt following attempt n (1-based):
// initial, 2*initial, 4*initial and so on.
func retryDelay(initial time.Duration, attempt int) time.Duration {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Hour
	exp.MaxElapsedTime = 0
	exp.Reset()

	wait := exp.NextBackOff()
	for i := 1; i < attempt; i++ {
		wait = exp.NextBackOff()
	}
	return wait
}
