// Package worker implements the claim/process/resolve loops that drain the
// ingest queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/config"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/metric"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/notify"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/queue"
)

// Store is the queue surface a worker needs, abstracted so the loop can be
// tested with a mock.
type Store interface {
	Claim(ctx context.Context, lease time.Duration) (*queue.Job, error)
	MarkDone(ctx context.Context, id int64) error
	Requeue(ctx context.Context, id int64, delay time.Duration) error
	DeadLetter(ctx context.Context, job *queue.Job, lastError string) error
}

// Processor runs one claimed job end to end. A returned error is recoverable
// and triggers the retry path.
type Processor interface {
	Process(ctx context.Context, parentPath, resourceName, creationTime string, content any) error
}

// Pool runs a fixed number of independent worker loops against one queue.
// Workers share no in-process state; mutual exclusion lives entirely in the
// queue's atomic claim.
type Pool struct {
	cfg     config.Worker
	store   Store
	proc    Processor
	backoff queue.Backoff
	metrics *metric.Metrics
}

// NewPool creates a Pool. metrics may be nil in tests.
func NewPool(cfg config.Worker, store Store, proc Processor, m *metric.Metrics) *Pool {
	return &Pool{
		cfg:     cfg,
		store:   store,
		proc:    proc,
		backoff: queue.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		metrics: m,
	}
}

// Run starts cfg.Count workers and blocks until ctx is cancelled and all of
// them have returned.
func (p *Pool) Run(ctx context.Context) {
	slog.Info("worker pool started",
		"workers", p.cfg.Count,
		"lease", p.cfg.Lease,
		"max_attempts", p.cfg.MaxAttempts,
		"idle_sleep", p.cfg.IdleSleep,
	)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, uuid.New().String())
		}()
	}
	wg.Wait()
	slog.Info("worker pool stopped")
}

// runWorker is one claim loop. Polling with an idle sleep is intentional:
// lease expiry on the queue row is the only recovery mechanism, so there is
// nothing to block on.
func (p *Pool) runWorker(ctx context.Context, workerID string) {
	slog.Info("worker started", "worker_id", workerID)
	for {
		if ctx.Err() != nil {
			slog.Info("worker stopped", "worker_id", workerID)
			return
		}

		claimed, err := p.runOnce(ctx, workerID)
		if err != nil {
			slog.Error("worker loop error", "worker_id", workerID, "error", err)
			p.sleep(ctx, 2*time.Second)
			continue
		}
		if !claimed {
			if p.metrics != nil {
				p.metrics.IdleCycles.Inc()
			}
			p.sleep(ctx, p.cfg.IdleSleep)
		}
	}
}

// runOnce claims and resolves at most one job. The bool reports whether a
// job was claimed.
func (p *Pool) runOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := p.store.Claim(ctx, p.cfg.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	start := time.Now()
	procErr := p.process(ctx, job)
	if p.metrics != nil {
		p.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}

	if procErr == nil {
		if err := p.store.MarkDone(ctx, job.ID); err != nil {
			return true, err
		}
		p.resolved("done")
		slog.Info("job processed", "worker_id", workerID, "job_id", job.ID, "ci_rn", job.ResourceName)
		return true, nil
	}

	if job.Attempts+1 >= p.cfg.MaxAttempts {
		if err := p.store.DeadLetter(ctx, job, procErr.Error()); err != nil {
			return true, err
		}
		p.resolved("dead_letter")
		slog.Warn("job dead-lettered",
			"worker_id", workerID,
			"job_id", job.ID,
			"attempts", job.Attempts+1,
			"error", procErr,
		)
		return true, nil
	}

	delay := p.backoff.Delay(job.Attempts)
	if err := p.store.Requeue(ctx, job.ID, delay); err != nil {
		return true, err
	}
	p.resolved("retried")
	slog.Warn("job requeued with backoff",
		"worker_id", workerID,
		"job_id", job.ID,
		"attempts", job.Attempts+1,
		"delay", delay,
		"error", procErr,
	)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *queue.Job) error {
	resourceName := job.ResourceName
	if resourceName == "" {
		resourceName = fmt.Sprintf("cin-job-%d", job.ID)
	}

	var content any
	if len(job.Payload) > 0 {
		var decoded any
		if err := json.Unmarshal(job.Payload, &decoded); err == nil {
			content = notify.EnsureObject(decoded)
		} else {
			content = notify.EnsureObject(string(job.Payload))
		}
	}

	return p.proc.Process(ctx, job.ParentPath, resourceName, job.CreationTime, content)
}

func (p *Pool) resolved(outcome string) {
	if p.metrics != nil {
		p.metrics.JobsResolved.WithLabelValues(outcome).Inc()
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
