// Package costenricher backfills cost and token figures onto log records
// once a model provider's usage endpoint has them available, which is
// usually a few seconds after the response itself (§4.12).
package costenricher

import (
	"context"
	"sync"
	"time"

	"github.com/cascadekit/cascade/runtime/agent/logsink"
	"github.com/cascadekit/cascade/runtime/agent/telemetry"
)

// Job identifies one logged request awaiting enrichment.
type Job struct {
	SessionID string
	RequestID string
}

// Usage is whatever a provider's usage endpoint reports for a request. Any
// field may be nil if the provider doesn't report it.
type Usage struct {
	Cost            *float64
	TokensIn        *int
	TokensOut       *int
	TokensReasoning *int
	DurationMs      *int64
}

func (u Usage) toPatch() logsink.Patch {
	return logsink.Patch{
		Cost:            u.Cost,
		TokensIn:        u.TokensIn,
		TokensOut:       u.TokensOut,
		TokensReasoning: u.TokensReasoning,
		DurationMs:      u.DurationMs,
	}
}

// UsageLookup queries a provider's usage endpoint for a single request. A
// non-nil error means the usage isn't available yet (or the call failed)
// and the request should be retried.
type UsageLookup interface {
	Lookup(ctx context.Context, requestID string) (Usage, error)
}

// Config tunes delay, retry, and concurrency behavior.
type Config struct {
	// Workers is the number of concurrent enrichment goroutines. Default 4.
	Workers int
	// QueueSize bounds the pending-job channel. Default 256.
	QueueSize int
	// InitialDelay is how long to wait before the first lookup attempt,
	// since providers typically need 3-5s to settle usage data. Default 4s.
	InitialDelay time.Duration
	// MaxAttempts bounds the total number of lookup attempts per job
	// (including the first). Default 5.
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; each subsequent
	// attempt multiplies the previous delay by BackoffFactor. Default 2s.
	BackoffBase time.Duration
	// BackoffFactor is the exponential backoff multiplier. Default 2.0.
	BackoffFactor float64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 4 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	return c
}

// Enricher is the background cost-enrichment worker pool.
type Enricher struct {
	cfg    Config
	store  logsink.Store
	lookup UsageLookup
	log    telemetry.Logger

	jobs      chan Job
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds and starts an Enricher. log may be nil, in which case
// reconciliation failures and exhausted retries are dropped silently.
func New(store logsink.Store, lookup UsageLookup, log telemetry.Logger, cfg Config) *Enricher {
	cfg = cfg.withDefaults()
	e := &Enricher{
		cfg:    cfg,
		store:  store,
		lookup: lookup,
		log:    log,
		jobs:   make(chan Job, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
	return e
}

// Enqueue schedules a logged request for enrichment. It blocks until the
// queue has room or ctx is done.
func (e *Enricher) Enqueue(ctx context.Context, job Job) error {
	select {
	case e.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs, interrupts any in-flight backoff waits,
// and waits for every worker goroutine to exit.
func (e *Enricher) Close() {
	e.closeOnce.Do(func() {
		close(e.jobs)
		close(e.stop)
	})
	e.wg.Wait()
}

func (e *Enricher) runWorker() {
	defer e.wg.Done()
	for job := range e.jobs {
		e.process(job)
	}
}

func (e *Enricher) process(job Job) {
	ctx := context.Background()
	if !e.sleep(e.cfg.InitialDelay) {
		return
	}

	delay := e.cfg.BackoffBase
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		usage, err := e.lookup.Lookup(ctx, job.RequestID)
		if err == nil {
			if rerr := e.store.Reconcile(ctx, job.SessionID, job.RequestID, usage.toPatch()); rerr != nil && e.log != nil {
				e.log.Error(ctx, "costenricher: reconcile failed", "request_id", job.RequestID, "error", rerr)
			}
			return
		}

		if attempt == e.cfg.MaxAttempts {
			if e.log != nil {
				e.log.Warn(ctx, "costenricher: giving up after bounded attempts",
					"request_id", job.RequestID, "attempts", attempt, "error", err)
			}
			return
		}

		if !e.sleep(delay) {
			return
		}
		delay = time.Duration(float64(delay) * e.cfg.BackoffFactor)
	}
}

// sleep waits for d, returning false early if the Enricher was closed.
func (e *Enricher) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.stop:
		return false
	}
}
