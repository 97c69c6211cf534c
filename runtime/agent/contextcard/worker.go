package contextcard

import (
	"context"
	"sync"
	"time"

	"github.com/cascadekit/cascade/runtime/agent/telemetry"
)

// Config tunes the worker pool.
type Config struct {
	// Workers is the number of concurrent worker goroutines. Default 4.
	Workers int
	// QueueSize bounds the pending-request channel. Default 256.
	QueueSize int
	// BatchSize is the number of requests a worker accumulates before
	// embedding them together. Default 16.
	BatchSize int
	// BatchLinger bounds how long a worker waits for a batch to fill before
	// flushing a partial one. Default 200ms.
	BatchLinger time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.BatchLinger <= 0 {
		c.BatchLinger = 200 * time.Millisecond
	}
	return c
}

// Pool is the context-card worker pool: a bounded queue drained by a fixed
// number of workers, each batching eligible requests before calling the
// embedding provider.
type Pool struct {
	cfg        Config
	store      Store
	summarizer Summarizer
	embedder   Embedder
	log        telemetry.Logger

	queue     chan Request
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds and starts a Pool. summarizer defaults to HeuristicSummarizer
// when nil; embedder may be nil, in which case cards are stored without an
// embedding vector; log may be nil, in which case put failures are dropped
// silently.
func New(store Store, summarizer Summarizer, embedder Embedder, log telemetry.Logger, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	if summarizer == nil {
		summarizer = HeuristicSummarizer{}
	}
	p := &Pool{
		cfg:        cfg,
		store:      store,
		summarizer: summarizer,
		embedder:   embedder,
		log:        log,
		queue:      make(chan Request, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

// Submit enqueues req for processing. It blocks until the queue has room or
// ctx is done. Ineligible requests (§4.11) are accepted but dropped
// silently by the worker rather than rejected here, so callers don't need
// to duplicate the eligibility check.
func (p *Pool) Submit(ctx context.Context, req Request) error {
	select {
	case p.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new work and waits for queued and in-flight
// requests to finish processing.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.queue) })
	p.wg.Wait()
}

func (p *Pool) runWorker() {
	defer p.wg.Done()

	batch := make([]Request, 0, p.cfg.BatchSize)
	timer := time.NewTimer(p.cfg.BatchLinger)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.process(context.Background(), batch)
		batch = batch[:0]
	}

	for {
		select {
		case req, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			if !Eligible(req) {
				continue
			}
			batch = append(batch, req)
			if len(batch) >= p.cfg.BatchSize {
				flush()
				resetTimer(timer, p.cfg.BatchLinger)
			}
		case <-timer.C:
			flush()
			timer.Reset(p.cfg.BatchLinger)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// process summarizes every request in the batch, embeds every non-empty
// summary in a single provider call, and persists the resulting cards.
func (p *Pool) process(ctx context.Context, batch []Request) {
	summaries := make([]string, len(batch))
	for i, req := range batch {
		summary, err := p.summarizer.Summarize(ctx, req)
		if err != nil {
			continue
		}
		summaries[i] = summary
	}

	embeddings := make(map[int][]float32)
	if p.embedder != nil {
		idx := make([]int, 0, len(batch))
		texts := make([]string, 0, len(batch))
		for i, s := range summaries {
			if s != "" {
				idx = append(idx, i)
				texts = append(texts, s)
			}
		}
		if len(texts) > 0 {
			vectors, err := p.embedder.Embed(ctx, texts)
			if err == nil {
				for j, i := range idx {
					if j < len(vectors) {
						embeddings[i] = vectors[j]
					}
				}
			}
		}
	}

	for i, req := range batch {
		summary := summaries[i]
		card := Card{
			SessionID:   req.SessionID,
			ContentHash: req.ContentHash,
			Summary:     summary,
			Embedding:   embeddings[i],
			Keywords:    ExtractKeywords(summary),
			TokenEst:    TokenEstimate(summary),
			PhaseName:   req.PhaseName,
			CascadeID:   req.CascadeID,
			TurnNumber:  req.TurnNumber,
			IsCallout:   req.IsCallout,
			CalloutName: req.CalloutName,
			Timestamp:   req.Timestamp,
		}
		if err := p.store.Put(card); err != nil && p.log != nil {
			p.log.Error(ctx, "contextcard: store put failed", "session_id", req.SessionID, "content_hash", req.ContentHash, "error", err)
		}
	}
}
