// Package narrator gives a cascade session a spoken-word running commentary:
// on a configured subset of cascade events it builds a short synopsis and
// hands it to a "say" tool, debouncing so narration never falls behind the
// events driving it.
package narrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cascadekit/cascade/runtime/agent/cascade"
)

// ErrStopTimeout is returned by Stop when the in-flight narration goroutine
// does not finish within the configured grace period.
var ErrStopTimeout = errors.New("narrator: stop grace period elapsed")

// Synopsizer turns an event plus recent narration history into a short
// spoken synopsis. Implementations typically run a small cascade of their
// own (a "mini cascade" per §4.10) rather than calling a model directly.
type Synopsizer interface {
	Synopsize(ctx context.Context, event cascade.Event, recentNarrations []string) (string, error)
}

// Sayer delivers a synopsis for a session, e.g. by invoking a "say" tool
// that synthesizes speech. Say is expected to return quickly; long-running
// playback should be handed off internally.
type Sayer interface {
	Say(ctx context.Context, sessionID, text string) error
}

// Config controls debounce and lifecycle behavior.
type Config struct {
	// OnEvents is the subset of event kinds that trigger narration. Empty
	// defaults to []cascade.EventKind{cascade.EventPhaseComplete}.
	OnEvents []cascade.EventKind
	// MinInterval is the minimum spacing between two narrations. Events
	// arriving inside the window become the new pending candidate rather
	// than firing immediately. Defaults to 20s.
	MinInterval time.Duration
	// HistorySize bounds how many past synopses are passed back into
	// Synopsize for continuity. Defaults to 5.
	HistorySize int
	// StopGrace bounds how long Stop waits for an in-flight narration.
	// Defaults to 30s.
	StopGrace time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.OnEvents) == 0 {
		c.OnEvents = []cascade.EventKind{cascade.EventPhaseComplete}
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 20 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 5
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 30 * time.Second
	}
	return c
}

// Service is a single session's narrator. It implements cascade.EventPublisher
// so a Runner can feed it cascade events directly; it does not subscribe to
// hooks.Bus because hooks.EventType's taxonomy is scoped to the agent-tool-call
// runtime's own lifecycle (RunStarted, ToolCallScheduled, ...) and has no
// member corresponding to §6.4's cascade_start/phase_complete events, while
// cascade.Event already carries that exact taxonomy.
type Service struct {
	cfg        Config
	synopsizer Synopsizer
	sayer      Sayer

	mu            sync.Mutex
	pending       *cascade.Event
	pendingSince  time.Time
	running       bool
	closed        bool
	lastNarration time.Time
	history       []string

	wg sync.WaitGroup
}

// New builds a Service. synopsizer and sayer must both be non-nil.
func New(synopsizer Synopsizer, sayer Sayer, cfg Config) *Service {
	return &Service{
		cfg:        cfg.withDefaults(),
		synopsizer: synopsizer,
		sayer:      sayer,
	}
}

// Publish implements cascade.EventPublisher. It is called synchronously by
// the Runner between steps and must not block: it either starts a narration
// goroutine, records the event as pending, or drops it (wrong kind, or the
// service is stopped).
func (s *Service) Publish(_ context.Context, event cascade.Event) {
	if !s.accepts(event.Kind) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.running || time.Since(s.lastNarration) < s.cfg.MinInterval {
		e := event
		s.pending = &e
		s.pendingSince = time.Now()
		if !s.running {
			// Idle inside the debounce window: narrate the pending event once
			// the window has elapsed.
			wait := s.cfg.MinInterval - time.Since(s.lastNarration)
			s.running = true
			s.wg.Add(1)
			go func() {
				time.Sleep(wait)
				s.mu.Lock()
				next := s.pending
				s.pending = nil
				s.mu.Unlock()
				s.narrate(*next)
			}()
		}
		s.mu.Unlock()
		return
	}

	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.narrate(event)
}

func (s *Service) accepts(kind cascade.EventKind) bool {
	for _, k := range s.cfg.OnEvents {
		if k == kind {
			return true
		}
	}
	return false
}

// narrate runs one narration, then keeps draining whatever pending event
// accumulated while it ran until the pending slot is empty (or stale).
func (s *Service) narrate(event cascade.Event) {
	defer s.wg.Done()

	ctx := context.Background()
	s.speak(ctx, event)

	for {
		s.mu.Lock()
		next := s.pending
		since := s.pendingSince
		s.pending = nil
		s.mu.Unlock()

		if next == nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}

		if time.Since(since) > 3*s.cfg.MinInterval {
			// Stale: the world has moved on since this event was queued.
			// Discard rather than narrate something out of date.
			continue
		}

		s.speak(ctx, *next)
	}
}

func (s *Service) speak(ctx context.Context, event cascade.Event) {
	s.mu.Lock()
	recent := append([]string(nil), s.history...)
	s.mu.Unlock()

	text, err := s.synopsizer.Synopsize(ctx, event, recent)
	s.mu.Lock()
	s.lastNarration = time.Now()
	s.mu.Unlock()
	if err != nil || text == "" {
		return
	}

	_ = s.sayer.Say(ctx, event.SessionID, text)

	s.mu.Lock()
	s.history = append(s.history, text)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = s.history[over:]
	}
	s.mu.Unlock()
}

// Stop marks the service closed (no further events start new narrations)
// and waits up to StopGrace for any in-flight narration goroutine to
// finish. It returns ErrStopTimeout if the grace period elapses first.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.StopGrace)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
