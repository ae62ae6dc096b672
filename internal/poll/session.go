package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateAwaitingBossCheck
	StateActive
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBossCheck:
		return "awaiting_boss_check"
	case StateActive:
		return "active"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Session polls one user's fleet for one connection.
//
// Ticks run one at a time on a single goroutine. Every Enable and Disable
// bumps the generation, and a tick whose generation is stale when it
// completes is dropped without emitting anything.
type Session struct {
	source  FleetSource
	emitter Emitter
	opts    Options
	logger  *zap.Logger

	mu         sync.Mutex
	state      State
	user       *types.User
	fleet      *esi.CurrentFleet
	failures   int
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSession creates an idle session.
func NewSession(source FleetSource, emitter Emitter, opts Options, logger *zap.Logger) *Session {
	return &Session{
		source:  source,
		emitter: emitter,
		opts:    opts.withDefaults(),
		logger:  logger,
		state:   StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Enable checks that the user is boss of a fleet and starts polling it.
// A running poll is stopped first. When the check fails the client gets
// gotError, the session stays idle and the cause is returned.
func (s *Session) Enable(ctx context.Context, user *types.User) error {
	s.Disable()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = StateAwaitingBossCheck
	s.user = user
	s.mu.Unlock()

	current, err := s.source.CurrentFleet(ctx, user)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return fmt.Errorf("%w: user %s", ErrSuperseded, user.Name)
	}

	if err != nil {
		s.reset()
		s.logger.Info("Fleet boss check failed",
			zap.String("user", user.Name),
			zap.Error(err))
		s.emit(EventGotError, empty{})

		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ticks, stop := s.opts.Ticker(s.opts.Interval)
	done := make(chan struct{})

	s.state = StateActive
	s.fleet = current
	s.failures = 0
	s.cancel = cancel
	s.done = done

	s.logger.Info("Started fleet monitoring",
		zap.String("user", user.Name),
		zap.Int64("fleetID", current.FleetID),
		zap.Duration("interval", s.opts.Interval))

	go s.run(loopCtx, gen, ticks, stop, done)

	return nil
}

// Disable stops polling and returns whether the session was active.
// It waits for an in-flight tick to return and is safe to call repeatedly.
func (s *Session) Disable() bool {
	s.mu.Lock()

	wasActive := s.state == StateActive
	cancel, done := s.cancel, s.done

	if s.state != StateIdle || done != nil {
		s.generation++
		s.reset()
	}

	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	return wasActive
}

// run is the tick loop. The first tick fires immediately.
func (s *Session) run(ctx context.Context, gen uint64, ticks <-chan time.Time, stop func(), done chan struct{}) {
	defer close(done)
	defer stop()

	if !s.tick(ctx, gen) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if !s.tick(ctx, gen) {
				return
			}
		}
	}
}

// tick fetches one snapshot and reports whether the loop should continue.
func (s *Session) tick(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	if gen != s.generation || s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	user, current := s.user, s.fleet
	s.mu.Unlock()

	snapshot, err := s.source.Snapshot(ctx, user, current)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false
	}

	if err != nil {
		s.failures++

		if s.failures < s.opts.FailureThreshold {
			s.logger.Warn("Fleet check failed",
				zap.String("user", user.Name),
				zap.Int("failures", s.failures),
				zap.Error(err))
			return true
		}

		s.state = StateFaulted
		s.logger.Error("Fleet check failed too often, stopping",
			zap.String("user", user.Name),
			zap.Int("failures", s.failures),
			zap.Error(err))

		s.cancel()
		s.generation++
		s.reset()
		s.emit(EventGotError, empty{})

		return false
	}

	s.failures = 0
	s.emit(EventFleetUpdate, snapshot)

	return true
}

// reset returns the session to idle. Callers hold mu.
func (s *Session) reset() {
	s.state = StateIdle
	s.user = nil
	s.fleet = nil
	s.failures = 0
	s.cancel = nil
	s.done = nil
}

// emit sends an event and logs delivery failures. Callers hold mu so that
// nothing is emitted after a concurrent Disable returns.
func (s *Session) emit(event string, payload any) {
	if err := s.emitter.Emit(event, payload); err != nil {
		s.logger.Warn("Failed to emit event",
			zap.String("event", event),
			zap.Error(err))
	}
}
