package poll_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/d3vfreak/fleet-overview/internal/fleet"
)

type emitted struct {
	event   string
	payload any
}

// recordingEmitter stores every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, emitted{event: event, payload: payload})

	return nil
}

func (e *recordingEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, ev := range e.events {
		if ev.event == event {
			n++
		}
	}

	return n
}

func (e *recordingEmitter) last() emitted {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.events) == 0 {
		return emitted{}
	}

	return e.events[len(e.events)-1]
}

// fakeSource answers boss checks and snapshots from configurable functions.
type fakeSource struct {
	currentFleet func(ctx context.Context) (*esi.CurrentFleet, error)
	snapshot     func(ctx context.Context, call int32) (*fleet.Snapshot, error)

	fleetCalls    atomic.Int32
	snapshotCalls atomic.Int32
}

func (s *fakeSource) CurrentFleet(ctx context.Context, _ *types.User) (*esi.CurrentFleet, error) {
	s.fleetCalls.Add(1)

	if s.currentFleet == nil {
		return &esi.CurrentFleet{FleetID: 77, FleetBossID: 1}, nil
	}

	return s.currentFleet(ctx)
}

func (s *fakeSource) Snapshot(ctx context.Context, _ *types.User, _ *esi.CurrentFleet) (*fleet.Snapshot, error) {
	call := s.snapshotCalls.Add(1)

	if s.snapshot == nil {
		return fleet.NewSnapshot(), nil
	}

	return s.snapshot(ctx, call)
}

// manualTicker hands out a channel the test fires by hand.
type manualTicker struct {
	ch      chan time.Time
	created atomic.Int32
	stopped atomic.Int32
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time, 16)}
}

func (m *manualTicker) start(time.Duration) (<-chan time.Time, func()) {
	m.created.Add(1)

	var once sync.Once

	return m.ch, func() { once.Do(func() { m.stopped.Add(1) }) }
}

// fire delivers a tick without blocking when nobody is listening.
func (m *manualTicker) fire() {
	select {
	case m.ch <- time.Now():
	default:
	}
}

func testUser() *types.User {
	return &types.User{Name: "Boss Pilot", CharacterID: 1, CorporationID: 98000001}
}
