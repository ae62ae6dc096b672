package poll

import (
	"context"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/d3vfreak/fleet-overview/internal/fleet"
)

// Events sent to the dashboard.
const (
	EventClearCookies = "clearCookies"
	EventFilters      = "filters"
	EventFleetUpdate  = "fleetUpdate"
	EventGotError     = "gotError"
	EventClear        = "clear"
)

// Emitter delivers an event to one connected client.
type Emitter interface {
	Emit(event string, payload any) error
}

// FleetSource answers the two questions a session asks upstream.
type FleetSource interface {
	CurrentFleet(ctx context.Context, user *types.User) (*esi.CurrentFleet, error)
	Snapshot(ctx context.Context, user *types.User, fleet *esi.CurrentFleet) (*fleet.Snapshot, error)
}

// TickerFunc starts a periodic timer and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// StdTicker is a TickerFunc backed by time.Ticker.
func StdTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Options configures every session created by a registry.
type Options struct {
	Interval         time.Duration
	FailureThreshold int
	Ticker           TickerFunc
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 6 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 2
	}
	if o.Ticker == nil {
		o.Ticker = StdTicker
	}

	return o
}

// empty is the payload of events that carry no data.
type empty struct{}
