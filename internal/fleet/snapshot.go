package fleet

import (
	"context"
	"fmt"

	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/sourcegraph/conc/pool"
)

// DefaultConcurrency bounds name lookups when the caller passes zero.
const DefaultConcurrency = 8

// NameResolver turns ids from the member list into display names.
type NameResolver interface {
	ShipName(ctx context.Context, typeID int64) (string, error)
	CharacterName(ctx context.Context, characterID int64) (string, error)
}

// Composition groups fleet members by ship name and then by character id.
type Composition map[string]map[int64]*esi.FleetMember

// Snapshot is the full fleet composition pushed to the dashboard on every tick.
// Every member in Colocated is also in All.
type Snapshot struct {
	All       Composition `json:"all"`
	Colocated Composition `json:"colocated"`
}

// NewSnapshot returns a snapshot with both partitions allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		All:       make(Composition),
		Colocated: make(Composition),
	}
}

// Count returns the number of members in the partition.
func (c Composition) Count() int {
	total := 0
	for _, members := range c {
		total += len(members)
	}

	return total
}

func (c Composition) add(ship string, member *esi.FleetMember) {
	members, ok := c[ship]
	if !ok {
		members = make(map[int64]*esi.FleetMember)
		c[ship] = members
	}
	members[member.CharacterID] = member
}

type resolvedMember struct {
	ship     string
	username string
}

// Build resolves names for every member and folds them into a snapshot.
// Lookups run concurrently; the fold runs in input order so a repeated
// character id keeps its last row. Any lookup error aborts the build.
func Build(
	ctx context.Context, members []*esi.FleetMember, names NameResolver, bossSystemID int64, concurrency int,
) (*Snapshot, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	resolved := make([]resolvedMember, len(members))

	p := pool.New().
		WithMaxGoroutines(concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, member := range members {
		p.Go(func(ctx context.Context) error {
			ship, err := names.ShipName(ctx, member.ShipTypeID)
			if err != nil {
				return fmt.Errorf("failed to resolve ship type %d: %w", member.ShipTypeID, err)
			}

			username, err := names.CharacterName(ctx, member.CharacterID)
			if err != nil {
				return fmt.Errorf("failed to resolve character %d: %w", member.CharacterID, err)
			}

			resolved[i] = resolvedMember{ship: ship, username: username}

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	snapshot := NewSnapshot()
	for i, member := range members {
		entry := *member
		entry.Username = resolved[i].username

		snapshot.All.add(resolved[i].ship, &entry)
		if entry.SolarSystemID == bossSystemID {
			snapshot.Colocated.add(resolved[i].ship, &entry)
		}
	}

	return snapshot, nil
}
