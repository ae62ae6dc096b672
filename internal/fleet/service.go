package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/d3vfreak/fleet-overview/internal/namecache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service answers fleet questions for a logged in user using ESI and the name cache.
type Service struct {
	esi         *esi.Client
	ships       *namecache.Cache
	users       database.Store
	tracer      trace.Tracer
	logger      *zap.Logger
	concurrency int

	tokenMu    sync.Mutex
	userTokens map[string]*sync.Mutex
}

// NewService creates a fleet service.
func NewService(
	esiClient *esi.Client, ships *namecache.Cache, users database.Store, concurrency int, logger *zap.Logger,
) *Service {
	return &Service{
		esi:         esiClient,
		ships:       ships,
		users:       users,
		tracer:      otel.Tracer("fleet-overview/fleet"),
		logger:      logger.Named("fleet"),
		concurrency: concurrency,
		userTokens:  make(map[string]*sync.Mutex),
	}
}

// CurrentFleet returns the fleet the user is boss of, or esi.ErrNotInFleet.
func (s *Service) CurrentFleet(ctx context.Context, user *types.User) (*esi.CurrentFleet, error) {
	ctx, span := s.tracer.Start(ctx, "fleet.CurrentFleet",
		trace.WithAttributes(attribute.Int64("character.id", user.CharacterID)))
	defer span.End()

	auth, err := s.authorize(ctx, user)
	if err != nil {
		return nil, recordError(span, err)
	}

	fleet, err := auth.CurrentFleet(ctx, user.CharacterID)
	if err != nil {
		return nil, recordError(span, err)
	}

	span.SetAttributes(attribute.Int64("fleet.id", fleet.FleetID))

	return fleet, nil
}

// Snapshot fetches the member list and the boss location and builds a snapshot.
func (s *Service) Snapshot(ctx context.Context, user *types.User, fleet *esi.CurrentFleet) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "fleet.Snapshot",
		trace.WithAttributes(
			attribute.Int64("character.id", user.CharacterID),
			attribute.Int64("fleet.id", fleet.FleetID),
		))
	defer span.End()

	auth, err := s.authorize(ctx, user)
	if err != nil {
		return nil, recordError(span, err)
	}

	members, err := auth.FleetMembers(ctx, fleet.FleetID)
	if err != nil {
		return nil, recordError(span, err)
	}

	bossSystemID, err := auth.Location(ctx, user.CharacterID)
	if err != nil {
		return nil, recordError(span, err)
	}

	snapshot, err := Build(ctx, members, &resolver{ships: s.ships, esi: s.esi}, bossSystemID, s.concurrency)
	if err != nil {
		return nil, recordError(span, err)
	}

	span.SetAttributes(
		attribute.Int("fleet.members", len(members)),
		attribute.Int("fleet.colocated", snapshot.Colocated.Count()),
	)

	return snapshot, nil
}

// authorize obtains an access token and stores the refresh token if the SSO rotated it.
// Exchanges for the same user are serialized so a rotation is never raced.
func (s *Service) authorize(ctx context.Context, user *types.User) (*esi.Authorized, error) {
	mu := s.tokenLock(user.Name)
	mu.Lock()
	defer mu.Unlock()

	auth, err := s.esi.Authorize(ctx, user.RefreshToken)
	if err != nil {
		return nil, err
	}

	if rotated := auth.RefreshToken(); rotated != "" && rotated != user.RefreshToken {
		user.RefreshToken = rotated

		if err := s.users.UpdateRefreshToken(ctx, user.Name, rotated); err != nil {
			s.logger.Warn("Failed to store rotated refresh token",
				zap.String("user", user.Name),
				zap.Error(err))
		}
	}

	return auth, nil
}

func (s *Service) tokenLock(name string) *sync.Mutex {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	mu, ok := s.userTokens[name]
	if !ok {
		mu = &sync.Mutex{}
		s.userTokens[name] = mu
	}

	return mu
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return fmt.Errorf("fleet check failed: %w", err)
}

// resolver serves ship names from the cache and character names straight from ESI.
type resolver struct {
	ships *namecache.Cache
	esi   *esi.Client
}

func (r *resolver) ShipName(ctx context.Context, typeID int64) (string, error) {
	return r.ships.Resolve(ctx, typeID)
}

func (r *resolver) CharacterName(ctx context.Context, characterID int64) (string, error) {
	return r.esi.CharacterName(ctx, characterID)
}
