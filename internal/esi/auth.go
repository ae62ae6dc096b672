package esi

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Authorized is a client bound to one character's access token.
type Authorized struct {
	client *Client
	token  *oauth2.Token
}

// Authorize exchanges a refresh token for an access token.
func (c *Client) Authorize(ctx context.Context, refreshToken string) (*Authorized, error) {
	source := c.oauth.TokenSource(c.tokenContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	return &Authorized{client: c, token: token}, nil
}

// ExchangeCode trades the authorization code from the SSO callback for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Authorized, error) {
	token, err := c.oauth.Exchange(c.tokenContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	return &Authorized{client: c, token: token}, nil
}

// tokenContext makes the oauth2 package use a client bounded by the request timeout.
func (c *Client) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.tokenHTTP)
}

// RefreshToken returns the refresh token issued with the current access token.
// The SSO may rotate it, in which case it differs from the one passed to Authorize.
func (a *Authorized) RefreshToken() string {
	return a.token.RefreshToken
}

// Verify returns the character the access token was issued to.
func (a *Authorized) Verify(ctx context.Context) (*Verification, error) {
	var v Verification
	if _, err := a.get(ctx, "/verify/", &v); err != nil {
		return nil, err
	}

	return &v, nil
}

// CurrentFleet returns the fleet the character is boss of.
// A character outside any fleet, or not its boss, yields ErrNotInFleet.
func (a *Authorized) CurrentFleet(ctx context.Context, characterID int64) (*CurrentFleet, error) {
	var fleet CurrentFleet

	status, err := a.get(ctx, fmt.Sprintf("/latest/characters/%d/fleet/", characterID), &fleet)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: character %d", ErrNotInFleet, characterID)
	}
	if err != nil {
		return nil, err
	}

	if fleet.FleetBossID != characterID {
		a.client.logger.Debug("Character is not fleet boss",
			zap.Int64("characterID", characterID),
			zap.Int64("fleetBossID", fleet.FleetBossID))
		return nil, fmt.Errorf("%w: character %d", ErrNotInFleet, characterID)
	}

	return &fleet, nil
}

// FleetMembers returns the member list of a fleet.
func (a *Authorized) FleetMembers(ctx context.Context, fleetID int64) ([]*FleetMember, error) {
	var members []*FleetMember

	status, err := a.get(ctx, fmt.Sprintf("/latest/fleets/%d/members/", fleetID), &members)
	if status == http.StatusForbidden || status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: fleet %d", ErrForbidden, fleetID)
	}
	if err != nil {
		return nil, err
	}

	return members, nil
}

// Location returns the solar system the character is currently in.
func (a *Authorized) Location(ctx context.Context, characterID int64) (int64, error) {
	var location Location
	if _, err := a.get(ctx, fmt.Sprintf("/latest/characters/%d/location/", characterID), &location); err != nil {
		return 0, err
	}

	return location.SolarSystemID, nil
}

func (a *Authorized) get(ctx context.Context, path string, out any) (int, error) {
	return a.client.get(ctx, path, a.token.AccessToken, out)
}
