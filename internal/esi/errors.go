package esi

import "errors"

var (
	// ErrAuthFailure means the SSO refused to issue an access token.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrNotInFleet means the character has no fleet or is not its boss.
	ErrNotInFleet = errors.New("character is not boss of a fleet")
	// ErrForbidden means the fleet member list was refused.
	ErrForbidden = errors.New("fleet access forbidden")
	// ErrUpstream covers every other failed upstream call.
	ErrUpstream = errors.New("upstream request failed")
)
