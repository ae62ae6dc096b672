package esi

import "time"

//nolint:tagliatelle // ESI uses snake_case
type (
	// CurrentFleet is the fleet a character currently belongs to.
	CurrentFleet struct {
		FleetID     int64  `json:"fleet_id"`
		FleetBossID int64  `json:"fleet_boss_id"`
		Role        string `json:"role"`
		SquadID     int64  `json:"squad_id"`
		WingID      int64  `json:"wing_id"`
	}

	// FleetMember is one row of a fleet member list. Username is filled in
	// by the snapshot builder and is not part of the upstream payload.
	FleetMember struct {
		CharacterID    int64     `json:"character_id"`
		JoinTime       time.Time `json:"join_time"`
		Role           string    `json:"role"`
		RoleName       string    `json:"role_name"`
		ShipTypeID     int64     `json:"ship_type_id"`
		SolarSystemID  int64     `json:"solar_system_id"`
		SquadID        int64     `json:"squad_id"`
		StationID      int64     `json:"station_id,omitempty"`
		TakesFleetWarp bool      `json:"takes_fleet_warp"`
		WingID         int64     `json:"wing_id"`
		Username       string    `json:"username"`
	}

	// Location is the current position of a character.
	Location struct {
		SolarSystemID int64 `json:"solar_system_id"`
		StationID     int64 `json:"station_id,omitempty"`
		StructureID   int64 `json:"structure_id,omitempty"`
	}

	// PublicInfo is the public profile of a character.
	PublicInfo struct {
		Name          string `json:"name"`
		CorporationID int64  `json:"corporation_id"`
		AllianceID    int64  `json:"alliance_id,omitempty"`
	}

	// TypeInfo is the subset of an inventory type the dashboard needs.
	TypeInfo struct {
		TypeID int64  `json:"type_id"`
		Name   string `json:"name"`
	}
)

// Verification identifies the character an access token belongs to.
//
//nolint:tagliatelle // the verify endpoint uses PascalCase
type Verification struct {
	CharacterID   int64  `json:"CharacterID"`
	CharacterName string `json:"CharacterName"`
}
