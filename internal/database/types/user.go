package types

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an operator who has logged in through the SSO at least once.
// Rows are created on the first callback and never deleted.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Name          string    `bun:",pk"      json:"name"`
	CharacterID   int64     `bun:",notnull" json:"characterId"`
	RefreshToken  string    `bun:",notnull" json:"-"`
	SessionHash   string    `bun:",notnull" json:"-"`
	AllianceID    int64     `bun:",notnull" json:"allianceId"`
	CorporationID int64     `bun:",notnull" json:"corporationId"`
	CreatedAt     time.Time `bun:",notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:",notnull" json:"updatedAt"`
}
