package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID      int64 `bun:"id,pk,autoincrement"`
	EventID int64 `bun:"event_id,notnull"`
	TeamID  int64 `bun:"team_id,nullzero"`
	// DiscordID is the push-channel recipient id for this player.
	DiscordID string    `bun:"discord_id,notnull"`
	Role      string    `bun:"role,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// NormalizedRole maps the stored role to its canonical ROLE_* form.
// Legacy rows carry bare "A"/"B".
func (p *Player) NormalizedRole() string {
	switch p.Role {
	case "A", AudienceRoleA:
		return AudienceRoleA
	case "B", AudienceRoleB:
		return AudienceRoleB
	case "":
		return AudienceRoleA
	}
	return p.Role
}
