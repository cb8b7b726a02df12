package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ThreadOverride is the per-(team, thread) admin override record. A set
// HoldUntil suppresses every non-forced reveal until it elapses; ids in
// ForceRevealMessageIDs are shown regardless of their gate rule, even while
// a hold is active.
type ThreadOverride struct {
	bun.BaseModel `bun:"table:dialogue_thread_overrides,alias:dto"`

	ID                    int64      `bun:"id,pk,autoincrement"`
	EventID               int64      `bun:"event_id,notnull"`
	TeamID                int64      `bun:"team_id,notnull,unique:uq_override_team_thread"`
	ThreadID              int64      `bun:"thread_id,notnull,unique:uq_override_team_thread"`
	HoldUntil             *time.Time `bun:"hold_until,nullzero"`
	ForceRevealMessageIDs []int64    `bun:"force_reveal_message_ids,type:jsonb"`
	UpdatedAt             time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// ForcesReveal reports whether the override force-reveals the given message.
func (o *ThreadOverride) ForcesReveal(messageID int64) bool {
	if o == nil {
		return false
	}
	for _, id := range o.ForceRevealMessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}

// Holds reports whether a hold is active at the given instant.
func (o *ThreadOverride) Holds(now time.Time) bool {
	return o != nil && o.HoldUntil != nil && now.Before(*o.HoldUntil)
}
