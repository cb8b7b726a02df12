package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Start config target selectors.
const (
	StartTargetAll   = "all"
	StartTargetTeams = "teams"
	StartTargetGroup = "group"
)

// ThreadStartConfig describes when and for whom a thread unlocks
// automatically. A nil StartAt means the thread is only ever unlocked
// manually or through a transition trigger.
type ThreadStartConfig struct {
	bun.BaseModel `bun:"table:dialogue_start_configs,alias:dsc"`

	ID            int64      `bun:"id,pk,autoincrement"`
	EventID       int64      `bun:"event_id,notnull"`
	ThreadID      int64      `bun:"thread_id,notnull"`
	StartAt       *time.Time `bun:"start_at,nullzero"`
	TargetType    string     `bun:"target_type,notnull,default:'all'"`
	TargetTeamIDs []int64    `bun:"target_team_ids,type:jsonb"`
	TargetGroupID int64      `bun:"target_group_id,nullzero"`
	OrderIndex    int        `bun:"order_index,notnull,default:0"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}
