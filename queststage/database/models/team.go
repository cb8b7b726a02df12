package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Team struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement"`
	EventID   int64     `bun:"event_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Status    string    `bun:"status,notnull,default:'active'"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`

	Players []*Player `bun:"rel:has-many,join:id=team_id"`
}

// TeamGroup is a named set of teams used as a start-config target
// (for example a wave such as "13:00").
type TeamGroup struct {
	bun.BaseModel `bun:"table:team_groups,alias:tg"`

	ID      int64   `bun:"id,pk,autoincrement"`
	EventID int64   `bun:"event_id,notnull"`
	Name    string  `bun:"name,notnull"`
	TeamIDs []int64 `bun:"team_ids,type:jsonb"`
}
