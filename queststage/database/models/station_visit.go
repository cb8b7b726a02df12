package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Visit states written by the external check-in subsystem. The dialogue
// engine only consumes finished visits.
const (
	VisitArrived  = "arrived"
	VisitStarted  = "started"
	VisitFinished = "finished"
)

type StationVisit struct {
	bun.BaseModel `bun:"table:station_visits,alias:sv"`

	ID        int64     `bun:"id,pk,autoincrement"`
	EventID   int64     `bun:"event_id,notnull"`
	TeamID    int64     `bun:"team_id,notnull"`
	StationID int64     `bun:"station_id,notnull"`
	State     string    `bun:"state,notnull,default:'arrived'"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
