package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ThreadUnlock is the durable fact "thread X is unlocked for team Y",
// written exactly once per pair. Its presence is both the visibility source
// of truth and the delivery idempotency key for unlock notifications.
// Unlocks are never deleted.
type ThreadUnlock struct {
	bun.BaseModel `bun:"table:dialogue_thread_unlocks,alias:dtu"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ThreadID   int64     `bun:"thread_id,notnull,unique:uq_unlock_thread_team"`
	TeamID     int64     `bun:"team_id,notnull,unique:uq_unlock_thread_team"`
	UnlockedAt time.Time `bun:"unlocked_at,notnull,default:current_timestamp"`
}

// ScheduledDelivery marks a scheduled message as pushed to a team. One row
// per (message, team) regardless of recipient count or push outcome.
type ScheduledDelivery struct {
	bun.BaseModel `bun:"table:dialogue_scheduled_deliveries,alias:dsd"`

	ID          int64     `bun:"id,pk,autoincrement"`
	MessageID   int64     `bun:"message_id,notnull,unique:uq_delivery_message_team"`
	TeamID      int64     `bun:"team_id,notnull,unique:uq_delivery_message_team"`
	DeliveredAt time.Time `bun:"delivered_at,notnull,default:current_timestamp"`
}

// TransitionTrigger is a pending cross-thread unlock created when a node
// carrying a trigger_dialogue annotation is reached. It is strictly
// single-shot: converted into a ThreadUnlock or discarded, then deleted.
type TransitionTrigger struct {
	bun.BaseModel `bun:"table:dialogue_transition_triggers,alias:dtt"`

	ID              int64     `bun:"id,pk,autoincrement"`
	EventID         int64     `bun:"event_id,notnull"`
	TeamID          int64     `bun:"team_id,notnull,unique:uq_trigger_team_source_target"`
	SourceMessageID int64     `bun:"source_message_id,notnull,unique:uq_trigger_team_source_target"`
	TargetThreadID  int64     `bun:"target_thread_id,notnull,unique:uq_trigger_team_source_target"`
	UnlockAt        time.Time `bun:"unlock_at,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
