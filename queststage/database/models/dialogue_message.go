package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Message audiences. TEAM messages are shown to every player on the team,
// role audiences only to players holding that role.
const (
	AudienceTeam  = "TEAM"
	AudienceRoleA = "ROLE_A"
	AudienceRoleB = "ROLE_B"
)

// Gate rule kinds stored in GateSpec.Kind. Unknown or empty kinds degrade
// to immediate.
const (
	GateImmediate    = "immediate"
	GateScheduled    = "scheduled"
	GateAfterStation = "after_station"
	GateAfterMessage = "after_message"
)

type DialogueMessage struct {
	bun.BaseModel `bun:"table:dialogue_messages,alias:dm"`

	ID         int64          `bun:"id,pk,autoincrement"`
	EventID    int64          `bun:"event_id,notnull"`
	ThreadID   int64          `bun:"thread_id,notnull"`
	Audience   string         `bun:"audience,notnull,default:'TEAM'"`
	OrderIndex int            `bun:"order_index,notnull,default:0"`
	Payload    MessagePayload `bun:"payload,type:jsonb"`
	Gate       *GateSpec      `bun:"gate_rule,type:jsonb,nullzero"`
	CreatedAt  time.Time      `bun:"created_at,notnull,default:current_timestamp"`
}

// MessagePayload is the display content of one node in the thread graph.
// Out-edges of the graph live in ReplyOptions; the option list is the single
// source of truth for edges.
type MessagePayload struct {
	Text      string `json:"text"`
	Character string `json:"character,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`

	// DelayAfterPrevSeconds delays the reveal of the messages following
	// this one; zero falls back to the thread default.
	DelayAfterPrevSeconds int `json:"delay_after_previous_seconds,omitempty"`
	// DeleteAfterSeconds removes the bubble from the client after the
	// given time. Zero disables auto-delete.
	DeleteAfterSeconds int `json:"delete_after_seconds,omitempty"`

	ReplyOptions []ReplyOption `json:"reply_options,omitempty"`

	// TriggerDialogue schedules another thread's unlock when this node is
	// reached during traversal.
	TriggerDialogue *TriggerDialogue `json:"trigger_dialogue,omitempty"`

	// Editor canvas position, meaningless to the engine.
	PosX *int `json:"pos_x,omitempty"`
	PosY *int `json:"pos_y,omitempty"`
}

// ReplyOption is one out-edge: a labeled choice pointing at the next message.
// A zero NextMessageID means the option is a dead end and is never offered
// as a choice.
type ReplyOption struct {
	Text          string `json:"text"`
	NextMessageID int64  `json:"next_message_id,omitempty"`
	DelaySeconds  int    `json:"delay_seconds,omitempty"`
}

type TriggerDialogue struct {
	ThreadID     int64 `json:"thread_id"`
	DelaySeconds int   `json:"delay_seconds,omitempty"`
}

// GateSpec is the stored wire form of a gate rule. The dialogue package
// parses it into a closed set of typed rules; parsing is fail-open so a
// malformed spec never hides content permanently.
type GateSpec struct {
	Kind           string `json:"condition_type,omitempty"`
	ScheduledAt    string `json:"scheduled_at,omitempty"`
	StationID      int64  `json:"station_id,omitempty"`
	AfterMessageID int64  `json:"after_message_id,omitempty"`
}
