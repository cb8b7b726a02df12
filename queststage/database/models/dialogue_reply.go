package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DialogueReply records a player's chosen option at a branch message.
// Multiple replies per (player, message) may accumulate; the most recent
// one is authoritative for traversal.
type DialogueReply struct {
	bun.BaseModel `bun:"table:dialogue_replies,alias:dr"`

	ID            int64     `bun:"id,pk,autoincrement"`
	EventID       int64     `bun:"event_id,notnull"`
	PlayerID      int64     `bun:"player_id,notnull"`
	MessageID     int64     `bun:"message_id,notnull"`
	ReplyText     string    `bun:"reply_text,notnull"`
	NextMessageID int64     `bun:"next_message_id,nullzero"`
	RepliedAt     time.Time `bun:"replied_at,notnull,default:current_timestamp"`
}
