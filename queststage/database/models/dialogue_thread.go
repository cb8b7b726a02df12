package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Thread kinds. LEAKED threads are ambient and visible by default,
// INTERACTIVE threads stay hidden until explicitly unlocked for a team.
const (
	ThreadKindLeaked      = "LEAKED"
	ThreadKindInteractive = "INTERACTIVE"
)

type DialogueThread struct {
	bun.BaseModel `bun:"table:dialogue_threads,alias:dt"`

	ID        int64        `bun:"id,pk,autoincrement"`
	EventID   int64        `bun:"event_id,notnull"`
	Key       string       `bun:"key,notnull"`
	Kind      string       `bun:"kind,notnull,default:'LEAKED'"`
	Title     string       `bun:"title,notnull,default:''"`
	Config    ThreadConfig `bun:"config,type:jsonb"`
	CreatedAt time.Time    `bun:"created_at,notnull,default:current_timestamp"`

	Messages []*DialogueMessage `bun:"rel:has-many,join:id=thread_id"`
}

// ThreadConfig is free-form authoring configuration carried on a thread.
type ThreadConfig struct {
	// Characters maps a character tag to its display metadata.
	Characters map[string]CharacterInfo `json:"characters,omitempty"`
	// TargetRole restricts the whole thread to one player role when set.
	TargetRole string `json:"target_role,omitempty"`
	// DefaultDelaySeconds is the inter-message reveal delay used when a
	// message does not carry its own.
	DefaultDelaySeconds int `json:"default_delay_seconds,omitempty"`
}

type CharacterInfo struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar,omitempty"`
}

// DisplayTitle falls back to the stable key for untitled threads.
func (t *DialogueThread) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Key
}
