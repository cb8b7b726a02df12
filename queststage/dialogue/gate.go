package dialogue

import (
	"time"

	"github.com/queststage/queststage/queststage/database/models"
)

// Gate is the closed set of reveal conditions a message can carry. Parsing
// from the stored spec is fail-open: anything malformed degrades to
// Immediate so a client-side evaluation error can never permanently hide
// content (the scheduler is the authoritative delivery path for timed
// messages).
type Gate interface {
	isGate()
}

// Immediate reveals the message unconditionally.
type Immediate struct{}

// Scheduled reveals the message once wall-clock time reaches At.
type Scheduled struct {
	At time.Time
}

// AfterStation reveals the message once the team has finished visiting the
// referenced station.
type AfterStation struct {
	StationID int64
}

// AfterMessage reveals the message once the player has replied to the
// referenced message.
type AfterMessage struct {
	MessageID int64
}

func (Immediate) isGate()    {}
func (Scheduled) isGate()    {}
func (AfterStation) isGate() {}
func (AfterMessage) isGate() {}

// ParseGate converts a stored gate spec into its typed form. A nil spec,
// an unknown kind, or a kind whose required field is absent or malformed
// all yield Immediate.
func ParseGate(spec *models.GateSpec) Gate {
	if spec == nil {
		return Immediate{}
	}
	switch spec.Kind {
	case models.GateScheduled:
		at, ok := parseTimestamp(spec.ScheduledAt)
		if !ok {
			return Immediate{}
		}
		return Scheduled{At: at}
	case models.GateAfterStation:
		if spec.StationID == 0 {
			return Immediate{}
		}
		return AfterStation{StationID: spec.StationID}
	case models.GateAfterMessage:
		if spec.AfterMessageID == 0 {
			return Immediate{}
		}
		return AfterMessage{MessageID: spec.AfterMessageID}
	}
	return Immediate{}
}

// parseTimestamp accepts RFC 3339 with a "Z" or numeric offset, and the
// offset-less form authored by the admin editor, which is taken as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// PlayerContext carries the pre-fetched inputs of a single evaluation:
// the requesting player's role and reply history, the team's completed
// station visits, the admin override record for the thread (may be nil),
// and the evaluation instant. The evaluator itself performs no I/O, so the
// live traversal path and the scheduler path share it verbatim.
type PlayerContext struct {
	PlayerID int64
	TeamID   int64
	Role     string

	// RepliedMessageIDs is every message the player has ever replied to.
	RepliedMessageIDs map[int64]struct{}
	// LatestReplies holds the most recent reply per message, which is the
	// authoritative branch choice on replay.
	LatestReplies map[int64]*models.DialogueReply

	VisitedStationIDs map[int64]struct{}
	Override          *models.ThreadOverride
	Now               time.Time
}

func (c *PlayerContext) now() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now
}

func (c *PlayerContext) replied(messageID int64) bool {
	_, ok := c.RepliedMessageIDs[messageID]
	return ok
}

func (c *PlayerContext) visited(stationID int64) bool {
	_, ok := c.VisitedStationIDs[stationID]
	return ok
}

// Visible decides whether a single message may be shown, in override-first
// order: force-reveal wins over everything, an active hold suppresses
// everything else, then the message's own gate rule applies.
func Visible(msg *models.DialogueMessage, pctx *PlayerContext) bool {
	if pctx.Override.ForcesReveal(msg.ID) {
		return true
	}
	if pctx.Override.Holds(pctx.now()) {
		return false
	}
	switch g := ParseGate(msg.Gate).(type) {
	case Scheduled:
		return !pctx.now().Before(g.At)
	case AfterStation:
		return pctx.visited(g.StationID)
	case AfterMessage:
		return pctx.replied(g.MessageID)
	}
	return true
}

// AudienceMatches reports whether the message is addressed to the given
// normalized role. TEAM messages match every role.
func AudienceMatches(msg *models.DialogueMessage, role string) bool {
	return msg.Audience == models.AudienceTeam || msg.Audience == role
}
