package dialogue

import (
	"github.com/queststage/queststage/queststage/database/models"
)

// RevealedMessage is one emitted node plus its presentation enrichment:
// the cumulative reveal delay the client waits before animating the bubble
// in, and the optional auto-delete timer.
type RevealedMessage struct {
	Message            *models.DialogueMessage
	ShowDelaySeconds   int
	DeleteAfterSeconds int
}

// PendingChoice is the single branch node the walk stopped at, with its
// options filtered to those carrying a live target.
type PendingChoice struct {
	Message *models.DialogueMessage
	Options []models.ReplyOption
}

// TransitionRequest asks for a cross-thread unlock to be scheduled because
// an emitted node carried a trigger_dialogue annotation. Persisting it is
// the caller's job and must be idempotent per (source, target, team).
type TransitionRequest struct {
	SourceMessageID int64
	TargetThreadID  int64
	DelaySeconds    int
}

// Result is the outcome of one traversal call.
type Result struct {
	Messages    []RevealedMessage
	Pending     *PendingChoice
	Transitions []TransitionRequest
}

// Traverse walks a thread's graph from its entry node and returns the
// currently visible message sequence for the given player, stopping either
// at a terminal point or at exactly one pending-choice node.
//
// The walk is breadth-first with a visited-set guard: authored graphs may
// contain back-edges and each node is emitted at most once per call. A node
// that fails the audience filter or the gate evaluator is skipped together
// with its subtree; it is re-evaluated on a later request. A visible node
// with exactly one live option auto-advances without player input; with two
// or more, the player's most recent recorded reply resumes the branch
// deterministically, otherwise the walk stops there.
func Traverse(thread *models.DialogueThread, pctx *PlayerContext) Result {
	g := BuildGraph(thread.Messages)
	var res Result

	entry := g.Entry()
	if entry == nil {
		return res
	}

	queue := []*models.DialogueMessage{entry}
	seen := make(map[int64]struct{}, g.Len())
	cumulativeDelay := 0

walk:
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if _, done := seen[m.ID]; done {
			continue
		}
		seen[m.ID] = struct{}{}

		if !AudienceMatches(m, pctx.Role) || !Visible(m, pctx) {
			continue
		}

		res.Messages = append(res.Messages, RevealedMessage{
			Message:            m,
			ShowDelaySeconds:   cumulativeDelay,
			DeleteAfterSeconds: m.Payload.DeleteAfterSeconds,
		})
		cumulativeDelay += revealDelay(thread, m)

		if td := m.Payload.TriggerDialogue; td != nil {
			res.Transitions = append(res.Transitions, TransitionRequest{
				SourceMessageID: m.ID,
				TargetThreadID:  td.ThreadID,
				DelaySeconds:    td.DelaySeconds,
			})
		}

		choices := g.Choices(m.ID)
		switch {
		case len(choices) == 0:
			// Dead end, keep draining the queue.
		case len(choices) == 1:
			queue = append(queue, choices[0].Target)
		default:
			if rep, ok := pctx.LatestReplies[m.ID]; ok {
				if next := g.Node(rep.NextMessageID); next != nil {
					queue = append(queue, next)
					continue
				}
				// The recorded target was deleted by authoring; fall
				// through and let the player choose again.
			}
			res.Pending = &PendingChoice{
				Message: m,
				Options: liveOptions(g, m),
			}
			break walk
		}
	}
	return res
}

// revealDelay is the message's own delay-after-previous, falling back to
// the thread default.
func revealDelay(thread *models.DialogueThread, m *models.DialogueMessage) int {
	if m.Payload.DelayAfterPrevSeconds > 0 {
		return m.Payload.DelayAfterPrevSeconds
	}
	return thread.Config.DefaultDelaySeconds
}

func liveOptions(g *Graph, m *models.DialogueMessage) []models.ReplyOption {
	var opts []models.ReplyOption
	for _, o := range m.Payload.ReplyOptions {
		if o.NextMessageID != 0 && g.Node(o.NextMessageID) != nil {
			opts = append(opts, o)
		}
	}
	return opts
}
