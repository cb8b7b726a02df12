package dialogue

import (
	"context"
	"strconv"
	"strings"

	"github.com/uptrace/bun"

	"github.com/queststage/queststage/queststage/database/models"
	"github.com/queststage/queststage/queststage/database/repositories"
)

// GraphNode is one node of a whole-thread graph submitted by the editor.
// ID is either the decimal server id of an existing message or a
// client-local id prefixed "new"; client-local ids may be referenced by
// options anywhere in the same submission, including forward references.
type GraphNode struct {
	ID        string
	Text      string
	Character string
	ImageURL  string
	Audience  string
	X         *int
	Y         *int
	Gate      *models.GateSpec
	Options   []GraphOption
	Trigger   *models.TriggerDialogue

	DelayAfterPrevSeconds int
	DeleteAfterSeconds    int
}

// GraphOption is one out-edge of a submitted node. NextID follows the same
// id convention as GraphNode.ID; empty means a dead-end option.
type GraphOption struct {
	Text         string
	NextID       string
	DelaySeconds int
}

// AuthoringService reconciles submitted graphs against storage and exports
// them back to the editor.
type AuthoringService struct {
	db      *bun.DB
	threads repositories.ThreadRepository
}

func NewAuthoringService(db *bun.DB, threads repositories.ThreadRepository) *AuthoringService {
	return &AuthoringService{db: db, threads: threads}
}

// SaveGraph applies a whole-thread graph in a single transaction using
// diff-based reconciliation: unseen client-local ids are created and their
// server ids substituted into every option referencing them, ids present in
// the submission are updated in place (slice position becomes the order
// index), and stored messages absent from the submission are deleted along
// with their replies and deliveries.
func (s *AuthoringService) SaveGraph(ctx context.Context, eventID, threadID int64, nodes []GraphNode) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing []*models.DialogueMessage
		if err := tx.NewSelect().
			Model(&existing).
			Where("dm.thread_id = ? AND dm.event_id = ?", threadID, eventID).
			Scan(ctx); err != nil {
			return err
		}
		byID := make(map[int64]*models.DialogueMessage, len(existing))
		for _, m := range existing {
			byID[m.ID] = m
		}

		// Pass 1: create and update nodes, leaving option targets raw.
		// idMap translates submitted ids to server ids.
		idMap := make(map[string]int64, len(nodes))
		kept := make(map[int64]*models.DialogueMessage, len(nodes))
		for i, n := range nodes {
			payload := buildPayload(n)
			serverID, isExisting := parseServerID(n.ID, byID)
			if isExisting {
				msg := byID[serverID]
				msg.Audience = normalizeAudience(n.Audience)
				msg.Payload = payload
				msg.Gate = n.Gate
				msg.OrderIndex = i
				if _, err := tx.NewUpdate().
					Model(msg).
					Column("audience", "payload", "gate_rule", "order_index").
					WherePK().
					Exec(ctx); err != nil {
					return err
				}
				idMap[n.ID] = msg.ID
				kept[msg.ID] = msg
				continue
			}

			msg := &models.DialogueMessage{
				EventID:    eventID,
				ThreadID:   threadID,
				Audience:   normalizeAudience(n.Audience),
				OrderIndex: i,
				Payload:    payload,
				Gate:       n.Gate,
			}
			if _, err := tx.NewInsert().Model(msg).Exec(ctx); err != nil {
				return err
			}
			idMap[n.ID] = msg.ID
			kept[msg.ID] = msg
		}

		// Pass 2: substitute option targets now that every node has a
		// server id. Forward references to "new" nodes resolve here;
		// unknown client-local ids become dead ends, numeric ids outside
		// the submission are left as dangling references which traversal
		// tolerates.
		for _, n := range nodes {
			msg := kept[idMap[n.ID]]
			changed := false
			for j, opt := range n.Options {
				resolved := resolveTarget(opt.NextID, idMap)
				if msg.Payload.ReplyOptions[j].NextMessageID != resolved {
					msg.Payload.ReplyOptions[j].NextMessageID = resolved
					changed = true
				}
			}
			if !changed {
				continue
			}
			if _, err := tx.NewUpdate().
				Model(msg).
				Column("payload").
				WherePK().
				Exec(ctx); err != nil {
				return err
			}
		}

		// Pass 3: delete stored messages absent from the submission.
		var stale []int64
		for id := range byID {
			if _, ok := kept[id]; !ok {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			if _, err := tx.NewDelete().
				Model((*models.DialogueReply)(nil)).
				Where("message_id IN (?)", bun.In(stale)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*models.ScheduledDelivery)(nil)).
				Where("message_id IN (?)", bun.In(stale)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*models.TransitionTrigger)(nil)).
				Where("source_message_id IN (?)", bun.In(stale)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*models.DialogueMessage)(nil)).
				Where("id IN (?)", bun.In(stale)).
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.threads.Invalidate(threadID)
	return nil
}

// GraphData exports a thread as editor nodes, laying out nodes without a
// stored position on a simple grid.
func (s *AuthoringService) GraphData(ctx context.Context, eventID, threadID int64) ([]GraphNode, error) {
	thread, err := s.threads.GetByID(ctx, eventID, threadID)
	if err != nil {
		return nil, err
	}

	nodes := make([]GraphNode, 0, len(thread.Messages))
	for idx, m := range thread.Messages {
		x, y := m.Payload.PosX, m.Payload.PosY
		if x == nil {
			gx := 50 + (idx%4)*220
			x = &gx
		}
		if y == nil {
			gy := 50 + (idx/4)*180
			y = &gy
		}
		n := GraphNode{
			ID:                    strconv.FormatInt(m.ID, 10),
			Text:                  m.Payload.Text,
			Character:             m.Payload.Character,
			ImageURL:              m.Payload.ImageURL,
			Audience:              m.Audience,
			X:                     x,
			Y:                     y,
			Gate:                  m.Gate,
			Trigger:               m.Payload.TriggerDialogue,
			DelayAfterPrevSeconds: m.Payload.DelayAfterPrevSeconds,
			DeleteAfterSeconds:    m.Payload.DeleteAfterSeconds,
		}
		for _, opt := range m.Payload.ReplyOptions {
			var next string
			if opt.NextMessageID != 0 {
				next = strconv.FormatInt(opt.NextMessageID, 10)
			}
			n.Options = append(n.Options, GraphOption{
				Text:         opt.Text,
				NextID:       next,
				DelaySeconds: opt.DelaySeconds,
			})
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Reorder rewrites order indexes to match the given id sequence.
func (s *AuthoringService) Reorder(ctx context.Context, eventID int64, threadID int64, ids []int64) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, id := range ids {
			if _, err := tx.NewUpdate().
				Model((*models.DialogueMessage)(nil)).
				Set("order_index = ?", i).
				Where("id = ? AND event_id = ? AND thread_id = ?", id, eventID, threadID).
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.threads.Invalidate(threadID)
	return nil
}

// DeleteMessage removes a single message and its dependents. Options of
// other messages pointing at it become dangling, which traversal treats as
// dead ends.
func (s *AuthoringService) DeleteMessage(ctx context.Context, eventID, messageID int64) error {
	var threadID int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		msg := new(models.DialogueMessage)
		if err := tx.NewSelect().
			Model(msg).
			Where("dm.id = ? AND dm.event_id = ?", messageID, eventID).
			Scan(ctx); err != nil {
			return err
		}
		threadID = msg.ThreadID

		if _, err := tx.NewDelete().
			Model((*models.DialogueReply)(nil)).
			Where("message_id = ?", messageID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.ScheduledDelivery)(nil)).
			Where("message_id = ?", messageID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.TransitionTrigger)(nil)).
			Where("source_message_id = ?", messageID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model(msg).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	s.threads.Invalidate(threadID)
	return nil
}

func buildPayload(n GraphNode) models.MessagePayload {
	payload := models.MessagePayload{
		Text:                  n.Text,
		Character:             n.Character,
		ImageURL:              n.ImageURL,
		DelayAfterPrevSeconds: n.DelayAfterPrevSeconds,
		DeleteAfterSeconds:    n.DeleteAfterSeconds,
		TriggerDialogue:       n.Trigger,
		PosX:                  n.X,
		PosY:                  n.Y,
	}
	for _, opt := range n.Options {
		payload.ReplyOptions = append(payload.ReplyOptions, models.ReplyOption{
			Text:         opt.Text,
			DelaySeconds: opt.DelaySeconds,
			// Targets are substituted in the second reconciliation pass.
			NextMessageID: rawNumericID(opt.NextID),
		})
	}
	return payload
}

// normalizeAudience maps editor audience values to their stored form.
// Bare role letters and empty values are accepted.
func normalizeAudience(audience string) string {
	switch audience {
	case "A", models.AudienceRoleA:
		return models.AudienceRoleA
	case "B", models.AudienceRoleB:
		return models.AudienceRoleB
	case "", models.AudienceTeam:
		return models.AudienceTeam
	}
	return audience
}

// parseServerID reports whether the submitted id names a stored message.
func parseServerID(id string, byID map[int64]*models.DialogueMessage) (int64, bool) {
	if id == "" || strings.HasPrefix(id, "new") {
		return 0, false
	}
	serverID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	_, ok := byID[serverID]
	return serverID, ok
}

func rawNumericID(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// resolveTarget maps a submitted option target to a server id. Client-local
// ids resolve through idMap or become dead ends; numeric ids map through
// idMap when the node was part of the submission and pass through
// otherwise.
func resolveTarget(next string, idMap map[string]int64) int64 {
	if next == "" {
		return 0
	}
	if mapped, ok := idMap[next]; ok {
		return mapped
	}
	if strings.HasPrefix(next, "new") {
		return 0
	}
	return rawNumericID(next)
}
