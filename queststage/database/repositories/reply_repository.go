package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/queststage/queststage/queststage/database/models"
)

type ReplyRepository interface {
	Create(ctx context.Context, reply *models.DialogueReply) error
	// GetHistory returns every reply of a player in an event, oldest first.
	GetHistory(ctx context.Context, eventID, playerID int64) ([]*models.DialogueReply, error)
}

type replyRepository struct {
	*BaseRepository
}

func NewReplyRepository(db *bun.DB) ReplyRepository {
	return &replyRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *replyRepository) Create(ctx context.Context, reply *models.DialogueReply) error {
	_, err := r.db.NewInsert().Model(reply).Exec(ctx)
	return r.HandleError("create", "dialogue_reply", err)
}

func (r *replyRepository) GetHistory(ctx context.Context, eventID, playerID int64) ([]*models.DialogueReply, error) {
	var replies []*models.DialogueReply
	err := r.db.NewSelect().
		Model(&replies).
		Where("dr.event_id = ? AND dr.player_id = ?", eventID, playerID).
		Order("dr.replied_at ASC", "dr.id ASC").
		Scan(ctx)
	return replies, r.HandleError("history", "dialogue_reply", err)
}
