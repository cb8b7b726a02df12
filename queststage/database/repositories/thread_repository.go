package repositories

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"

	"github.com/queststage/queststage/queststage/database/models"
)

const threadCacheSize = 256

type ThreadRepository interface {
	GetByID(ctx context.Context, eventID, threadID int64) (*models.DialogueThread, error)
	GetByKey(ctx context.Context, eventID int64, key string) (*models.DialogueThread, error)
	GetAllByEvent(ctx context.Context, eventID int64) ([]*models.DialogueThread, error)
	Create(ctx context.Context, thread *models.DialogueThread) error
	Delete(ctx context.Context, eventID, threadID int64) error

	GetMessage(ctx context.Context, eventID, messageID int64) (*models.DialogueMessage, error)
	GetScheduledMessages(ctx context.Context) ([]*models.DialogueMessage, error)

	// Invalidate drops the cached read model of a thread after authoring
	// writes.
	Invalidate(threadID int64)
}

type threadRepository struct {
	*BaseRepository
	cache *lru.Cache
}

func NewThreadRepository(db *bun.DB) ThreadRepository {
	cache, _ := lru.New(threadCacheSize)
	return &threadRepository{
		BaseRepository: NewBaseRepository(db),
		cache:          cache,
	}
}

func cacheKey(eventID, threadID int64) string {
	return fmt.Sprintf("%d:%d", eventID, threadID)
}

func (r *threadRepository) GetByID(ctx context.Context, eventID, threadID int64) (*models.DialogueThread, error) {
	if cached, ok := r.cache.Get(cacheKey(eventID, threadID)); ok {
		return cached.(*models.DialogueThread), nil
	}

	thread := new(models.DialogueThread)
	err := r.db.NewSelect().
		Model(thread).
		Relation("Messages", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("order_index ASC", "id ASC")
		}).
		Where("dt.id = ? AND dt.event_id = ?", threadID, eventID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "dialogue_thread", threadID, err)
	}

	r.cache.Add(cacheKey(eventID, threadID), thread)
	return thread, nil
}

func (r *threadRepository) GetByKey(ctx context.Context, eventID int64, key string) (*models.DialogueThread, error) {
	ck := fmt.Sprintf("%d:key:%s", eventID, key)
	if cached, ok := r.cache.Get(ck); ok {
		return cached.(*models.DialogueThread), nil
	}

	thread := new(models.DialogueThread)
	err := r.db.NewSelect().
		Model(thread).
		Relation("Messages", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("order_index ASC", "id ASC")
		}).
		Where("dt.key = ? AND dt.event_id = ?", key, eventID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "dialogue_thread", key, err)
	}

	r.cache.Add(ck, thread)
	return thread, nil
}

func (r *threadRepository) GetAllByEvent(ctx context.Context, eventID int64) ([]*models.DialogueThread, error) {
	var threads []*models.DialogueThread
	err := r.db.NewSelect().
		Model(&threads).
		Relation("Messages", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("order_index ASC", "id ASC")
		}).
		Where("dt.event_id = ?", eventID).
		Order("dt.id ASC").
		Scan(ctx)
	return threads, r.HandleError("list", "dialogue_thread", err)
}

func (r *threadRepository) Create(ctx context.Context, thread *models.DialogueThread) error {
	_, err := r.db.NewInsert().Model(thread).Exec(ctx)
	return r.HandleError("create", "dialogue_thread", err)
}

// Delete removes a thread and everything hanging off it. Threads own their
// messages; replies, deliveries, triggers, start configs, unlocks and
// overrides all cascade.
func (r *threadRepository) Delete(ctx context.Context, eventID, threadID int64) error {
	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		var messageIDs []int64
		if err := tx.NewSelect().
			Model((*models.DialogueMessage)(nil)).
			Column("id").
			Where("thread_id = ? AND event_id = ?", threadID, eventID).
			Scan(ctx, &messageIDs); err != nil {
			return err
		}

		if len(messageIDs) > 0 {
			if _, err := tx.NewDelete().
				Model((*models.DialogueReply)(nil)).
				Where("message_id IN (?)", bun.In(messageIDs)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*models.ScheduledDelivery)(nil)).
				Where("message_id IN (?)", bun.In(messageIDs)).
				Exec(ctx); err != nil {
				return err
			}
		}
		if _, err := tx.NewDelete().
			Model((*models.TransitionTrigger)(nil)).
			Where("target_thread_id = ?", threadID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.ThreadStartConfig)(nil)).
			Where("thread_id = ?", threadID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.ThreadUnlock)(nil)).
			Where("thread_id = ?", threadID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.ThreadOverride)(nil)).
			Where("thread_id = ?", threadID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.DialogueMessage)(nil)).
			Where("thread_id = ?", threadID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*models.DialogueThread)(nil)).
			Where("id = ? AND event_id = ?", threadID, eventID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return r.HandleErrorWithID("delete", "dialogue_thread", threadID, err)
	}
	r.Invalidate(threadID)
	return nil
}

func (r *threadRepository) GetMessage(ctx context.Context, eventID, messageID int64) (*models.DialogueMessage, error) {
	msg := new(models.DialogueMessage)
	err := r.db.NewSelect().
		Model(msg).
		Where("dm.id = ? AND dm.event_id = ?", messageID, eventID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "dialogue_message", messageID, err)
	}
	return msg, nil
}

// GetScheduledMessages returns every message carrying a scheduled gate,
// across all events. The scheduler filters elapsed timestamps itself since
// gate parsing lives in Go, not SQL.
func (r *threadRepository) GetScheduledMessages(ctx context.Context) ([]*models.DialogueMessage, error) {
	var msgs []*models.DialogueMessage
	err := r.db.NewSelect().
		Model(&msgs).
		Where("dm.gate_rule ->> 'condition_type' = ?", models.GateScheduled).
		Order("dm.id ASC").
		Scan(ctx)
	return msgs, r.HandleError("list_scheduled", "dialogue_message", err)
}

func (r *threadRepository) Invalidate(threadID int64) {
	for _, k := range r.cache.Keys() {
		if v, ok := r.cache.Peek(k); ok {
			if t, ok := v.(*models.DialogueThread); ok && t.ID == threadID {
				r.cache.Remove(k)
			}
		}
	}
}
