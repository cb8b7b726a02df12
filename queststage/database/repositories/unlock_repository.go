package repositories

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/queststage/queststage/queststage/database/models"
)

// UnlockRepository owns the idempotency rows of the delivery pipeline:
// unlocks, scheduled deliveries and transition triggers. Every insert is a
// unique-keyed upsert-or-noop, so concurrent writers (scheduler ticks, live
// traversal) cannot double-write a row; the store enforces the exclusion,
// not application-level locking.
type UnlockRepository interface {
	// EnsureUnlock writes the (thread, team) unlock row. It reports whether
	// this call created it, false meaning another path got there first.
	EnsureUnlock(ctx context.Context, threadID, teamID int64) (bool, error)
	IsUnlocked(ctx context.Context, threadID, teamID int64) (bool, error)
	GetUnlockedThreadIDs(ctx context.Context, teamID int64) (map[int64]struct{}, error)

	EnsureDelivery(ctx context.Context, messageID, teamID int64) (bool, error)
	HasDelivery(ctx context.Context, messageID, teamID int64) (bool, error)

	// EnsureTrigger records a pending cross-thread transition once per
	// (team, source message, target thread).
	EnsureTrigger(ctx context.Context, trigger *models.TransitionTrigger) (bool, error)
	GetDueTriggers(ctx context.Context, now time.Time) ([]*models.TransitionTrigger, error)
	DeleteTrigger(ctx context.Context, triggerID int64) error

	GetStartConfigs(ctx context.Context) ([]*models.ThreadStartConfig, error)
	GetStartConfigThreadIDs(ctx context.Context, eventID int64) (map[int64]struct{}, error)
}

type unlockRepository struct {
	*BaseRepository
}

func NewUnlockRepository(db *bun.DB) UnlockRepository {
	return &unlockRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *unlockRepository) EnsureUnlock(ctx context.Context, threadID, teamID int64) (bool, error) {
	unlock := &models.ThreadUnlock{
		ThreadID:   threadID,
		TeamID:     teamID,
		UnlockedAt: time.Now().UTC(),
	}
	res, err := r.db.NewInsert().
		Model(unlock).
		On("CONFLICT (thread_id, team_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, r.HandleError("ensure", "thread_unlock", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *unlockRepository) IsUnlocked(ctx context.Context, threadID, teamID int64) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.ThreadUnlock)(nil)).
		Where("thread_id = ? AND team_id = ?", threadID, teamID).
		Exists(ctx)
	return exists, r.HandleError("exists", "thread_unlock", err)
}

func (r *unlockRepository) GetUnlockedThreadIDs(ctx context.Context, teamID int64) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.ThreadUnlock)(nil)).
		Column("thread_id").
		Where("team_id = ?", teamID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, r.HandleError("list", "thread_unlock", err)
	}
	unlocked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unlocked[id] = struct{}{}
	}
	return unlocked, nil
}

func (r *unlockRepository) EnsureDelivery(ctx context.Context, messageID, teamID int64) (bool, error) {
	delivery := &models.ScheduledDelivery{
		MessageID:   messageID,
		TeamID:      teamID,
		DeliveredAt: time.Now().UTC(),
	}
	res, err := r.db.NewInsert().
		Model(delivery).
		On("CONFLICT (message_id, team_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, r.HandleError("ensure", "scheduled_delivery", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *unlockRepository) HasDelivery(ctx context.Context, messageID, teamID int64) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.ScheduledDelivery)(nil)).
		Where("message_id = ? AND team_id = ?", messageID, teamID).
		Exists(ctx)
	return exists, r.HandleError("exists", "scheduled_delivery", err)
}

func (r *unlockRepository) EnsureTrigger(ctx context.Context, trigger *models.TransitionTrigger) (bool, error) {
	res, err := r.db.NewInsert().
		Model(trigger).
		On("CONFLICT (team_id, source_message_id, target_thread_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, r.HandleError("ensure", "transition_trigger", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *unlockRepository) GetDueTriggers(ctx context.Context, now time.Time) ([]*models.TransitionTrigger, error) {
	var triggers []*models.TransitionTrigger
	err := r.db.NewSelect().
		Model(&triggers).
		Where("dtt.unlock_at <= ?", now).
		Order("dtt.id ASC").
		Scan(ctx)
	return triggers, r.HandleError("list_due", "transition_trigger", err)
}

func (r *unlockRepository) DeleteTrigger(ctx context.Context, triggerID int64) error {
	_, err := r.db.NewDelete().
		Model((*models.TransitionTrigger)(nil)).
		Where("id = ?", triggerID).
		Exec(ctx)
	return r.HandleErrorWithID("delete", "transition_trigger", triggerID, err)
}

func (r *unlockRepository) GetStartConfigs(ctx context.Context) ([]*models.ThreadStartConfig, error) {
	var configs []*models.ThreadStartConfig
	err := r.db.NewSelect().
		Model(&configs).
		Where("dsc.start_at IS NOT NULL").
		Order("dsc.order_index ASC", "dsc.id ASC").
		Scan(ctx)
	return configs, r.HandleError("list", "thread_start_config", err)
}

func (r *unlockRepository) GetStartConfigThreadIDs(ctx context.Context, eventID int64) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.ThreadStartConfig)(nil)).
		Column("thread_id").
		Where("event_id = ?", eventID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, r.HandleError("list_ids", "thread_start_config", err)
	}
	withConfig := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		withConfig[id] = struct{}{}
	}
	return withConfig, nil
}
