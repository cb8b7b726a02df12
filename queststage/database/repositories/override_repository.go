package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/queststage/queststage/queststage/database/models"
)

// OverrideRepository manages the typed per-(team, thread) admin override
// record: an optional hold-until timestamp and an optional force-reveal
// message set, with explicit set and clear operations.
type OverrideRepository interface {
	// Get returns the override for (team, thread), or nil when none is set.
	Get(ctx context.Context, teamID, threadID int64) (*models.ThreadOverride, error)
	Set(ctx context.Context, override *models.ThreadOverride) error
	Clear(ctx context.Context, teamID, threadID int64) error
}

type overrideRepository struct {
	*BaseRepository
}

func NewOverrideRepository(db *bun.DB) OverrideRepository {
	return &overrideRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *overrideRepository) Get(ctx context.Context, teamID, threadID int64) (*models.ThreadOverride, error) {
	override := new(models.ThreadOverride)
	err := r.db.NewSelect().
		Model(override).
		Where("dto.team_id = ? AND dto.thread_id = ?", teamID, threadID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.HandleError("get", "thread_override", err)
	}
	return override, nil
}

func (r *overrideRepository) Set(ctx context.Context, override *models.ThreadOverride) error {
	override.UpdatedAt = time.Now().UTC()
	_, err := r.db.NewInsert().
		Model(override).
		On("CONFLICT (team_id, thread_id) DO UPDATE").
		Set("hold_until = EXCLUDED.hold_until").
		Set("force_reveal_message_ids = EXCLUDED.force_reveal_message_ids").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return r.HandleError("set", "thread_override", err)
}

func (r *overrideRepository) Clear(ctx context.Context, teamID, threadID int64) error {
	_, err := r.db.NewDelete().
		Model((*models.ThreadOverride)(nil)).
		Where("team_id = ? AND thread_id = ?", teamID, threadID).
		Exec(ctx)
	return r.HandleError("clear", "thread_override", err)
}
