package repositories

import (
	"context"
	"strings"

	"github.com/uptrace/bun"

	"github.com/queststage/queststage/queststage/database/models"
)

type TeamRepository interface {
	GetByID(ctx context.Context, teamID int64) (*models.Team, error)
	GetAllByEvent(ctx context.Context, eventID int64) ([]*models.Team, error)
	GetTeamIDsByEvent(ctx context.Context, eventID int64) ([]int64, error)
	GetGroupTeamIDs(ctx context.Context, eventID, groupID int64) ([]int64, error)

	GetPlayers(ctx context.Context, teamID int64) ([]*models.Player, error)
	// GetPlayersByAudience resolves a message audience to its recipient
	// set: the whole team, or only players of the matching role.
	GetPlayersByAudience(ctx context.Context, teamID int64, audience string) ([]*models.Player, error)
	GetPlayer(ctx context.Context, playerID int64) (*models.Player, error)

	// GetVisitedStationIDs is the read-only "team visited station X" fact
	// supplied by the check-in subsystem: finished visits only.
	GetVisitedStationIDs(ctx context.Context, teamID int64) (map[int64]struct{}, error)
}

type teamRepository struct {
	*BaseRepository
}

func NewTeamRepository(db *bun.DB) TeamRepository {
	return &teamRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *teamRepository) GetByID(ctx context.Context, teamID int64) (*models.Team, error) {
	team := new(models.Team)
	err := r.db.NewSelect().
		Model(team).
		Where("t.id = ?", teamID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "team", teamID, err)
	}
	return team, nil
}

func (r *teamRepository) GetAllByEvent(ctx context.Context, eventID int64) ([]*models.Team, error) {
	var teams []*models.Team
	err := r.db.NewSelect().
		Model(&teams).
		Where("t.event_id = ?", eventID).
		Order("t.id ASC").
		Scan(ctx)
	return teams, r.HandleError("list", "team", err)
}

func (r *teamRepository) GetTeamIDsByEvent(ctx context.Context, eventID int64) ([]int64, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.Team)(nil)).
		Column("id").
		Where("event_id = ?", eventID).
		Order("id ASC").
		Scan(ctx, &ids)
	return ids, r.HandleError("list_ids", "team", err)
}

func (r *teamRepository) GetGroupTeamIDs(ctx context.Context, eventID, groupID int64) ([]int64, error) {
	group := new(models.TeamGroup)
	err := r.db.NewSelect().
		Model(group).
		Where("tg.id = ? AND tg.event_id = ?", groupID, eventID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "team_group", groupID, err)
	}
	return group.TeamIDs, nil
}

func (r *teamRepository) GetPlayers(ctx context.Context, teamID int64) ([]*models.Player, error) {
	var players []*models.Player
	err := r.db.NewSelect().
		Model(&players).
		Where("p.team_id = ?", teamID).
		Order("p.id ASC").
		Scan(ctx)
	return players, r.HandleError("list_players", "player", err)
}

func (r *teamRepository) GetPlayersByAudience(ctx context.Context, teamID int64, audience string) ([]*models.Player, error) {
	if audience == models.AudienceTeam {
		return r.GetPlayers(ctx, teamID)
	}

	// Legacy rows store roles without the ROLE_ prefix.
	var players []*models.Player
	err := r.db.NewSelect().
		Model(&players).
		Where("p.team_id = ? AND (p.role = ? OR p.role = ?)",
			teamID, audience, strings.TrimPrefix(audience, "ROLE_")).
		Order("p.id ASC").
		Scan(ctx)
	return players, r.HandleError("list_players", "player", err)
}

func (r *teamRepository) GetPlayer(ctx context.Context, playerID int64) (*models.Player, error) {
	player := new(models.Player)
	err := r.db.NewSelect().
		Model(player).
		Where("p.id = ?", playerID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "player", playerID, err)
	}
	return player, nil
}

func (r *teamRepository) GetVisitedStationIDs(ctx context.Context, teamID int64) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.StationVisit)(nil)).
		Column("station_id").
		Where("team_id = ? AND state = ?", teamID, models.VisitFinished).
		Scan(ctx, &ids)
	if err != nil {
		return nil, r.HandleError("visited_stations", "station_visit", err)
	}
	visited := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		visited[id] = struct{}{}
	}
	return visited, nil
}
