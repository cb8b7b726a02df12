package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/queststage/queststage/queststage/database/models"
	"github.com/queststage/queststage/queststage/database/repositories"
)

type pair struct{ a, b int64 }

type fakeThreadRepo struct {
	threads   map[int64]*models.DialogueThread
	scheduled []*models.DialogueMessage
}

func newFakeThreadRepo(threads ...*models.DialogueThread) *fakeThreadRepo {
	r := &fakeThreadRepo{threads: make(map[int64]*models.DialogueThread)}
	for _, t := range threads {
		r.threads[t.ID] = t
	}
	return r
}

func (r *fakeThreadRepo) GetByID(_ context.Context, _, threadID int64) (*models.DialogueThread, error) {
	if t, ok := r.threads[threadID]; ok {
		return t, nil
	}
	return nil, &repositories.NotFoundError{Entity: "dialogue_thread", ID: threadID}
}

func (r *fakeThreadRepo) GetByKey(_ context.Context, _ int64, key string) (*models.DialogueThread, error) {
	for _, t := range r.threads {
		if t.Key == key {
			return t, nil
		}
	}
	return nil, &repositories.NotFoundError{Entity: "dialogue_thread", ID: key}
}

func (r *fakeThreadRepo) GetAllByEvent(_ context.Context, eventID int64) ([]*models.DialogueThread, error) {
	var out []*models.DialogueThread
	for _, t := range r.threads {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeThreadRepo) Create(_ context.Context, thread *models.DialogueThread) error {
	r.threads[thread.ID] = thread
	return nil
}

func (r *fakeThreadRepo) Delete(_ context.Context, _, threadID int64) error {
	delete(r.threads, threadID)
	return nil
}

func (r *fakeThreadRepo) GetMessage(_ context.Context, _, messageID int64) (*models.DialogueMessage, error) {
	for _, t := range r.threads {
		for _, m := range t.Messages {
			if m.ID == messageID {
				return m, nil
			}
		}
	}
	return nil, &repositories.NotFoundError{Entity: "dialogue_message", ID: messageID}
}

func (r *fakeThreadRepo) GetScheduledMessages(context.Context) ([]*models.DialogueMessage, error) {
	return r.scheduled, nil
}

func (r *fakeThreadRepo) Invalidate(int64) {}

type fakeTeamRepo struct {
	teamIDs []int64
	groups  map[int64][]int64
	players map[int64][]*models.Player
	byID    map[int64]*models.Player
	visited map[int64]map[int64]struct{}
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{
		groups:  make(map[int64][]int64),
		players: make(map[int64][]*models.Player),
		byID:    make(map[int64]*models.Player),
		visited: make(map[int64]map[int64]struct{}),
	}
}

func (r *fakeTeamRepo) addPlayer(p *models.Player) {
	r.byID[p.ID] = p
	if p.TeamID != 0 {
		r.players[p.TeamID] = append(r.players[p.TeamID], p)
	}
}

func (r *fakeTeamRepo) GetByID(_ context.Context, teamID int64) (*models.Team, error) {
	return &models.Team{ID: teamID}, nil
}

func (r *fakeTeamRepo) GetAllByEvent(_ context.Context, eventID int64) ([]*models.Team, error) {
	var out []*models.Team
	for _, id := range r.teamIDs {
		out = append(out, &models.Team{ID: id, EventID: eventID})
	}
	return out, nil
}

func (r *fakeTeamRepo) GetTeamIDsByEvent(context.Context, int64) ([]int64, error) {
	return r.teamIDs, nil
}

func (r *fakeTeamRepo) GetGroupTeamIDs(_ context.Context, _, groupID int64) ([]int64, error) {
	return r.groups[groupID], nil
}

func (r *fakeTeamRepo) GetPlayers(_ context.Context, teamID int64) ([]*models.Player, error) {
	return r.players[teamID], nil
}

func (r *fakeTeamRepo) GetPlayersByAudience(_ context.Context, teamID int64, audience string) ([]*models.Player, error) {
	if audience == models.AudienceTeam {
		return r.players[teamID], nil
	}
	var out []*models.Player
	for _, p := range r.players[teamID] {
		if p.NormalizedRole() == audience {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) GetPlayer(_ context.Context, playerID int64) (*models.Player, error) {
	if p, ok := r.byID[playerID]; ok {
		return p, nil
	}
	return nil, &repositories.NotFoundError{Entity: "player", ID: playerID}
}

func (r *fakeTeamRepo) GetVisitedStationIDs(_ context.Context, teamID int64) (map[int64]struct{}, error) {
	if v, ok := r.visited[teamID]; ok {
		return v, nil
	}
	return map[int64]struct{}{}, nil
}

type fakeUnlockRepo struct {
	mu           sync.Mutex
	unlocks      map[pair]struct{}
	deliveries   map[pair]struct{}
	triggers     map[int64]*models.TransitionTrigger
	nextTrigger  int64
	startConfigs []*models.ThreadStartConfig
}

func newFakeUnlockRepo() *fakeUnlockRepo {
	return &fakeUnlockRepo{
		unlocks:    make(map[pair]struct{}),
		deliveries: make(map[pair]struct{}),
		triggers:   make(map[int64]*models.TransitionTrigger),
	}
}

func (r *fakeUnlockRepo) EnsureUnlock(_ context.Context, threadID, teamID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pair{threadID, teamID}
	if _, ok := r.unlocks[key]; ok {
		return false, nil
	}
	r.unlocks[key] = struct{}{}
	return true, nil
}

func (r *fakeUnlockRepo) IsUnlocked(_ context.Context, threadID, teamID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.unlocks[pair{threadID, teamID}]
	return ok, nil
}

func (r *fakeUnlockRepo) GetUnlockedThreadIDs(_ context.Context, teamID int64) (map[int64]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]struct{})
	for key := range r.unlocks {
		if key.b == teamID {
			out[key.a] = struct{}{}
		}
	}
	return out, nil
}

func (r *fakeUnlockRepo) EnsureDelivery(_ context.Context, messageID, teamID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pair{messageID, teamID}
	if _, ok := r.deliveries[key]; ok {
		return false, nil
	}
	r.deliveries[key] = struct{}{}
	return true, nil
}

func (r *fakeUnlockRepo) HasDelivery(_ context.Context, messageID, teamID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deliveries[pair{messageID, teamID}]
	return ok, nil
}

func (r *fakeUnlockRepo) EnsureTrigger(_ context.Context, trigger *models.TransitionTrigger) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.triggers {
		if t.TeamID == trigger.TeamID &&
			t.SourceMessageID == trigger.SourceMessageID &&
			t.TargetThreadID == trigger.TargetThreadID {
			return false, nil
		}
	}
	r.nextTrigger++
	trigger.ID = r.nextTrigger
	r.triggers[trigger.ID] = trigger
	return true, nil
}

func (r *fakeUnlockRepo) GetDueTriggers(_ context.Context, now time.Time) ([]*models.TransitionTrigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TransitionTrigger
	for _, t := range r.triggers {
		if !now.Before(t.UnlockAt) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeUnlockRepo) DeleteTrigger(_ context.Context, triggerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.triggers, triggerID)
	return nil
}

func (r *fakeUnlockRepo) GetStartConfigs(context.Context) ([]*models.ThreadStartConfig, error) {
	return r.startConfigs, nil
}

func (r *fakeUnlockRepo) GetStartConfigThreadIDs(_ context.Context, _ int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	for _, cfg := range r.startConfigs {
		out[cfg.ThreadID] = struct{}{}
	}
	return out, nil
}

type fakeReplyRepo struct {
	replies []*models.DialogueReply
}

func (r *fakeReplyRepo) Create(_ context.Context, reply *models.DialogueReply) error {
	r.replies = append(r.replies, reply)
	return nil
}

func (r *fakeReplyRepo) GetHistory(_ context.Context, eventID, playerID int64) ([]*models.DialogueReply, error) {
	var out []*models.DialogueReply
	for _, rep := range r.replies {
		if rep.EventID == eventID && rep.PlayerID == playerID {
			out = append(out, rep)
		}
	}
	return out, nil
}

type fakeOverrideRepo struct {
	overrides map[pair]*models.ThreadOverride
}

func newFakeOverrideRepo() *fakeOverrideRepo {
	return &fakeOverrideRepo{overrides: make(map[pair]*models.ThreadOverride)}
}

func (r *fakeOverrideRepo) Get(_ context.Context, teamID, threadID int64) (*models.ThreadOverride, error) {
	return r.overrides[pair{teamID, threadID}], nil
}

func (r *fakeOverrideRepo) Set(_ context.Context, override *models.ThreadOverride) error {
	r.overrides[pair{override.TeamID, override.ThreadID}] = override
	return nil
}

func (r *fakeOverrideRepo) Clear(_ context.Context, teamID, threadID int64) error {
	delete(r.overrides, pair{teamID, threadID})
	return nil
}

type sentPush struct {
	RecipientID string
	Title       string
	Body        string
	DeepLink    string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	sends []sentPush
	fail  bool
}

func (d *recordingDispatcher) Send(recipientID, title, body, deepLink string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, sentPush{recipientID, title, body, deepLink})
	return !d.fail
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sends)
}
