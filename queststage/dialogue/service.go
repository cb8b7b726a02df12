package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/queststage/queststage/queststage/database/models"
	"github.com/queststage/queststage/queststage/database/repositories"
)

var (
	// ErrThreadLocked is returned when a thread exists but is not yet
	// visible to the requesting player's team.
	ErrThreadLocked = errors.New("dialogue: thread not unlocked for team")
	// ErrInvalidOption is returned when a reply does not match any option
	// of the source message.
	ErrInvalidOption = errors.New("dialogue: reply target is not an option of the message")
)

// Service wires the pure engine (gate, traversal, visibility) to the store
// and the dispatcher-facing scheduler. It is the single entry point of the
// read and reply paths.
type Service struct {
	threads   repositories.ThreadRepository
	replies   repositories.ReplyRepository
	teams     repositories.TeamRepository
	unlocks   repositories.UnlockRepository
	overrides repositories.OverrideRepository
}

func NewService(
	threads repositories.ThreadRepository,
	replies repositories.ReplyRepository,
	teams repositories.TeamRepository,
	unlocks repositories.UnlockRepository,
	overrides repositories.OverrideRepository,
) *Service {
	return &Service{
		threads:   threads,
		replies:   replies,
		teams:     teams,
		unlocks:   unlocks,
		overrides: overrides,
	}
}

// ThreadView is the rendered state of one thread for one player.
type ThreadView struct {
	Thread   *models.DialogueThread
	Messages []RevealedMessage
	Pending  *PendingChoice
}

// ThreadSummary is a list entry with its chat-list presentation fields.
type ThreadSummary struct {
	Thread    *models.DialogueThread
	Preview   string
	AvatarURL string
}

// ListThreads returns the threads visible to the player, enriched with the
// first visible text as preview and the speaking character's avatar.
func (s *Service) ListThreads(ctx context.Context, eventID, playerID int64) ([]ThreadSummary, error) {
	player, err := s.teams.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	threads, err := s.threads.GetAllByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	configIDs, err := s.unlocks.GetStartConfigThreadIDs(ctx, eventID)
	if err != nil {
		return nil, err
	}
	unlockedIDs := map[int64]struct{}{}
	if player.TeamID != 0 {
		if unlockedIDs, err = s.unlocks.GetUnlockedThreadIDs(ctx, player.TeamID); err != nil {
			return nil, err
		}
	}

	visible := FilterThreads(threads, configIDs, unlockedIDs, player.NormalizedRole())
	summaries := make([]ThreadSummary, 0, len(visible))
	for _, t := range visible {
		summaries = append(summaries, summarize(t))
	}
	return summaries, nil
}

// ViewThread resolves thread visibility, traverses the graph for the player
// and durably records any transition triggers reached. Re-viewing the same
// output is a no-op past the first time: trigger persistence is idempotent
// per (team, source message, target thread).
func (s *Service) ViewThread(ctx context.Context, eventID, playerID int64, threadKey string) (*ThreadView, error) {
	thread, err := s.threads.GetByKey(ctx, eventID, threadKey)
	if err != nil {
		return nil, err
	}
	player, err := s.teams.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	configIDs, err := s.unlocks.GetStartConfigThreadIDs(ctx, eventID)
	if err != nil {
		return nil, err
	}
	unlocked := false
	if player.TeamID != 0 {
		if unlocked, err = s.unlocks.IsUnlocked(ctx, thread.ID, player.TeamID); err != nil {
			return nil, err
		}
	}
	_, hasCfg := configIDs[thread.ID]
	if !ThreadVisible(thread, hasCfg, unlocked) {
		return nil, ErrThreadLocked
	}

	pctx, err := s.buildPlayerContext(ctx, eventID, player, thread.ID)
	if err != nil {
		return nil, err
	}

	result := Traverse(thread, pctx)
	if player.TeamID != 0 {
		s.recordTransitions(ctx, eventID, player.TeamID, result.Transitions)
	}

	return &ThreadView{
		Thread:   thread,
		Messages: result.Messages,
		Pending:  result.Pending,
	}, nil
}

// RecordReply validates and persists a player's branch choice. A repeated
// reply to the same message appends a new row with a later timestamp, which
// becomes the authoritative choice. Changing one's mind is permitted.
func (s *Service) RecordReply(ctx context.Context, eventID, playerID int64, threadKey string, messageID, nextMessageID int64, text string) error {
	thread, err := s.threads.GetByKey(ctx, eventID, threadKey)
	if err != nil {
		return err
	}

	var source *models.DialogueMessage
	for _, m := range thread.Messages {
		if m.ID == messageID {
			source = m
			break
		}
	}
	if source == nil {
		return fmt.Errorf("dialogue: message %d does not belong to thread %q", messageID, threadKey)
	}

	valid := false
	for _, opt := range source.Payload.ReplyOptions {
		if opt.NextMessageID != 0 && opt.NextMessageID == nextMessageID {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidOption
	}

	return s.replies.Create(ctx, &models.DialogueReply{
		EventID:       eventID,
		PlayerID:      playerID,
		MessageID:     messageID,
		ReplyText:     text,
		NextMessageID: nextMessageID,
		RepliedAt:     time.Now().UTC(),
	})
}

// HoldThread suppresses all non-forced reveals of a thread for a team until
// the given time, keeping any force-reveal set already in place.
func (s *Service) HoldThread(ctx context.Context, eventID, teamID, threadID int64, until time.Time) error {
	existing, err := s.overrides.Get(ctx, teamID, threadID)
	if err != nil {
		return err
	}
	override := &models.ThreadOverride{
		EventID:   eventID,
		TeamID:    teamID,
		ThreadID:  threadID,
		HoldUntil: &until,
	}
	if existing != nil {
		override.ForceRevealMessageIDs = existing.ForceRevealMessageIDs
	}
	return s.overrides.Set(ctx, override)
}

// ForceReveal adds message ids to the thread's force-reveal set for a team.
func (s *Service) ForceReveal(ctx context.Context, eventID, teamID, threadID int64, messageIDs ...int64) error {
	override, err := s.overrides.Get(ctx, teamID, threadID)
	if err != nil {
		return err
	}
	if override == nil {
		override = &models.ThreadOverride{EventID: eventID, TeamID: teamID, ThreadID: threadID}
	}
	for _, id := range messageIDs {
		if !override.ForcesReveal(id) {
			override.ForceRevealMessageIDs = append(override.ForceRevealMessageIDs, id)
		}
	}
	return s.overrides.Set(ctx, override)
}

// ClearOverrides removes the override record for (team, thread).
func (s *Service) ClearOverrides(ctx context.Context, teamID, threadID int64) error {
	return s.overrides.Clear(ctx, teamID, threadID)
}

// UnlockThread manually unlocks a thread for a team, notably from the admin
// surface. It shares the scheduler's idempotency row.
func (s *Service) UnlockThread(ctx context.Context, threadID, teamID int64) (bool, error) {
	return s.unlocks.EnsureUnlock(ctx, threadID, teamID)
}

func (s *Service) buildPlayerContext(ctx context.Context, eventID int64, player *models.Player, threadID int64) (*PlayerContext, error) {
	history, err := s.replies.GetHistory(ctx, eventID, player.ID)
	if err != nil {
		return nil, err
	}
	replied := make(map[int64]struct{}, len(history))
	latest := make(map[int64]*models.DialogueReply, len(history))
	for _, rep := range history {
		replied[rep.MessageID] = struct{}{}
		// History is ordered oldest first, so the last write wins.
		latest[rep.MessageID] = rep
	}

	visited := map[int64]struct{}{}
	var override *models.ThreadOverride
	if player.TeamID != 0 {
		if visited, err = s.teams.GetVisitedStationIDs(ctx, player.TeamID); err != nil {
			return nil, err
		}
		if override, err = s.overrides.Get(ctx, player.TeamID, threadID); err != nil {
			return nil, err
		}
	}

	return &PlayerContext{
		PlayerID:          player.ID,
		TeamID:            player.TeamID,
		Role:              player.NormalizedRole(),
		RepliedMessageIDs: replied,
		LatestReplies:     latest,
		VisitedStationIDs: visited,
		Override:          override,
		Now:               time.Now().UTC(),
	}, nil
}

// recordTransitions persists trigger requests emitted by traversal.
// Requests whose target thread no longer exists, or whose target is already
// unlocked for the team, are dropped. Failures are logged and swallowed:
// the next view re-emits the same requests.
func (s *Service) recordTransitions(ctx context.Context, eventID, teamID int64, requests []TransitionRequest) {
	for _, req := range requests {
		if _, err := s.threads.GetByID(ctx, eventID, req.TargetThreadID); err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			slog.Error("Failed to resolve transition target",
				slog.Int64("target_thread_id", req.TargetThreadID),
				slog.String("error", err.Error()))
			continue
		}
		unlocked, err := s.unlocks.IsUnlocked(ctx, req.TargetThreadID, teamID)
		if err != nil {
			slog.Error("Failed to check transition unlock",
				slog.Int64("target_thread_id", req.TargetThreadID),
				slog.String("error", err.Error()))
			continue
		}
		if unlocked {
			continue
		}
		_, err = s.unlocks.EnsureTrigger(ctx, &models.TransitionTrigger{
			EventID:         eventID,
			TeamID:          teamID,
			SourceMessageID: req.SourceMessageID,
			TargetThreadID:  req.TargetThreadID,
			UnlockAt:        time.Now().UTC().Add(time.Duration(req.DelaySeconds) * time.Second),
		})
		if err != nil {
			slog.Error("Failed to record transition trigger",
				slog.Int64("source_message_id", req.SourceMessageID),
				slog.Int64("target_thread_id", req.TargetThreadID),
				slog.String("error", err.Error()))
		}
	}
}

const previewRunes = 60

func summarize(t *models.DialogueThread) ThreadSummary {
	s := ThreadSummary{Thread: t}
	for _, m := range t.Messages {
		if m.Payload.Text == "" {
			continue
		}
		s.Preview = truncate(m.Payload.Text, previewRunes)
		if ch, ok := t.Config.Characters[m.Payload.Character]; ok {
			s.AvatarURL = ch.AvatarURL
		}
		break
	}
	return s
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "…"
}
