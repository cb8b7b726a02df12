package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/queststage/queststage/queststage/database/models"
)

func serviceUnderTest(threads *fakeThreadRepo, teams *fakeTeamRepo, unlocks *fakeUnlockRepo, replies *fakeReplyRepo, overrides *fakeOverrideRepo) *Service {
	if replies == nil {
		replies = &fakeReplyRepo{}
	}
	if overrides == nil {
		overrides = newFakeOverrideRepo()
	}
	return NewService(threads, replies, teams, unlocks, overrides)
}

func TestListThreads(t *testing.T) {
	leaked := &models.DialogueThread{
		ID: 1, EventID: 1, Key: "rumor", Kind: models.ThreadKindLeaked,
		Config: models.ThreadConfig{Characters: map[string]models.CharacterInfo{
			"stagehand": {Name: "The Stagehand", AvatarURL: "https://img.example.com/stagehand.png"},
		}},
		Messages: []*models.DialogueMessage{
			{ID: 10, Audience: models.AudienceTeam, Payload: models.MessagePayload{
				Text: "Did you hear about the side door?", Character: "stagehand",
			}},
		},
	}
	locked := &models.DialogueThread{
		ID: 2, EventID: 1, Key: "secret", Kind: models.ThreadKindInteractive,
		Messages: []*models.DialogueMessage{
			{ID: 20, Audience: models.AudienceTeam, Payload: models.MessagePayload{Text: "hi"}},
		},
	}

	threads := newFakeThreadRepo(leaked, locked)
	teams := newFakeTeamRepo()
	teams.addPlayer(&models.Player{ID: 1, EventID: 1, TeamID: 1, Role: "A"})
	unlocks := newFakeUnlockRepo()
	unlocks.startConfigs = []*models.ThreadStartConfig{{ID: 1, EventID: 1, ThreadID: 2}}

	s := serviceUnderTest(threads, teams, unlocks, nil, nil)

	got, err := s.ListThreads(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("ListThreads() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListThreads() returned %d threads, want 1", len(got))
	}
	if got[0].Thread.ID != 1 {
		t.Errorf("listed thread %d, want the leaked thread", got[0].Thread.ID)
	}
	if !strings.HasPrefix(got[0].Preview, "Did you hear") {
		t.Errorf("Preview = %q", got[0].Preview)
	}
	if got[0].AvatarURL != "https://img.example.com/stagehand.png" {
		t.Errorf("AvatarURL = %q", got[0].AvatarURL)
	}

	// Once unlocked, the interactive thread appears too.
	unlocks.EnsureUnlock(context.Background(), 2, 1)
	got, err = s.ListThreads(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("ListThreads() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListThreads() after unlock returned %d threads, want 2", len(got))
	}
}

func TestViewThreadLocked(t *testing.T) {
	th := &models.DialogueThread{
		ID: 1, EventID: 1, Key: "secret", Kind: models.ThreadKindInteractive,
		Messages: []*models.DialogueMessage{
			{ID: 10, Audience: models.AudienceTeam, Payload: models.MessagePayload{Text: "hi"}},
		},
	}
	threads := newFakeThreadRepo(th)
	teams := newFakeTeamRepo()
	teams.addPlayer(&models.Player{ID: 1, EventID: 1, TeamID: 1})
	unlocks := newFakeUnlockRepo()
	unlocks.startConfigs = []*models.ThreadStartConfig{{ID: 1, EventID: 1, ThreadID: 1}}

	s := serviceUnderTest(threads, teams, unlocks, nil, nil)

	if _, err := s.ViewThread(context.Background(), 1, 1, "secret"); !errors.Is(err, ErrThreadLocked) {
		t.Errorf("ViewThread() error = %v, want ErrThreadLocked", err)
	}

	unlocks.EnsureUnlock(context.Background(), 1, 1)
	view, err := s.ViewThread(context.Background(), 1, 1, "secret")
	if err != nil {
		t.Fatalf("ViewThread() after unlock error = %v", err)
	}
	if len(view.Messages) != 1 {
		t.Errorf("ViewThread() revealed %d messages, want 1", len(view.Messages))
	}
}

func TestViewThreadRecordsTransitions(t *testing.T) {
	source := &models.DialogueThread{
		ID: 1, EventID: 1, Key: "act-one", Kind: models.ThreadKindLeaked,
		Messages: []*models.DialogueMessage{
			{ID: 10, Audience: models.AudienceTeam, Payload: models.MessagePayload{
				Text:            "You were not supposed to read this.",
				TriggerDialogue: &models.TriggerDialogue{ThreadID: 2, DelaySeconds: 30},
			}},
		},
	}
	target := &models.DialogueThread{ID: 2, EventID: 1, Key: "act-two", Kind: models.ThreadKindInteractive}

	threads := newFakeThreadRepo(source, target)
	teams := newFakeTeamRepo()
	teams.addPlayer(&models.Player{ID: 1, EventID: 1, TeamID: 1})
	unlocks := newFakeUnlockRepo()

	s := serviceUnderTest(threads, teams, unlocks, nil, nil)

	if _, err := s.ViewThread(context.Background(), 1, 1, "act-one"); err != nil {
		t.Fatalf("ViewThread() error = %v", err)
	}
	if len(unlocks.triggers) != 1 {
		t.Fatalf("%d triggers recorded, want 1", len(unlocks.triggers))
	}

	// Re-viewing does not duplicate the trigger.
	if _, err := s.ViewThread(context.Background(), 1, 1, "act-one"); err != nil {
		t.Fatalf("ViewThread() second call error = %v", err)
	}
	if len(unlocks.triggers) != 1 {
		t.Errorf("%d triggers after re-view, want 1", len(unlocks.triggers))
	}
}

func TestViewThreadSkipsTransitionForUnlockedTarget(t *testing.T) {
	source := &models.DialogueThread{
		ID: 1, EventID: 1, Key: "act-one", Kind: models.ThreadKindLeaked,
		Messages: []*models.DialogueMessage{
			{ID: 10, Audience: models.AudienceTeam, Payload: models.MessagePayload{
				Text:            "again",
				TriggerDialogue: &models.TriggerDialogue{ThreadID: 2},
			}},
		},
	}
	target := &models.DialogueThread{ID: 2, EventID: 1, Key: "act-two"}

	threads := newFakeThreadRepo(source, target)
	teams := newFakeTeamRepo()
	teams.addPlayer(&models.Player{ID: 1, EventID: 1, TeamID: 1})
	unlocks := newFakeUnlockRepo()
	unlocks.EnsureUnlock(context.Background(), 2, 1)

	s := serviceUnderTest(threads, teams, unlocks, nil, nil)

	if _, err := s.ViewThread(context.Background(), 1, 1, "act-one"); err != nil {
		t.Fatalf("ViewThread() error = %v", err)
	}
	if len(unlocks.triggers) != 0 {
		t.Errorf("%d triggers recorded for an already-unlocked target, want 0", len(unlocks.triggers))
	}
}

func TestRecordReply(t *testing.T) {
	th := &models.DialogueThread{
		ID: 1, EventID: 1, Key: "branch", Kind: models.ThreadKindLeaked,
		Messages: []*models.DialogueMessage{
			{ID: 10, Audience: models.AudienceTeam, Payload: models.MessagePayload{
				Text: "Which way?",
				ReplyOptions: []models.ReplyOption{
					{Text: "left", NextMessageID: 11},
					{Text: "right", NextMessageID: 12},
				},
			}},
			{ID: 11, Audience: models.AudienceTeam},
			{ID: 12, Audience: models.AudienceTeam},
		},
	}

	threads := newFakeThreadRepo(th)
	teams := newFakeTeamRepo()
	teams.addPlayer(&models.Player{ID: 1, EventID: 1, TeamID: 1})
	replies := &fakeReplyRepo{}

	s := serviceUnderTest(threads, teams, newFakeUnlockRepo(), replies, nil)

	if err := s.RecordReply(context.Background(), 1, 1, "branch", 10, 11, "left"); err != nil {
		t.Fatalf("RecordReply() error = %v", err)
	}
	if len(replies.replies) != 1 {
		t.Fatalf("%d replies stored, want 1", len(replies.replies))
	}
	rep := replies.replies[0]
	if rep.MessageID != 10 || rep.NextMessageID != 11 || rep.ReplyText != "left" {
		t.Errorf("stored reply = %+v", rep)
	}

	if err := s.RecordReply(context.Background(), 1, 1, "branch", 10, 99, "?"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("RecordReply() with bogus option error = %v, want ErrInvalidOption", err)
	}
	if err := s.RecordReply(context.Background(), 1, 1, "branch", 77, 11, "left"); err == nil {
		t.Error("RecordReply() with foreign message succeeded, want error")
	}

	// Changing one's mind appends a newer authoritative reply.
	if err := s.RecordReply(context.Background(), 1, 1, "branch", 10, 12, "right"); err != nil {
		t.Fatalf("RecordReply() second choice error = %v", err)
	}
	if len(replies.replies) != 2 {
		t.Errorf("%d replies stored, want 2", len(replies.replies))
	}
}

func TestOverrideLifecycle(t *testing.T) {
	th := &models.DialogueThread{ID: 1, EventID: 1, Key: "held", Kind: models.ThreadKindLeaked,
		Messages: []*models.DialogueMessage{
			{ID: 10, Audience: models.AudienceTeam, Payload: models.MessagePayload{Text: "hi"}},
		},
	}
	threads := newFakeThreadRepo(th)
	teams := newFakeTeamRepo()
	teams.addPlayer(&models.Player{ID: 1, EventID: 1, TeamID: 1})
	overrides := newFakeOverrideRepo()

	s := serviceUnderTest(threads, teams, newFakeUnlockRepo(), nil, overrides)
	ctx := context.Background()

	until := time.Now().UTC().Add(time.Hour)
	if err := s.HoldThread(ctx, 1, 1, 1, until); err != nil {
		t.Fatalf("HoldThread() error = %v", err)
	}
	view, err := s.ViewThread(ctx, 1, 1, "held")
	if err != nil {
		t.Fatalf("ViewThread() error = %v", err)
	}
	if len(view.Messages) != 0 {
		t.Errorf("held thread revealed %d messages, want 0", len(view.Messages))
	}

	// Force-revealing punches through the hold, and holding again keeps
	// the force-reveal set.
	if err := s.ForceReveal(ctx, 1, 1, 1, 10); err != nil {
		t.Fatalf("ForceReveal() error = %v", err)
	}
	if err := s.HoldThread(ctx, 1, 1, 1, until); err != nil {
		t.Fatalf("HoldThread() error = %v", err)
	}
	view, err = s.ViewThread(ctx, 1, 1, "held")
	if err != nil {
		t.Fatalf("ViewThread() error = %v", err)
	}
	if len(view.Messages) != 1 {
		t.Errorf("force-revealed thread showed %d messages, want 1", len(view.Messages))
	}

	if err := s.ClearOverrides(ctx, 1, 1); err != nil {
		t.Fatalf("ClearOverrides() error = %v", err)
	}
	view, err = s.ViewThread(ctx, 1, 1, "held")
	if err != nil {
		t.Fatalf("ViewThread() error = %v", err)
	}
	if len(view.Messages) != 1 {
		t.Errorf("cleared thread showed %d messages, want 1", len(view.Messages))
	}
}

func TestUnlockThreadIdempotent(t *testing.T) {
	unlocks := newFakeUnlockRepo()
	s := serviceUnderTest(newFakeThreadRepo(), newFakeTeamRepo(), unlocks, nil, nil)

	created, err := s.UnlockThread(context.Background(), 1, 1)
	if err != nil || !created {
		t.Fatalf("UnlockThread() = %v, %v, want created", created, err)
	}
	created, err = s.UnlockThread(context.Background(), 1, 1)
	if err != nil || created {
		t.Errorf("UnlockThread() repeat = %v, %v, want not created", created, err)
	}
}
