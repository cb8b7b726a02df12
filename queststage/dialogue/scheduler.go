package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"

	"github.com/queststage/queststage/queststage/database/models"
	"github.com/queststage/queststage/queststage/database/repositories"
	"github.com/queststage/queststage/queststage/notifier"
)

const (
	defaultTickInterval = time.Minute
	tickTimeout         = 45 * time.Second
	pushBodyRunes       = 400
)

// SchedulerConfig controls the background tick. An empty Cron runs the jobs
// on every tick; a cron expression gates them to matching minutes.
type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

// Scheduler drives the three background delivery jobs on a recurring
// timer: scheduled-message pushes, scheduled thread starts and chained
// transitions. Every job is idempotent through unique (message,team) /
// (thread,team) rows, so jobs may run concurrently with each other and
// with live traffic, and a crashed tick simply catches up on the next one.
//
// Deliveries and unlocks are recorded even when every push fails or the
// recipient set is empty: delivery is at-most-once per team regardless of
// dispatch outcome, so a push-channel outage loses that one push instead
// of retrying it.
type Scheduler struct {
	threads    repositories.ThreadRepository
	teams      repositories.TeamRepository
	unlocks    repositories.UnlockRepository
	dispatcher notifier.Dispatcher

	webappURL string
	interval  time.Duration
	cron      string
	gron      gronx.Gronx

	ticker   *time.Ticker
	shutdown chan struct{}

	// now is swapped in tests.
	now func() time.Time
}

func NewScheduler(
	threads repositories.ThreadRepository,
	teams repositories.TeamRepository,
	unlocks repositories.UnlockRepository,
	dispatcher notifier.Dispatcher,
	webappURL string,
	cfg SchedulerConfig,
) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Scheduler{
		threads:    threads,
		teams:      teams,
		unlocks:    unlocks,
		dispatcher: dispatcher,
		webappURL:  webappURL,
		interval:   interval,
		cron:       cfg.Cron,
		gron:       *gronx.New(),
		shutdown:   make(chan struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the background tick loop.
func (s *Scheduler) Start() {
	s.ticker = time.NewTicker(s.interval)
	go func() {
		defer s.ticker.Stop()
		for {
			select {
			case <-s.ticker.C:
				if s.cron != "" {
					if due, err := s.gron.IsDue(s.cron, s.now()); err != nil || !due {
						continue
					}
				}
				s.tick()
			case <-s.shutdown:
				return
			}
		}
	}()
	slog.Info("Dialogue scheduler started",
		slog.Duration("interval", s.interval),
		slog.String("cron", s.cron))
}

// Stop ends the tick loop. In-flight jobs run to completion; nothing here
// is cancellable mid-run by design.
func (s *Scheduler) Stop() {
	close(s.shutdown)
}

// tick runs the three jobs concurrently. Job errors are logged, never
// propagated: idempotency rows make a partial tick resumable.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	started := time.Now()
	var g errgroup.Group
	g.Go(func() error { return s.RunScheduledPushes(ctx) })
	g.Go(func() error { return s.RunThreadStarts(ctx) })
	g.Go(func() error { return s.RunTransitions(ctx) })
	if err := g.Wait(); err != nil {
		slog.Error("Dialogue scheduler tick failed",
			slog.String("error", err.Error()),
			slog.Duration("took", time.Since(started)))
		return
	}
	slog.Debug("Dialogue scheduler tick finished",
		slog.Duration("took", time.Since(started)))
}

// RunScheduledPushes pushes every elapsed scheduled message to every team
// that has no ScheduledDelivery row for it yet. The row is written per team
// whether or not anyone received the push.
func (s *Scheduler) RunScheduledPushes(ctx context.Context) error {
	msgs, err := s.threads.GetScheduledMessages(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled messages: %w", err)
	}
	now := s.now()

	for _, msg := range msgs {
		sched, ok := ParseGate(msg.Gate).(Scheduled)
		if !ok || now.Before(sched.At) {
			continue
		}

		thread, err := s.threads.GetByID(ctx, msg.EventID, msg.ThreadID)
		if err != nil {
			slog.Error("Scheduled message without thread",
				slog.Int64("message_id", msg.ID),
				slog.String("error", err.Error()))
			continue
		}
		teamIDs, err := s.teams.GetTeamIDsByEvent(ctx, msg.EventID)
		if err != nil {
			slog.Error("Failed to list teams for scheduled push",
				slog.Int64("event_id", msg.EventID),
				slog.String("error", err.Error()))
			continue
		}

		for _, teamID := range teamIDs {
			delivered, err := s.unlocks.HasDelivery(ctx, msg.ID, teamID)
			if err != nil || delivered {
				continue
			}

			players, err := s.teams.GetPlayersByAudience(ctx, teamID, msg.Audience)
			if err != nil {
				slog.Error("Failed to resolve push recipients",
					slog.Int64("team_id", teamID),
					slog.String("audience", msg.Audience),
					slog.String("error", err.Error()))
				players = nil
			}
			link := notifier.DeepLink(s.webappURL, thread.Key)
			for _, p := range players {
				s.dispatcher.Send(p.DiscordID, thread.DisplayTitle(), pushBody(msg), link)
			}

			if _, err := s.unlocks.EnsureDelivery(ctx, msg.ID, teamID); err != nil {
				slog.Error("Failed to record scheduled delivery",
					slog.Int64("message_id", msg.ID),
					slog.Int64("team_id", teamID),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// RunThreadStarts unlocks threads whose start config timestamp has elapsed
// for their target teams. This is the sole writer of schedule-driven
// unlocks.
func (s *Scheduler) RunThreadStarts(ctx context.Context) error {
	configs, err := s.unlocks.GetStartConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list start configs: %w", err)
	}
	now := s.now()

	for _, cfg := range configs {
		if cfg.StartAt == nil || now.Before(*cfg.StartAt) {
			continue
		}
		thread, err := s.threads.GetByID(ctx, cfg.EventID, cfg.ThreadID)
		if err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			slog.Error("Failed to load thread for start config",
				slog.Int64("thread_id", cfg.ThreadID),
				slog.String("error", err.Error()))
			continue
		}

		teamIDs, err := s.resolveTargetTeams(ctx, cfg)
		if err != nil {
			slog.Error("Failed to resolve start config targets",
				slog.Int64("config_id", cfg.ID),
				slog.String("error", err.Error()))
			continue
		}

		for _, teamID := range teamIDs {
			unlocked, err := s.unlocks.IsUnlocked(ctx, thread.ID, teamID)
			if err != nil || unlocked {
				continue
			}
			s.notifyUnlock(ctx, thread, teamID)
			if _, err := s.unlocks.EnsureUnlock(ctx, thread.ID, teamID); err != nil {
				slog.Error("Failed to record thread unlock",
					slog.Int64("thread_id", thread.ID),
					slog.Int64("team_id", teamID),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// RunTransitions converts due transition triggers into unlocks. A trigger
// whose team was unlocked through another path in the meantime is discarded
// without notifying; either branch deletes the trigger.
func (s *Scheduler) RunTransitions(ctx context.Context) error {
	triggers, err := s.unlocks.GetDueTriggers(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list due triggers: %w", err)
	}

	for _, trigger := range triggers {
		thread, err := s.threads.GetByID(ctx, trigger.EventID, trigger.TargetThreadID)
		if err != nil {
			if repositories.IsNotFound(err) {
				// Dangling target, the trigger can never fire.
				s.deleteTrigger(ctx, trigger.ID)
				continue
			}
			slog.Error("Failed to load transition target",
				slog.Int64("trigger_id", trigger.ID),
				slog.String("error", err.Error()))
			continue
		}

		unlocked, err := s.unlocks.IsUnlocked(ctx, thread.ID, trigger.TeamID)
		if err != nil {
			slog.Error("Failed to check transition unlock",
				slog.Int64("trigger_id", trigger.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !unlocked {
			s.notifyUnlock(ctx, thread, trigger.TeamID)
			if _, err := s.unlocks.EnsureUnlock(ctx, thread.ID, trigger.TeamID); err != nil {
				slog.Error("Failed to record transition unlock",
					slog.Int64("trigger_id", trigger.ID),
					slog.String("error", err.Error()))
				continue
			}
		}
		s.deleteTrigger(ctx, trigger.ID)
	}
	return nil
}

func (s *Scheduler) resolveTargetTeams(ctx context.Context, cfg *models.ThreadStartConfig) ([]int64, error) {
	switch cfg.TargetType {
	case models.StartTargetTeams:
		return cfg.TargetTeamIDs, nil
	case models.StartTargetGroup:
		if cfg.TargetGroupID == 0 {
			return nil, nil
		}
		return s.teams.GetGroupTeamIDs(ctx, cfg.EventID, cfg.TargetGroupID)
	default:
		return s.teams.GetTeamIDsByEvent(ctx, cfg.EventID)
	}
}

func (s *Scheduler) notifyUnlock(ctx context.Context, thread *models.DialogueThread, teamID int64) {
	players, err := s.teams.GetPlayers(ctx, teamID)
	if err != nil {
		slog.Error("Failed to list players for unlock push",
			slog.Int64("team_id", teamID),
			slog.String("error", err.Error()))
		return
	}
	link := notifier.DeepLink(s.webappURL, thread.Key)
	for _, p := range players {
		s.dispatcher.Send(p.DiscordID, "New dialogue unlocked", thread.DisplayTitle(), link)
	}
}

func (s *Scheduler) deleteTrigger(ctx context.Context, triggerID int64) {
	if err := s.unlocks.DeleteTrigger(ctx, triggerID); err != nil {
		slog.Error("Failed to delete transition trigger",
			slog.Int64("trigger_id", triggerID),
			slog.String("error", err.Error()))
	}
}

func pushBody(msg *models.DialogueMessage) string {
	body := truncate(msg.Payload.Text, pushBodyRunes)
	if msg.Payload.Character != "" {
		body = msg.Payload.Character + ": " + body
	}
	return body
}
