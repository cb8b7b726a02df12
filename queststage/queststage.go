package queststage

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"

	"github.com/queststage/queststage/queststage/database"
	"github.com/queststage/queststage/queststage/database/repositories"
	"github.com/queststage/queststage/queststage/dialogue"
	"github.com/queststage/queststage/queststage/notifier"
	"github.com/queststage/queststage/queststage/services"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

type App struct {
	Cfg                Config
	Client             bot.Client
	Version            string
	Commit             string
	DB                 *database.DB
	ThreadRepository   repositories.ThreadRepository
	ReplyRepository    repositories.ReplyRepository
	TeamRepository     repositories.TeamRepository
	UnlockRepository   repositories.UnlockRepository
	OverrideRepository repositories.OverrideRepository
	Dialogue           *dialogue.Service
	Authoring          *dialogue.AuthoringService
	Scheduler          *dialogue.Scheduler
	Dispatcher         notifier.Dispatcher
	MediaService       *services.MediaService
	SearchService      *services.SearchService
}

func (a *App) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(a.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds, gateway.IntentDirectMessages)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	a.Client = client
	return nil
}

func (a *App) OnReady(_ *events.Ready) {
	slog.Info("QuestStage is now ready",
		slog.String("version", a.Version),
		slog.String("commit", a.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the hunt unfold"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
