package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"

	"github.com/queststage/queststage/queststage"
	"github.com/queststage/queststage/queststage/database"
	"github.com/queststage/queststage/queststage/database/repositories"
	"github.com/queststage/queststage/queststage/dialogue"
	"github.com/queststage/queststage/queststage/logger"
	"github.com/queststage/queststage/queststage/notifier"
	"github.com/queststage/queststage/queststage/services"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting QuestStage delivery engine",
		slog.String("version", version),
		slog.String("commit", commit))

	dryRun := flag.Bool("dry-run", false, "Log pushes instead of sending them")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := queststage.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	defer db.Close()

	a := queststage.New(*cfg, version, commit)
	a.DB = db

	a.MediaService = services.NewMediaService(
		cfg.Spaces.Key,
		cfg.Spaces.Secret,
		cfg.Spaces.Region,
		cfg.Spaces.Bucket,
		cfg.Spaces.MediaRoot,
	)
	a.SearchService = services.NewSearchService()

	a.ThreadRepository = repositories.NewThreadRepository(db.BunDB())
	a.ReplyRepository = repositories.NewReplyRepository(db.BunDB())
	a.TeamRepository = repositories.NewTeamRepository(db.BunDB())
	a.UnlockRepository = repositories.NewUnlockRepository(db.BunDB())
	a.OverrideRepository = repositories.NewOverrideRepository(db.BunDB())

	a.Dialogue = dialogue.NewService(
		a.ThreadRepository,
		a.ReplyRepository,
		a.TeamRepository,
		a.UnlockRepository,
		a.OverrideRepository,
	)
	a.Authoring = dialogue.NewAuthoringService(db.BunDB(), a.ThreadRepository)

	if err = a.SetupBot(bot.NewListenerFunc(a.OnReady)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "bot_setup"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Client.Close(ctx)
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = a.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "gateway"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	if *dryRun {
		slog.Info("Dispatcher running in dry-run mode, pushes are logged only")
		a.Dispatcher = notifier.LogDispatcher{}
	} else {
		a.Dispatcher = notifier.NewDiscordDispatcher(a.Client)
	}

	a.Scheduler = dialogue.NewScheduler(
		a.ThreadRepository,
		a.TeamRepository,
		a.UnlockRepository,
		a.Dispatcher,
		cfg.WebApp.BaseURL,
		dialogue.SchedulerConfig{
			Interval: cfg.Scheduler.Interval(),
			Cron:     cfg.Scheduler.Cron,
		},
	)
	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	slog.Info("Delivery engine is running. Press CTRL-C to exit.",
		slog.Duration("tick_interval", cfg.Scheduler.Interval()))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down...")
}
