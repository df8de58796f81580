package main

import (
	"context"
	"os/signal"
	"syscall"

	"giveaway-bot/internal/common/config"
	"giveaway-bot/internal/common/logger"
	"giveaway-bot/internal/features/giveaway/repository/postgres"
	redisrepo "giveaway-bot/internal/features/giveaway/repository/redis"
	"giveaway-bot/internal/features/giveaway/service"
	userpostgres "giveaway-bot/internal/features/user/repository/postgres"
	pgplatform "giveaway-bot/internal/platform/postgres"
	redisplatform "giveaway-bot/internal/platform/redis"
	tgplatform "giveaway-bot/internal/platform/telegram"
	tgtransport "giveaway-bot/internal/transport/telegram"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"
)

func main() {
	// Cancellable root context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init("giveaway-bot", cfg.Debug)

	pg, err := pgplatform.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	defer pg.Close()

	rdb, err := redisplatform.Open(ctx, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer rdb.Close()

	giveawayRepo := postgres.NewPostgresRepository(pg.GetDB())
	userRepo := userpostgres.NewPostgresRepository(pg.GetDB())
	participants := redisrepo.NewParticipantStore(rdb.Client)
	captchas := redisrepo.NewCaptchaStore(rdb.Client)

	var handler *tgtransport.Handler
	b, err := bot.New(cfg.Telegram.BotToken, bot.WithDefaultHandler(
		func(ctx context.Context, b *bot.Bot, update *botmodels.Update) {
			handler.HandleUpdate(ctx, b, update)
		},
	))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create bot")
	}

	messenger, err := tgplatform.NewClient(ctx, b)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telegram client")
	}

	alerts := service.NewOperatorAlerts(messenger, cfg.Telegram.LogsChannelID)
	verifier := service.NewVerifier(messenger, alerts)
	engine := service.NewEngine(
		giveawayRepo, participants, messenger, verifier, alerts, userRepo,
		cfg.Scheduler.SendDelay, cfg.Giveaway.ParticipantsTTL,
	)
	joinService := service.NewJoinService(
		engine, participants, captchas, verifier, messenger,
		cfg.Giveaway.CaptchaTTL, cfg.Giveaway.CaptchaAttempts,
	)

	handler = tgtransport.NewHandler(engine, joinService, userRepo, cfg.Telegram.AdminIDs)
	handler.RegisterCommands(b)

	scheduler := service.NewScheduler(engine, giveawayRepo, cfg.Scheduler.PollInterval)
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info().Msg("Bot started")
	b.Start(ctx)
	logger.Info().Msg("Bot stopped")
}
