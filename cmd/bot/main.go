package main

import (
	"os"
	"os/signal"
	"syscall"

	"voicetimer/internal/config"
	"voicetimer/internal/database"
	"voicetimer/internal/discord"
	"voicetimer/internal/logging"
	"voicetimer/internal/rewards"
	"voicetimer/internal/scheduler"
	"voicetimer/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(cfg.LogLevel)

	// Initialize database
	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	repository := database.NewRepository(db)

	// Initialize Discord bot
	bot, err := discord.New(cfg, repository, logging.Component(log, "discord"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord bot")
	}

	// Wire the core: the bot implements the role, notification, guild
	// info, and reset interfaces the other packages consume.
	evaluator := rewards.NewEvaluator(repository, bot, bot, logging.Component(log, "rewards"))
	trk := tracker.New(repository, evaluator, bot, logging.Component(log, "tracker"))
	sched := scheduler.New(repository, bot, cfg.Location(), logging.Component(log, "scheduler"))
	bot.Bind(trk, sched)

	// Start bot
	if err := bot.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	defer bot.Stop()
	defer sched.Stop()

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info().Msg("shutting down")
}
