// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/subosito/gotenv"

	"github.com/edgard/cardbot/internal/bot"
	"github.com/edgard/cardbot/internal/bot/handlers"
	"github.com/edgard/cardbot/internal/bot/tasks"
	"github.com/edgard/cardbot/internal/brawlstars"
	"github.com/edgard/cardbot/internal/card"
	"github.com/edgard/cardbot/internal/config"
	"github.com/edgard/cardbot/internal/database"
	"github.com/edgard/cardbot/internal/httpserver"
	"github.com/edgard/cardbot/internal/logger"
	"github.com/edgard/cardbot/internal/render"
	"github.com/edgard/cardbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run builds every component, runs the bot until ctx is cancelled and
// returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.Parse()

	if err := gotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", *envFile, "error", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log, closeLog := logger.NewLogger(logger.Options{
		Level:      cfg.Logger.Level,
		JSON:       cfg.Logger.JSON,
		File:       cfg.Logger.File,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})
	defer func() { _ = closeLog() }()
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "file", cfg.Logger.File)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	sources := []render.Source{render.BuiltinSource{}, render.NewDirSource(log, cfg.Renderer.FontDirs...)}
	if cfg.Renderer.SystemFonts {
		sources = append(sources, render.SystemSource{})
	}
	fonts := render.NewFontCache(log, sources...)
	renderer := render.New(fonts, cfg.Renderer.RenderOptions(), log)

	players := brawlstars.NewClient(cfg.BrawlStars.ClientConfig(), &http.Client{}, log)
	cards := card.NewBuilder(renderer, cfg.Card.Style())

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Renderer: renderer,
		Players:  players,
		Cards:    cards,
		Fonts:    fonts,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Fonts:  fonts,
		Config: cfg,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewPlayerHandler(hDeps)),
	}
	if cfg.Telegram.WebhookSecret != "" {
		botOpts = append(botOpts, tgbot.WithWebhookSecretToken(cfg.Telegram.WebhookSecret))
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.SetCommands(ctx, tg, log, cmdHandlers); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	srvOpts := httpserver.Options{Health: store.Ping}
	if cfg.Telegram.WebhookEnabled() {
		srvOpts.WebhookPath = cfg.Telegram.WebhookPath
		srvOpts.Webhook = tg.WebhookHandler()
	}
	srv := httpserver.New(log, cfg.HTTP.ListenAddr, cfg.HTTP.ShutdownTimeout, srvOpts)

	app := bot.NewBot(log, cfg, tg, sched, srv)

	log.Info("Starting bot")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully")
	return 0
}
