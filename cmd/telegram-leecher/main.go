package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/api"
	tlbot "github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	tlconfig "github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/database"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/factory"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/manager"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/handlers"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/metrics"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/postprocess"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ratelimit"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/shutdown"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/task"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/upload"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	shutdownTimeout = 30 * time.Second
	commandBurst    = 20
	commandRefill   = 3 * time.Second
	metricsInterval = time.Minute
)

func main() {
	tlconfig.LoadDotEnv()
	config, err := tlconfig.NewConfig()
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize configuration")
	}

	logutils.InitLogger(config.LogLevel)
	logutils.Log.WithFields(map[string]any{
		"version":    Version,
		"build_time": BuildTime,
	}).Info("Starting Telegram Leecher")

	db, err := database.NewDatabase(config)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize the database")
	}

	botInstance, err := tlbot.NewBot(config.BotToken, config.Services.TelegramAPIEndpoint)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Bot initialization failed")
	}

	exec := process.NewOSProcessExecutor()
	pipeline := postprocess.New(exec, config.UploadSettings)
	uploader := upload.New(botInstance, pipeline, exec, config.UploadSettings, config.UploadChat())
	downloads := manager.New(factory.NewEngines(config, exec, botInstance))
	collector := metrics.NewInMemoryMetrics()
	scheduler := task.New(config, botInstance, downloads, pipeline, uploader, db).WithMetrics(collector)
	logutils.Log.Info("Task scheduler initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory.RunUpdatersOnStart(ctx, config, exec)
	factory.StartPeriodicUpdaters(ctx, config, exec)
	go metrics.StartPeriodicCollection(ctx, collector, metricsInterval)

	// Stopping the update loop first cancels the running task; the scheduler
	// then waits for its report before the database closes.
	shutdownManager := shutdown.NewManager(shutdownTimeout)
	shutdownManager.Register(shutdown.NewCloser("telegram_updates", func() error {
		cancel()
		botInstance.Api.StopReceivingUpdates()
		return nil
	}))
	shutdownManager.Register(scheduler)

	if config.APIListen != "" {
		server := api.NewServer(scheduler, db, config.APIListen, config.APIKey).WithMetrics(collector)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logutils.Log.WithError(err).Error("API server stopped")
			}
		}()
		shutdownManager.Register(server)
	}
	shutdownManager.Register(shutdown.NewCloser("database", db.Close))

	h := handlers.New(botInstance, config, scheduler, db, direct.NewFetcher(),
		ratelimit.NewTokenBucketLimiter(commandBurst, commandRefill))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botInstance.GetUpdatesChan(u)
	go h.Run(ctx, updates)

	logutils.Log.Info("Telegram Leecher started successfully")

	if err := shutdownManager.WaitForShutdown(context.Background()); err != nil {
		logutils.Log.WithError(err).Error("Shutdown finished with errors")
	}
	logutils.Log.Info("Telegram Leecher shutdown complete")
}
