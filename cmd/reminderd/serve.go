package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gopkg.in/telebot.v3"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/infra/config"
	"peakflow_reminder/internal/infra/database"
	"peakflow_reminder/internal/infra/logger"
	"peakflow_reminder/internal/infra/push"
	"peakflow_reminder/internal/infra/telegram"
)

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Get().WithField("component", "main")
	mainLogger.WithFields(logrus.Fields{
		"store":       cfg.StoreDriver,
		"notify":      cfg.NotifyBackend,
		"environment": cfg.Environment,
		"timezone":    cfg.Location().String(),
	}).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not open reminder store: %w", err)
	}
	defer store.Close()
	mainLogger.Info("Reminder store opened")

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = newBot(cfg, mainLogger)
		if err != nil {
			return fmt.Errorf("could not create Telegram bot: %w", err)
		}
	}

	presenter, err := newPresenter(ctx, cfg, bot, logger.Get().WithField("app", "reminderd"))
	if err != nil {
		return err
	}

	rc := newCore(cfg, store, presenter, logger.Get().WithField("app", "reminderd"))
	outcomes, err := rc.start(ctx)
	if err != nil {
		mainLogger.WithError(err).Error("Boot re-arm failed; reminders are armed again on the next save")
	}
	mainLogger.WithField("rearmed", len(outcomes)).Info("Wake-up timers running")

	if bot != nil {
		botLogger := logger.Get().WithField("component", "telegram_bot")
		telegram.RegisterBotCommands(ctx, bot, rc.service, botLogger)
		telegram.RegisterReminderHandlers(ctx, bot, rc.service, cfg.Location, botLogger)
		go bot.Start()
		mainLogger.Info("Telegram bot started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down...")
	if bot != nil {
		bot.Stop()
	}
	cancel()
	rc.stop()
	mainLogger.Info("Shut down gracefully")
	return nil
}

func newBot(cfg *config.AppConfig, log *logrus.Entry) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := log.WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	return telebot.NewBot(pref)
}

func newPresenter(ctx context.Context, cfg *config.AppConfig, bot *telebot.Bot, log *logrus.Entry) (notification.Presenter, error) {
	switch cfg.NotifyBackend {
	case config.NotifyTelegram:
		return telegram.NewPresenter(telegram.NewTelebotAdapter(bot), cfg.DefaultChatID, log), nil
	case config.NotifyFCM:
		client, err := push.NewFCMClient(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return nil, err
		}
		return push.NewFCMPresenter(client, log), nil
	default:
		return logger.NewPresenter(log), nil
	}
}
