package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/handsomefox/kinochat/internal/bot"
	"github.com/handsomefox/kinochat/internal/config"
	"github.com/handsomefox/kinochat/internal/handlers"
	"github.com/handsomefox/kinochat/internal/kinopoisk"
	"github.com/handsomefox/kinochat/internal/logger"
	"github.com/handsomefox/kinochat/internal/store"
	"github.com/handsomefox/kinochat/internal/tenor"

	_ "github.com/joho/godotenv/autoload"
)

const (
	pollTimeout     = 60
	shutdownTimeout = 10 * time.Second
)

func main() {
	slog.SetDefault(logger.New(slog.LevelInfo, os.Stderr))
	if err := run(); err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out, logFile, err := logger.Output(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := logger.New(cfg.LogLevel, out)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath, cfg.LegacyGroupID)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("Failed to close DB", logger.Error(err))
		}
	}()

	if err := tgbotapi.SetLogger(logger.BotLogger{Logger: log}); err != nil {
		return fmt.Errorf("failed to set telegram logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}
	username := cfg.BotUsername
	if username == "" {
		username = "@" + api.Self.UserName
	}
	log.Info("Authorized", slog.String("bot", username))

	botCfg := bot.Config{
		Sender: api,
		Movies: kinopoisk.New(cfg.KinopoiskToken,
			kinopoisk.WithBaseURL(cfg.KinopoiskURL),
			kinopoisk.WithLogger(log),
		),
		Directory:   st,
		Logger:      log,
		BotUsername: username,
		IsAdmin:     cfg.IsAdmin,
		Workers:     cfg.Workers,
	}
	if cfg.TenorKey != "" {
		botCfg.GIFs = tenor.New(cfg.TenorKey, tenor.WithLogger(log))
	} else {
		log.Warn("TENOR_API_KEY is not set, /gif is disabled")
	}
	app, err := bot.New(botCfg)
	if err != nil {
		return fmt.Errorf("failed to init bot: %w", err)
	}

	var (
		updates tgbotapi.UpdatesChannel
		hcfg    = &handlers.Config{DB: st, BotUsername: username, Logger: log}
	)
	if cfg.Webhook() {
		if err := setWebhook(api, cfg); err != nil {
			return err
		}
		hcfg.Dispatcher, hcfg.Secret = app, cfg.WebhookSecret
		log.Info("Receiving updates by webhook", slog.String("url", webhookURL(cfg)))
	} else {
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return fmt.Errorf("failed to delete webhook: %w", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = pollTimeout
		updates = api.GetUpdatesChan(u)
		log.Info("Receiving updates by long polling")
	}

	h, err := handlers.New(hcfg)
	if err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(gctx, updates)
	})
	g.Go(func() error {
		log.Info("Listening", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if updates != nil {
			api.StopReceivingUpdates()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("Stopped")
	return err
}

func webhookURL(cfg *config.Config) string {
	return strings.TrimSuffix(cfg.WebhookURL, "/") + handlers.WebhookPath
}

// setWebhook registers the webhook together with its secret token, which the
// library's WebhookConfig has no field for.
func setWebhook(api *tgbotapi.BotAPI, cfg *config.Config) error {
	params := tgbotapi.Params{"url": webhookURL(cfg)}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)
	params.AddNonEmpty("allowed_updates", `["message","callback_query"]`)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}
