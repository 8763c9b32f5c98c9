// Package bot routes Telegram updates to the movie, directory and utility
// commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/handsomefox/kinochat/internal/filter"
	"github.com/handsomefox/kinochat/internal/kinopoisk"
	"github.com/handsomefox/kinochat/internal/logger"
	"github.com/handsomefox/kinochat/internal/store"
)

//go:generate mockgen -destination=mocks/sender.go -package=mocks . Sender

// Sender is the part of *tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// MovieSource fetches movie records.
type MovieSource interface {
	Random(ctx context.Context, s filter.Set) (*kinopoisk.Movie, error)
	Search(ctx context.Context, query string) (*kinopoisk.SearchResult, error)
	RandomURL(s filter.Set) string
	SearchURL(query string) string
}

type GIFSource interface {
	Random(ctx context.Context, query string) (string, error)
}

// Directory is the per-group user store.
type Directory interface {
	AddUserIfAbsent(ctx context.Context, userID, groupID int64, username string) (bool, error)
	DisplayName(ctx context.Context, userID, groupID int64) (string, error)
	ListUsers(ctx context.Context, f store.ListFilter) ([]store.User, error)
	SetWatching(ctx context.Context, userID, groupID int64, watching bool) error
	SetCustomName(ctx context.Context, userID, groupID int64, name *string) error
	CustomName(ctx context.Context, userID, groupID int64) (string, error)
	DeleteUser(ctx context.Context, userID, groupID int64) error
}

const (
	defaultWorkers  = 16
	defaultReplyTTL = 15 * time.Second
	defaultHelpTTL  = 30 * time.Second
	queueSize       = 64
)

var ErrStopped = errors.New("bot: not accepting updates")

type Config struct {
	Sender    Sender
	Movies    MovieSource
	GIFs      GIFSource // optional
	Directory Directory
	Logger    *slog.Logger

	// BotUsername is the "@name" mention accepted after commands.
	BotUsername string
	// IsAdmin gates admin commands; nil means nobody is an admin.
	IsAdmin     func(userID int64) bool
	Workers     int

	// ReplyTTL and HelpTTL control how long service replies stay in the chat.
	ReplyTTL time.Duration
	HelpTTL  time.Duration

	Now  func() time.Time
	Rand func(n int) int
}

type App struct {
	sender    Sender
	movies    MovieSource
	gifs      GIFSource
	directory Directory
	log       *slog.Logger

	botUsername string
	admin       func(userID int64) bool
	workers     int
	replyTTL    time.Duration
	helpTTL     time.Duration
	now         func() time.Time
	rand        func(n int) int

	names *regexp.Regexp
	sched *Scheduler
	queue chan tgbotapi.Update
	done  chan struct{}
}

func New(cfg Config) (*App, error) {
	if cfg.Sender == nil {
		return nil, errors.New("sender is required")
	}
	if cfg.Movies == nil {
		return nil, errors.New("movie source is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("directory is required")
	}

	a := &App{
		sender:      cfg.Sender,
		movies:      cfg.Movies,
		gifs:        cfg.GIFs,
		directory:   cfg.Directory,
		log:         cfg.Logger,
		botUsername: cfg.BotUsername,
		admin:       cfg.IsAdmin,
		workers:     cfg.Workers,
		replyTTL:    cfg.ReplyTTL,
		helpTTL:     cfg.HelpTTL,
		now:         cfg.Now,
		rand:        cfg.Rand,
		queue:       make(chan tgbotapi.Update, queueSize),
		done:        make(chan struct{}),
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.workers < 1 {
		a.workers = defaultWorkers
	}
	if a.replyTTL <= 0 {
		a.replyTTL = defaultReplyTTL
	}
	if a.helpTTL <= 0 {
		a.helpTTL = defaultHelpTTL
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.rand == nil {
		a.rand = rand.IntN
	}
	a.names = namesPattern(a.botUsername)
	a.sched = NewScheduler(a.deleteMessage)
	return a, nil
}

// Scheduler exposes the auto-delete queue.
func (a *App) Scheduler() *Scheduler { return a.sched }

// Dispatch queues an update received outside of Run's channel, e.g. from the
// webhook.
func (a *App) Dispatch(ctx context.Context, upd tgbotapi.Update) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.queue <- upd:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles updates from updates (nil in webhook mode) and from Dispatch
// until ctx is canceled, with at most Workers updates in flight. An update
// still waiting for a free worker when ctx is canceled is dropped. Pending
// auto-deletions are canceled on return.
func (a *App) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer a.sched.Stop()
	defer close(a.done)

	var g errgroup.Group
	slots := make(chan struct{}, a.workers)

	a.log.Info("bot: handling updates", slog.Int("workers", a.workers), slog.String("bot", a.botUsername))
	for {
		var upd tgbotapi.Update
		var ok bool
		select {
		case <-ctx.Done():
			a.log.Info("bot: stopping, waiting for handlers")
			return g.Wait()
		case upd, ok = <-updates:
			if !ok {
				a.log.Info("bot: updates channel closed")
				updates = nil
				continue
			}
		case upd = <-a.queue:
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			a.log.Warn("bot: stopping, dropped update", slog.Int("update_id", upd.UpdateID))
			return g.Wait()
		}
		g.Go(func() error {
			defer func() { <-slots }()
			// Handlers get a fresh context so replies in flight still go out.
			a.HandleUpdate(context.WithoutCancel(ctx), upd)
			return nil
		})
	}
}

// HandleUpdate processes one update synchronously. Panics are logged, never
// propagated.
func (a *App) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("bot: handler panic",
				slog.Int("update_id", upd.UpdateID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		a.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		a.handleMessage(ctx, upd.Message)
	}
}

func (a *App) isAdmin(userID int64) bool {
	return a.admin != nil && a.admin(userID)
}

// send delivers c and logs failures.
func (a *App) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sent, err := a.sender.Send(c)
	if err != nil {
		a.log.Error("telegram: send failed", logger.Error(err))
	}
	return sent, err
}

func (a *App) reply(m *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	return a.send(replyConfig(m, text))
}

func (a *App) replyMarkdown(m *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	msg := replyConfig(m, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return a.send(msg)
}

// replyAndExpire replies and removes both the reply and m after the reply TTL.
func (a *App) replyAndExpire(m *tgbotapi.Message, text string) {
	sent, err := a.reply(m, text)
	if err != nil {
		return
	}
	a.sched.Schedule(m.Chat.ID, sent.MessageID, a.replyTTL)
	a.sched.Schedule(m.Chat.ID, m.MessageID, a.replyTTL)
}

func (a *App) deleteMessage(chatID int64, messageID int) {
	if _, err := a.sender.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		a.log.Debug("telegram: delete message",
			slog.Int64("chat_id", chatID),
			slog.Int("message_id", messageID),
			logger.Error(err))
	}
}

func replyConfig(m *tgbotapi.Message, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ReplyToMessageID = m.MessageID
	return msg
}
