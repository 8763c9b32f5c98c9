// Package handlers serves the bot's HTTP surface: the Telegram webhook, a
// health check and the read-only filter vocabulary.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/handsomefox/kinochat/internal/bot"
	"github.com/handsomefox/kinochat/internal/logger"
	"github.com/handsomefox/kinochat/internal/vocab"
)

const (
	WebhookPath = "/telegram/webhook"

	maxUpdateBytes = 2 << 20
	pingTimeout    = 2 * time.Second
)

// Dispatcher accepts updates delivered by webhook.
type Dispatcher interface {
	Dispatch(ctx context.Context, upd tgbotapi.Update) error
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	dispatcher  Dispatcher
	db          Pinger
	secret      string
	botUsername string
	logger      *slog.Logger
}

type Config struct {
	// Dispatcher is nil in polling mode; the webhook route is not mounted then.
	Dispatcher  Dispatcher
	DB          Pinger
	Secret      string
	BotUsername string
	Logger      *slog.Logger
}

func New(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Dispatcher == nil && cfg.Secret != "" {
		return nil, errors.New("webhook secret set without a dispatcher")
	}
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		dispatcher:  cfg.Dispatcher,
		db:          cfg.DB,
		secret:      cfg.Secret,
		botUsername: cfg.BotUsername,
		logger:      l,
	}, nil
}

// Router returns the full HTTP handler with request logging.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(h.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaECS,
		RecoverPanics: true,
	}))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/healthz", Adapt(h.getHealth))

	r.Route("/api/vocabulary", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
		r.Method(http.MethodGet, "/genres", Adapt(h.getGenres))
		r.Method(http.MethodGet, "/countries", Adapt(h.getCountries))
		r.Method(http.MethodGet, "/media-types", Adapt(h.getMediaTypes))
	})

	if h.dispatcher != nil {
		r.Group(func(r chi.Router) {
			r.Use(h.MiddlewareRequireSecret)
			r.Method(http.MethodPost, WebhookPath, Adapt(h.postWebhook))
		})
	}
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) error {
	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "Health check failed", logger.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue(status),
		"bot":    structpb.NewStringValue(h.botUsername),
	}})
	return nil
}

func (h *Handler) getGenres(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, items(stringList(sortedRu(vocab.Genres()))))
	return nil
}

func (h *Handler) getCountries(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, items(stringList(sortedRu(vocab.Countries()))))
	return nil
}

func (h *Handler) getMediaTypes(w http.ResponseWriter, r *http.Request) error {
	types := vocab.MediaTypes()
	c := collate.New(language.Russian)
	slices.SortFunc(types, func(a, b vocab.MediaType) int {
		return c.CompareString(a.Label(), b.Label())
	})

	values := make([]*structpb.Value, 0, len(types))
	for _, mt := range types {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"code":  structpb.NewStringValue(string(mt)),
			"label": structpb.NewStringValue(mt.Label()),
		}}))
	}
	writeJSON(w, http.StatusOK, items(structpb.NewListValue(&structpb.ListValue{Values: values})))
	return nil
}

func (h *Handler) postWebhook(w http.ResponseWriter, r *http.Request) error {
	var upd tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		return badRequest("malformed update")
	}

	if err := h.dispatcher.Dispatch(r.Context(), upd); err != nil {
		if errors.Is(err, bot.ErrStopped) {
			return unavailable("bot is shutting down")
		}
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// sortedRu sorts in Russian alphabetical order, which keeps "ё" next to "е".
func sortedRu(list []string) []string {
	collate.New(language.Russian).SortStrings(list)
	return list
}

func items(v *structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"items": v}}
}
