package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/handsomefox/kinochat/internal/filter"
	"github.com/handsomefox/kinochat/internal/format"
	"github.com/handsomefox/kinochat/internal/kinopoisk"
	"github.com/handsomefox/kinochat/internal/logger"
)

const (
	msgFilmsNotFound = "Фильмы не найдены 😢"
	msgRandomMissing = "Не удалось найти фильм 😢"
	msgFilmNotFound  = "Фильм не найден 😢"
	msgFormatFailed  = "Ошибка при форматировании фильма 😢"
	msgUnknown       = "Неизвестная команда 😢"

	// BulkAttempts is how many random fetches /films makes.
	BulkAttempts = 3
)

var filmPrefixes = []string{"film", "filmr", "films"}

// ErrNotFound means a bulk fetch produced nothing to show.
var ErrNotFound = errors.New("bot: no movies found")

// RandomSource is the part of MovieSource CollectDistinct needs.
type RandomSource interface {
	Random(ctx context.Context, s filter.Set) (*kinopoisk.Movie, error)
}

// CollectDistinct makes up to attempts random fetches for s and keeps the
// movies with distinct non-zero ids, in fetch order. A quota error aborts
// with kinopoisk.ErrQuotaExceeded. A failed first attempt ends the search
// with ErrNotFound; later failures only consume their attempt.
func CollectDistinct(ctx context.Context, src RandomSource, s filter.Set, attempts int) ([]kinopoisk.Movie, error) {
	seen := make(map[int64]struct{}, attempts)
	out := make([]kinopoisk.Movie, 0, attempts)

	for attempt := range attempts {
		m, err := src.Random(ctx, s)
		if errors.Is(err, kinopoisk.ErrQuotaExceeded) {
			return nil, err
		}
		if err != nil || m == nil {
			if attempt == 0 {
				if err == nil {
					return nil, ErrNotFound
				}
				return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			continue
		}
		if m.ID == 0 {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, *m)
	}

	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (a *App) handleFilmCommand(ctx context.Context, m *tgbotapi.Message) {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 {
		return
	}
	cmd := strings.TrimPrefix(a.trimBotSuffix(fields[0]), "/")

	switch cmd {
	case "films":
		a.handleFilms(ctx, m)
	case "filmr":
		a.handleFilmRandom(ctx, m)
	case "film":
		a.handleFilmTitle(ctx, m)
	default:
		text := msgUnknown
		if s, ok := Suggest(strings.ToLower(cmd)); ok {
			text += " Возможно Вы имели ввиду /" + s + "?"
		}
		_, _ = a.reply(m, text)
	}
}

func (a *App) classify(m *tgbotapi.Message) filter.Set {
	return filter.Classify(m.Text, filmPrefixes, a.botUsername, a.now())
}

func (a *App) handleFilms(ctx context.Context, m *tgbotapi.Message) {
	set := a.classify(m)
	log := a.log.With(slog.String("command", "films"), slog.String("url", a.movies.RandomURL(set)))

	movies, err := CollectDistinct(ctx, a.movies, set, BulkAttempts)
	switch {
	case errors.Is(err, kinopoisk.ErrQuotaExceeded):
		_, _ = a.reply(m, kinopoisk.QuotaMessage)
		return
	case err != nil:
		log.Info("films: nothing found", logger.Error(err))
		_, _ = a.reply(m, msgFilmsNotFound)
		return
	}

	msg, err := format.Many(movies)
	if err != nil {
		log.Error("films: format", logger.Error(err))
		_, _ = a.reply(m, msgFilmsNotFound)
		return
	}
	a.replyMovie(m, msg)
}

func (a *App) handleFilmRandom(ctx context.Context, m *tgbotapi.Message) {
	set := a.classify(m)
	log := a.log.With(slog.String("command", "filmr"), slog.String("url", a.movies.RandomURL(set)))

	movie, err := a.movies.Random(ctx, set)
	switch {
	case errors.Is(err, kinopoisk.ErrQuotaExceeded):
		_, _ = a.reply(m, kinopoisk.QuotaMessage)
		return
	case err != nil || movie == nil:
		_, _ = a.reply(m, msgRandomMissing)
		return
	}

	msg, err := format.One(movie)
	if err != nil {
		log.Error("filmr: format", logger.Error(err))
		_, _ = a.reply(m, msgFormatFailed)
		return
	}
	a.replyMovie(m, msg)
}

func (a *App) handleFilmTitle(ctx context.Context, m *tgbotapi.Message) {
	query := strings.TrimSpace(filter.StripCommand(m.Text, []string{"film"}, a.botUsername))
	log := a.log.With(slog.String("command", "film"), slog.String("url", a.movies.SearchURL(query)))
	if query == "" {
		_, _ = a.reply(m, msgFilmNotFound)
		return
	}

	res, err := a.movies.Search(ctx, query)
	switch {
	case errors.Is(err, kinopoisk.ErrQuotaExceeded):
		_, _ = a.reply(m, kinopoisk.QuotaMessage)
		return
	case err != nil || res == nil || res.Total == 0 || len(res.Docs) == 0:
		_, _ = a.reply(m, msgFilmNotFound)
		return
	}

	msg, err := format.One(&res.Docs[0])
	if err != nil {
		log.Error("film: format", logger.Error(err))
		_, _ = a.reply(m, msgFormatFailed)
		return
	}
	a.replyMovie(m, msg)
}

func (a *App) replyMovie(m *tgbotapi.Message, msg format.Message) {
	out := replyConfig(m, msg.Text)
	out.ParseMode = tgbotapi.ModeMarkdown
	if len(msg.Keyboard) > 0 {
		out.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	}
	_, _ = a.send(out)
}

func inlineKeyboard(kb format.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
