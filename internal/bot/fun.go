package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/handsomefox/kinochat/internal/filter"
	"github.com/handsomefox/kinochat/internal/logger"
	"github.com/handsomefox/kinochat/internal/vocab"
)

const (
	minPollOptions = 2
	maxPollOptions = 10
)

var (
	coinSides    = []string{"Орёл", "Решка"}
	girls        = []string{"Даши", "Саши", "Крис"}
	girlEmojis   = []string{"😊", "😍", "😘", "❤️", "😜"}
	pollPrefixes = []string{"poll", "vote"}
)

func (a *App) pick(options []string) string {
	return options[a.rand(len(options))]
}

func (a *App) handleCoin(ctx context.Context, m *tgbotapi.Message) {
	cmd := a.trimBotSuffix(strings.Fields(m.Text)[0])

	var text string
	markdown := false
	switch cmd {
	case "/coingirl", "/randomgirl":
		text = fmt.Sprintf("Ой, кто-то из чата отправил %s для %s", a.pick(girlEmojis), a.pick(girls))
	case "/coin":
		name, err := a.directory.DisplayName(ctx, senderID(m), m.Chat.ID)
		if err != nil {
			a.log.Error("coin: display name", logger.Error(err))
			name = senderHandle(m)
		}
		text = fmt.Sprintf("[%s](tg://user?id=%d) подбросил монетку, поймал... и там %s", name, senderID(m), a.pick(coinSides))
		markdown = true
	default:
		text = "Возможно Вы имели ввиду /coin или /coingirl?"
	}

	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, _ = a.send(msg)
	a.deleteMessage(m.Chat.ID, m.MessageID)
}

// PollOptions splits comma separated options, dropping blanks and
// case-insensitive duplicates. A duplicate keeps the position of its first
// occurrence and the spelling of its last.
func PollOptions(args string) []string {
	var keys []string
	byKey := map[string]string{}
	for _, opt := range strings.Split(args, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key := strings.ToLower(opt)
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = opt
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out
}

func (a *App) handlePoll(m *tgbotapi.Message) {
	options := PollOptions(filter.StripCommand(m.Text, pollPrefixes, a.botUsername))
	who := senderHandle(m)

	switch {
	case len(options) < minPollOptions:
		_, _ = a.send(tgbotapi.NewMessage(m.Chat.ID, who+", Вам необходимо указать хотя бы два варианта для голосования"))
	case len(options) > maxPollOptions:
		_, _ = a.send(tgbotapi.NewMessage(m.Chat.ID, who+", Вы можете добавить не более 10 вариантов в голосовании"))
	default:
		poll := tgbotapi.NewPoll(m.Chat.ID, `"`+who+`" предлагает проголосовать:`, options...)
		poll.IsAnonymous = false
		poll.Type = "regular"
		_, _ = a.send(poll)
	}
	a.sched.Schedule(m.Chat.ID, m.MessageID, a.replyTTL)
}

func (a *App) handleGIF(ctx context.Context, m *tgbotapi.Message) {
	query := ""
	if _, after, ok := strings.Cut(m.Text, " "); ok {
		query = strings.TrimSpace(after)
	}
	if query == "" {
		_, _ = a.reply(m, "Пожалуйста, укажите запрос. Например:\n/gif cat")
		return
	}
	if a.gifs == nil {
		a.log.Warn("gif: search is not configured")
		_, _ = a.reply(m, "Произошла ошибка при обработке запроса.")
		return
	}

	gifURL, err := a.gifs.Random(ctx, query)
	if err != nil {
		a.log.Error("gif: search", slog.String("query", query), logger.Error(err))
		_, _ = a.reply(m, "Произошла ошибка при обработке запроса.")
		return
	}
	anim := tgbotapi.NewAnimation(m.Chat.ID, tgbotapi.FileURL(gifURL))
	anim.ReplyToMessageID = m.MessageID
	_, _ = a.send(anim)
}

const filmGuide = "*Гайд по использованию команд:*\n\n" +
	"/film название - Получить информацию о фильме по конкретному запросу.\n" +
	"Используйте команду с названием фильма. Пример:\n" +
	"`/film Шерлок Холмс`\n\n" +
	"/filmr - Получить информацию о случайном фильме по расширенному запросу.\n" +
	"Используйте команду с необязательными фильтрами (жанр, страна, год, рейтинг). Пример:\n" +
	"`/filmr 2-5 2009-2020 +фантастика -драма Россия фильм`\n" +
	"`/filmr 5 2020 +фантастика +ужасы -драма США -Россия мультфильм`\n\n" +
	"/films - Получить информацию о нескольких (до 3) случайных фильмах по расширенному запросу.\n" +
	"Используйте команду с необязательными фильтрами (жанр, страна, год, рейтинг). Пример:\n" +
	"`/films 2-5 2009-2020 +фантастика -драма Россия фильм`\n" +
	"`/films 5 2020 +фантастика +ужасы -драма США -Россия мультфильм`\n\n" +
	"*Подсказки:*\n" +
	"- Используйте `+` для включения жанра или страны.\n" +
	"- Используйте `-` для исключения жанра или страны.\n" +
	"- Указывайте год в формате `YYYY` или диапазон `YYYY-YYYY`.\n" +
	"- Рейтинг можно указать как число `от 1 до 10` или диапазон, например `1-5`. " +
	"Если указано одно число `N`, то рейтинг будет выставлен `от N до 10`"

const commandHelp = "/everyone или @all - Уведомить всех участников\n" +
	"/vote или /poll <варианты через запятую> - Создать голосование от 2 до 10 вариантов\n" +
	"/film <название фильма> - Поиск фильма по названию\n" +
	"/filmr <рейтинг, год, жанр, тип> - Поиск случайного фильма\n" +
	"/films <рейтинг, год, жанр, тип> - Поиск до 3 случайных фильмов\n" +
	"/setname <имя> - Установить кастомное имя\n" +
	"/removename - Удалить кастомное имя\n" +
	"/myname - Показать кастомное имя\n" +
	"/watching <название фильма> - Позвать на просмотр фильма\n" +
	"/watch - Включить оповещения о начале фильма\n" +
	"/unwatch - Отключить оповещения о начале фильма\n" +
	"/coin - Подбросить монетку (Орёл, Решка)\n" +
	"/coingirl или /randomgirl - Подбросить девушку 😂 шучу или нет 🤔\n" +
	"/gif <название> - Отправить случайную гифку по названию\n\n" +
	"/help - Помощь по всем командам\n" +
	"/help_film - Помощь по командам film\n" +
	"/help_film_genres - Показать доступные жанры для команд film\n" +
	"/help_film_countries - Показать доступные страны для команд film\n"

// FilmHelp returns the help text for a /help_film* command.
func FilmHelp(text string) string {
	switch {
	case strings.Contains(text, "/help_film_countries"):
		countries := vocab.Countries()
		slices.Sort(countries)
		return "*Список доступных стран*:\n" + strings.Join(countries, ", ")
	case strings.Contains(text, "/help_film_genres"):
		genres := vocab.Genres()
		slices.Sort(genres)
		return "*Список доступных жанров*:\n" + strings.Join(genres, ", ")
	}
	return filmGuide
}

func (a *App) handleFilmHelp(m *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(m.Chat.ID, FilmHelp(m.Text))
	msg.ParseMode = tgbotapi.ModeMarkdown
	a.sendAndExpire(m, msg)
}

func (a *App) handleHelp(m *tgbotapi.Message) {
	a.sendAndExpire(m, replyConfig(m, commandHelp))
}

// sendAndExpire sends c and removes it together with m after the help TTL.
func (a *App) sendAndExpire(m *tgbotapi.Message, c tgbotapi.Chattable) {
	sent, err := a.send(c)
	if err == nil {
		a.sched.Schedule(m.Chat.ID, sent.MessageID, a.helpTTL)
	}
	a.sched.Schedule(m.Chat.ID, m.MessageID, a.helpTTL)
}

// handleDeleteReplied lets admins remove the message they reply to. The
// command itself is always removed.
func (a *App) handleDeleteReplied(m *tgbotapi.Message) {
	defer a.deleteMessage(m.Chat.ID, m.MessageID)

	if !a.isAdmin(senderID(m)) {
		a.log.Info("dm: rejected non-admin", slog.Int64("user_id", senderID(m)), slog.String("username", senderHandle(m)))
		return
	}
	if m.ReplyToMessage == nil {
		a.log.Info("dm: no message to delete", slog.Int64("user_id", senderID(m)))
		return
	}
	if _, err := a.sender.Request(tgbotapi.NewDeleteMessage(m.Chat.ID, m.ReplyToMessage.MessageID)); err != nil {
		a.log.Error("dm: delete replied message", slog.Int("message_id", m.ReplyToMessage.MessageID), logger.Error(err))
		return
	}
	a.log.Info("dm: message deleted", slog.Int64("admin_id", senderID(m)), slog.Int("message_id", m.ReplyToMessage.MessageID))
}

func senderHandle(m *tgbotapi.Message) string {
	if m.From == nil {
		return ""
	}
	if m.From.UserName != "" {
		return m.From.UserName
	}
	return fullName(m.From)
}
