package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/handsomefox/kinochat/internal/logger"
	"github.com/handsomefox/kinochat/internal/store"
)

var emoticons = regexp.MustCompile(`[\x{1F600}-\x{1F64F}]`)

// forbiddenNameChars may not appear in custom names.
const forbiddenNameChars = `\;:,?/=@&<>+$%|[]()'"!{}`

// Mention renders a Markdown link that notifies u. Names containing
// emoticons keep the name as plain text and link the handle instead.
func Mention(u store.User) string {
	name := u.DisplayName()
	if emoticons.MatchString(name) {
		return fmt.Sprintf("%s [(@%s)](tg://user?id=%d)", name, u.Handle(), u.UserID)
	}
	return fmt.Sprintf("[@%s](tg://user?id=%d)", name, u.UserID)
}

func mentions(users []store.User) string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, Mention(u))
	}
	return strings.Join(out, ", ")
}

func (a *App) handleEveryone(ctx context.Context, m *tgbotapi.Message) {
	users, err := a.directory.ListUsers(ctx, store.ListFilter{GroupID: m.Chat.ID, ExcludeUser: senderID(m)})
	if err != nil {
		a.log.Error("everyone: list users", logger.Error(err))
		_, _ = a.reply(m, "Ошибка отправки общего уведомления")
		return
	}
	if len(users) == 0 {
		_, _ = a.replyMarkdown(m, "Пустая база данных, либо вы там один 😔")
		return
	}
	_, _ = a.replyMarkdown(m, mentions(users))
}

func (a *App) handleWatching(ctx context.Context, m *tgbotapi.Message) {
	title := ""
	if _, after, ok := strings.Cut(m.Text, " "); ok {
		title = strings.TrimSpace(after)
	}

	users, err := a.directory.ListUsers(ctx, store.ListFilter{
		GroupID:      m.Chat.ID,
		ExcludeUser:  senderID(m),
		WatchingOnly: true,
	})
	if err != nil {
		a.log.Error("watching: list users", logger.Error(err))
		return
	}

	var text string
	if len(users) == 0 {
		text = "Список пользователей, которые хотят посмотреть кино, пуст"
	} else {
		requester, err := a.directory.DisplayName(ctx, senderID(m), m.Chat.ID)
		if err != nil {
			a.log.Error("watching: display name", logger.Error(err))
			return
		}
		text = requester + " зовёт " + mentions(users) + " посмотреть фильм"
		if title != "" {
			text += " *" + title + "*"
		}
	}

	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if title != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Узнать о фильме: "+title, truncateBytes("/film "+title, maxCallbackData)),
		))
	}
	_, _ = a.send(msg)
}

func (a *App) handleWatchToggle(ctx context.Context, m *tgbotapi.Message) {
	cmd, _, _ := strings.Cut(m.Text, "@")
	cmd = strings.TrimSpace(cmd)

	var subscribe bool
	var ok, fail string
	switch cmd {
	case "/watch":
		subscribe = true
		ok, fail = "Вы подписались на оповещения 🥳", "Ошибка, не удалось подписать Вас на оповещения"
	case "/unwatch":
		ok, fail = "Вы отписались от оповещений 😔", "Ошибка, не удалось отписать Вас от оповещений"
	default:
		a.replyAndExpire(m, "Возможно Вы имели ввиду команду /watch или /unwatch?\n"+
			"Также можно использовать команду /watching чтобы позвать людей на просмотр фильма")
		return
	}

	if err := a.directory.SetWatching(ctx, senderID(m), m.Chat.ID, subscribe); err != nil {
		a.log.Error("watch: update flag", slog.String("command", cmd), logger.Error(err))
		a.replyAndExpire(m, fail)
		return
	}
	a.replyAndExpire(m, ok)
}

// namesPattern matches /setname, /removename and /myname, optionally
// preceded by the bot mention.
func namesPattern(botUsername string) *regexp.Regexp {
	prefix := ""
	if botUsername != "" {
		prefix = `(` + regexp.QuoteMeta(botUsername) + `\s*)?`
	}
	return regexp.MustCompile(`(?i)^` + prefix + `/(setname|removename|myname)`)
}

// parseNameCommand splits a names command into its lower-cased name and
// argument.
func (a *App) parseNameCommand(text string) (cmd, arg string) {
	rest := text
	if n := len(a.botUsername); n > 0 && len(rest) >= n && strings.EqualFold(rest[:n], a.botUsername) {
		rest = strings.TrimLeft(rest[n:], " \t\r\n")
	}
	rest = strings.TrimPrefix(rest, "/")
	for _, name := range []string{"setname", "removename", "myname"} {
		if len(rest) >= len(name) && strings.EqualFold(rest[:len(name)], name) {
			rest = a.trimBotPrefix(rest[len(name):])
			return name, strings.TrimSpace(rest)
		}
	}
	return "", ""
}

// trimBotPrefix drops a bot mention at the start of s.
func (a *App) trimBotPrefix(s string) string {
	n := len(a.botUsername)
	if n > 0 && len(s) >= n && strings.EqualFold(s[:n], a.botUsername) {
		return s[n:]
	}
	return s
}

func (a *App) handleNames(ctx context.Context, m *tgbotapi.Message) {
	cmd, arg := a.parseNameCommand(m.Text)
	userID, groupID := senderID(m), m.Chat.ID

	switch cmd {
	case "setname":
		if arg == "" {
			a.replyAndExpire(m, "Ошибка: пустое сообщение, пример команды:\n/setname Ваше имя")
			return
		}
		if i := strings.IndexAny(arg, forbiddenNameChars); i >= 0 {
			a.replyAndExpire(m, "Ошибка: найден недопустимый символ: "+string(arg[i])+"\n"+
				"Запрещено использовать: "+forbiddenNameChars)
			return
		}
		if err := a.directory.SetCustomName(ctx, userID, groupID, &arg); err != nil {
			a.nameFailed(m, cmd, err)
			return
		}
		a.replyAndExpire(m, "Ваше имя *"+arg+"* сохранено")
	case "removename":
		if err := a.directory.SetCustomName(ctx, userID, groupID, nil); err != nil {
			a.nameFailed(m, cmd, err)
			return
		}
		a.replyAndExpire(m, "Ваше имя удалено")
	case "myname":
		name, err := a.directory.CustomName(ctx, userID, groupID)
		if err != nil {
			a.nameFailed(m, cmd, err)
			return
		}
		if name == "" {
			a.replyAndExpire(m, "Вы ещё не установили кастомное имя.")
			return
		}
		a.replyAndExpire(m, "Ваше текущее имя: *"+name+"*")
	default:
		a.replyAndExpire(m, "Хотите удалить имя? Нажмите: /removename\nХотите установить имя? Напишите:\n/setname Ваше имя")
	}
}

func (a *App) nameFailed(m *tgbotapi.Message, cmd string, err error) {
	a.log.Error("names: store", slog.String("command", cmd), logger.Error(err))
	a.replyAndExpire(m, "Произошла ошибка 😢")
}

func senderID(m *tgbotapi.Message) int64 {
	if m.From == nil {
		return 0
	}
	return m.From.ID
}
