package bot

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/handsomefox/kinochat/internal/logger"
)

// Callback data is capped by Telegram.
const maxCallbackData = 64

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil {
		return
	}
	a.register(ctx, m)

	if m.LeftChatMember != nil {
		a.forget(ctx, m)
		return
	}
	if len(m.NewChatMembers) > 0 {
		a.greet(m)
		return
	}

	text := m.Text
	if text == "" {
		return
	}

	switch {
	case strings.HasPrefix(text, "/film"):
		a.handleFilmCommand(ctx, m)
	case strings.HasPrefix(text, "/everyone") || strings.Contains(text, "@all") || strings.Contains(text, "ривет все"):
		a.handleEveryone(ctx, m)
	case strings.HasPrefix(text, "/watching"):
		a.handleWatching(ctx, m)
	case strings.HasPrefix(text, "/watch") || strings.HasPrefix(text, "/unwatch"):
		a.handleWatchToggle(ctx, m)
	case a.names.MatchString(text):
		a.handleNames(ctx, m)
	case strings.HasPrefix(text, "/coin") || strings.HasPrefix(text, "/randomgirl"):
		a.handleCoin(ctx, m)
	case strings.HasPrefix(text, "/vote") || strings.HasPrefix(text, "/poll"):
		a.handlePoll(m)
	case strings.HasPrefix(text, "/gif"):
		a.handleGIF(ctx, m)
	case strings.HasPrefix(text, "/help_film"):
		a.handleFilmHelp(m)
	case strings.HasPrefix(text, "/help"):
		a.handleHelp(m)
	case strings.HasPrefix(text, "/dm"):
		a.handleDeleteReplied(m)
	case strings.HasPrefix(text, "/"):
		a.handleUnknown(m)
	}
}

// register adds the sender to the chat's directory on every message.
func (a *App) register(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}
	created, err := a.directory.AddUserIfAbsent(ctx, m.From.ID, m.Chat.ID, m.From.UserName)
	if err != nil {
		a.log.Error("directory: register user",
			slog.Int64("user_id", m.From.ID),
			slog.Int64("chat_id", m.Chat.ID),
			logger.Error(err))
		return
	}
	if created {
		a.log.Info("directory: user registered", slog.Int64("user_id", m.From.ID), slog.Int64("chat_id", m.Chat.ID))
	}
}

func (a *App) forget(ctx context.Context, m *tgbotapi.Message) {
	err := a.directory.DeleteUser(ctx, m.LeftChatMember.ID, m.Chat.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		a.log.Error("directory: delete user", slog.Int64("user_id", m.LeftChatMember.ID), logger.Error(err))
	}
}

func (a *App) greet(m *tgbotapi.Message) {
	for _, u := range m.NewChatMembers {
		_, _ = a.reply(m, "Привет, "+fullName(&u))
	}
}

// handleCallback runs the "/film <title>" button attached to /watching
// announcements as if the presser had typed it.
func (a *App) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := a.sender.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		a.log.Debug("telegram: answer callback", logger.Error(err))
	}
	if cq.Message == nil || cq.Message.Chat == nil || !strings.HasPrefix(cq.Data, "/film") {
		return
	}
	a.handleFilmCommand(ctx, &tgbotapi.Message{
		MessageID: cq.Message.MessageID,
		Date:      cq.Message.Date,
		Chat:      cq.Message.Chat,
		From:      cq.From,
		Text:      cq.Data,
	})
}

func (a *App) handleUnknown(m *tgbotapi.Message) {
	cmd, addressed := a.commandName(m.Text)
	if !addressed && !m.Chat.IsPrivate() {
		return
	}
	if s, ok := Suggest(cmd); ok {
		a.replyAndExpire(m, "Неизвестная команда 😢 Возможно Вы имели ввиду /"+s+"?")
	}
}

// commandName returns the lower-cased command of text without the slash and
// reports whether it was explicitly addressed to this bot.
func (a *App) commandName(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	addressed := false
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		addressed = a.botUsername != "" && strings.EqualFold(cmd[i:], a.botUsername)
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), addressed
}

// trimBotSuffix drops the bot mention glued to a command word.
func (a *App) trimBotSuffix(word string) string {
	n := len(a.botUsername)
	if n == 0 || len(word) < n {
		return word
	}
	if strings.EqualFold(word[len(word)-n:], a.botUsername) {
		return word[:len(word)-n]
	}
	return word
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
