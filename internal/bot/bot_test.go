package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/handsomefox/kinochat/internal/bot/mocks"
	"github.com/handsomefox/kinochat/internal/filter"
	"github.com/handsomefox/kinochat/internal/kinopoisk"
	"github.com/handsomefox/kinochat/internal/store"
)

const (
	testChatID = int64(-100777)
	adminID    = int64(1)
	botName    = "@KinoBot"
)

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMovies struct {
	mu      sync.Mutex
	random  func(filter.Set) (*kinopoisk.Movie, error)
	search  func(string) (*kinopoisk.SearchResult, error)
	sets    []filter.Set
	queries []string
}

func (f *fakeMovies) Random(_ context.Context, s filter.Set) (*kinopoisk.Movie, error) {
	f.mu.Lock()
	f.sets = append(f.sets, s)
	f.mu.Unlock()
	if f.random == nil {
		return nil, kinopoisk.ErrEmpty
	}
	return f.random(s)
}

func (f *fakeMovies) Search(_ context.Context, q string) (*kinopoisk.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.search == nil {
		return &kinopoisk.SearchResult{}, nil
	}
	return f.search(q)
}

func (f *fakeMovies) RandomURL(s filter.Set) string { return "random?" + s.Rating }
func (f *fakeMovies) SearchURL(q string) string     { return "search?" + q }

type fakeGIFs struct {
	url string
	err error
}

func (f fakeGIFs) Random(context.Context, string) (string, error) { return f.url, f.err }

// outbox records everything the bot sends through the mock.
type outbox struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	notify   chan struct{}
}

func (o *outbox) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	o.mu.Lock()
	o.sent = append(o.sent, c)
	o.nextID++
	id := 1000 + o.nextID
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
	return tgbotapi.Message{MessageID: id}, nil
}

func (o *outbox) request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	o.mu.Lock()
	o.requests = append(o.requests, c)
	o.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (o *outbox) messages() []tgbotapi.MessageConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range o.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (o *outbox) lastText(t *testing.T) string {
	t.Helper()
	msgs := o.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Text
}

func (o *outbox) deleted() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []int
	for _, c := range o.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			out = append(out, d.MessageID)
		}
	}
	return out
}

type harness struct {
	app    *App
	store  *store.Store
	movies *fakeMovies
	out    *outbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "users.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	out := &outbox{notify: make(chan struct{}, 64)}
	sender.EXPECT().Send(gomock.Any()).DoAndReturn(out.send).AnyTimes()
	sender.EXPECT().Request(gomock.Any()).DoAndReturn(out.request).AnyTimes()

	movies := &fakeMovies{}
	app, err := New(Config{
		Sender:      sender,
		Movies:      movies,
		GIFs:        fakeGIFs{url: "https://media.tenor.com/cat.gif"},
		Directory:   st,
		Logger:      testLogger(),
		BotUsername: botName,
		IsAdmin:     func(id int64) bool { return id == adminID },
		ReplyTTL:    time.Hour,
		HelpTTL:     time.Hour,
		Now:         func() time.Time { return testNow },
		Rand:        func(int) int { return 0 },
	})
	require.NoError(t, err)
	t.Cleanup(app.Scheduler().Stop)

	return &harness{app: app, store: st, movies: movies, out: out}
}

var nextMessageID = 1

func message(from int64, username, text string) *tgbotapi.Message {
	nextMessageID++
	return &tgbotapi.Message{
		MessageID: nextMessageID,
		From:      &tgbotapi.User{ID: from, UserName: username, FirstName: username},
		Chat:      &tgbotapi.Chat{ID: testChatID, Type: "supergroup"},
		Text:      text,
	}
}

func (h *harness) handle(m *tgbotapi.Message) {
	h.app.HandleUpdate(context.Background(), tgbotapi.Update{Message: m})
}

func ptr[T any](v T) *T { return &v }

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandle_RegistersSender(t *testing.T) {
	h := newHarness(t)
	h.handle(message(5, "neo", "привет"))

	u, err := h.store.GetUser(context.Background(), 5, testChatID)
	require.NoError(t, err)
	assert.Equal(t, "neo", u.Username.V)
	assert.Empty(t, h.out.messages())
}

func TestHandle_FilmRandom(t *testing.T) {
	h := newHarness(t)
	h.movies.random = func(filter.Set) (*kinopoisk.Movie, error) {
		return &kinopoisk.Movie{ID: 301, Name: ptr("Матрица"), Type: "movie", Year: ptr(1999)}, nil
	}

	m := message(5, "neo", "/filmr@KinoBot 7 драма")
	h.handle(m)

	require.Len(t, h.movies.sets, 1)
	set := h.movies.sets[0]
	assert.Equal(t, "7", set.Rating)
	assert.Equal(t, []filter.Entry{{Sign: filter.Include, Name: "драма"}}, set.Genres)

	msgs := h.out.messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "*Матрица*, фильм, 1999\n"))
	assert.Equal(t, tgbotapi.ModeMarkdown, msgs[0].ParseMode)
	assert.Equal(t, m.MessageID, msgs[0].ReplyToMessageID)

	kb, ok := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Len(t, kb.InlineKeyboard[0], 2)
}

func TestHandle_FilmRandomNotFound(t *testing.T) {
	h := newHarness(t)
	h.handle(message(5, "neo", "/filmr"))
	assert.Equal(t, msgRandomMissing, h.out.lastText(t))
}

func TestHandle_FilmsQuota(t *testing.T) {
	h := newHarness(t)
	h.movies.random = func(filter.Set) (*kinopoisk.Movie, error) {
		return nil, kinopoisk.ErrQuotaExceeded
	}

	h.handle(message(5, "neo", "/films"))
	assert.Equal(t, kinopoisk.QuotaMessage, h.out.lastText(t))
	assert.Len(t, h.movies.sets, 1)
}

func TestHandle_FilmsDistinct(t *testing.T) {
	h := newHarness(t)
	ids := []int64{1, 1, 2}
	call := 0
	h.movies.random = func(filter.Set) (*kinopoisk.Movie, error) {
		id := ids[call]
		call++
		return &kinopoisk.Movie{ID: id, Name: ptr("Фильм")}, nil
	}

	h.handle(message(5, "neo", "/films 2009-2020"))
	assert.Len(t, h.movies.sets, BulkAttempts)
	assert.Equal(t, "2009-2020", h.movies.sets[0].Year)

	text := h.out.lastText(t)
	assert.Len(t, strings.Split(text, "\n\n"), 2)
}

func TestHandle_FilmTitle(t *testing.T) {
	h := newHarness(t)
	h.movies.search = func(q string) (*kinopoisk.SearchResult, error) {
		if q != "Шерлок Холмс" {
			return &kinopoisk.SearchResult{}, nil
		}
		return &kinopoisk.SearchResult{Total: 1, Docs: []kinopoisk.Movie{{ID: 9, AlternativeName: ptr("Sherlock Holmes")}}}, nil
	}

	h.handle(message(5, "neo", "/film@KinoBot Шерлок Холмс"))
	assert.True(t, strings.HasPrefix(h.out.lastText(t), "*Sherlock Holmes*"))

	h.handle(message(5, "neo", "/film Нет такого"))
	assert.Equal(t, msgFilmNotFound, h.out.lastText(t))

	h.handle(message(5, "neo", "/film"))
	assert.Equal(t, msgFilmNotFound, h.out.lastText(t))
	assert.Equal(t, []string{"Шерлок Холмс", "Нет такого"}, h.movies.queries)
}

func TestHandle_UnknownFilmCommand(t *testing.T) {
	h := newHarness(t)
	h.handle(message(5, "neo", "/filmz"))
	assert.True(t, strings.HasPrefix(h.out.lastText(t), msgUnknown))
}

func TestHandle_Everyone(t *testing.T) {
	h := newHarness(t)
	h.handle(message(2, "trinity", "hi"))
	h.handle(message(3, "morpheus", "hi"))

	h.handle(message(5, "neo", "Привет все!"))
	text := h.out.lastText(t)
	assert.Contains(t, text, "[@trinity](tg://user?id=2)")
	assert.Contains(t, text, "[@morpheus](tg://user?id=3)")
	assert.NotContains(t, text, "neo")
}

func TestHandle_EveryoneAlone(t *testing.T) {
	h := newHarness(t)
	h.handle(message(5, "neo", "/everyone"))
	assert.Equal(t, "Пустая база данных, либо вы там один 😔", h.out.lastText(t))
}

func TestHandle_WatchAndWatching(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.handle(message(2, "trinity", "/watch@KinoBot"))
	assert.Equal(t, "Вы подписались на оповещения 🥳", h.out.lastText(t))
	u, err := h.store.GetUser(ctx, 2, testChatID)
	require.NoError(t, err)
	assert.True(t, u.NotifyWatching)
	// Reply and command are both queued for deletion.
	assert.Equal(t, 2, h.app.Scheduler().Pending())

	h.handle(message(5, "neo", "/watching Матрица"))
	msgs := h.out.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, "neo зовёт [@trinity](tg://user?id=2) посмотреть фильм *Матрица*", last.Text)
	assert.Zero(t, last.ReplyToMessageID)
	kb, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "/film Матрица", *kb.InlineKeyboard[0][0].CallbackData)

	h.handle(message(2, "trinity", "/unwatch"))
	assert.Equal(t, "Вы отписались от оповещений 😔", h.out.lastText(t))

	h.handle(message(5, "neo", "/watching"))
	assert.Equal(t, "Список пользователей, которые хотят посмотреть кино, пуст", h.out.lastText(t))

	h.handle(message(5, "neo", "/watchx"))
	assert.True(t, strings.HasPrefix(h.out.lastText(t), "Возможно Вы имели ввиду команду /watch"))
}

func TestHandle_Names(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.handle(message(5, "neo", "/setname Нео"))
	assert.Equal(t, "Ваше имя *Нео* сохранено", h.out.lastText(t))
	name, err := h.store.CustomName(ctx, 5, testChatID)
	require.NoError(t, err)
	assert.Equal(t, "Нео", name)

	h.handle(message(5, "neo", "@KinoBot /myname"))
	assert.Equal(t, "Ваше текущее имя: *Нео*", h.out.lastText(t))

	h.handle(message(5, "neo", "/setname@KinoBot Не<о"))
	assert.True(t, strings.HasPrefix(h.out.lastText(t), "Ошибка: найден недопустимый символ: <"))

	h.handle(message(5, "neo", "/SETNAME"))
	assert.Equal(t, "Ошибка: пустое сообщение, пример команды:\n/setname Ваше имя", h.out.lastText(t))

	h.handle(message(5, "neo", "/removename"))
	assert.Equal(t, "Ваше имя удалено", h.out.lastText(t))
	h.handle(message(5, "neo", "/myname"))
	assert.Equal(t, "Вы ещё не установили кастомное имя.", h.out.lastText(t))
}

func TestHandle_Coin(t *testing.T) {
	h := newHarness(t)
	m := message(5, "neo", "/coin@KinoBot")
	h.handle(m)

	assert.Equal(t, "[neo](tg://user?id=5) подбросил монетку, поймал... и там Орёл", h.out.lastText(t))
	assert.Contains(t, h.out.deleted(), m.MessageID)

	h.handle(message(5, "neo", "/randomgirl"))
	assert.Equal(t, "Ой, кто-то из чата отправил 😊 для Даши", h.out.lastText(t))

	h.handle(message(5, "neo", "/coins"))
	assert.Equal(t, "Возможно Вы имели ввиду /coin или /coingirl?", h.out.lastText(t))
}

func TestHandle_Poll(t *testing.T) {
	h := newHarness(t)

	h.handle(message(5, "neo", "/poll one"))
	assert.Equal(t, "neo, Вам необходимо указать хотя бы два варианта для голосования", h.out.lastText(t))

	h.handle(message(5, "neo", "/vote@KinoBot Матрица, Брат, матрица"))
	h.out.mu.Lock()
	poll, ok := h.out.sent[len(h.out.sent)-1].(tgbotapi.SendPollConfig)
	h.out.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, `"neo" предлагает проголосовать:`, poll.Question)
	assert.Equal(t, []string{"матрица", "Брат"}, poll.Options)
	assert.False(t, poll.IsAnonymous)
}

func TestHandle_GIF(t *testing.T) {
	h := newHarness(t)

	h.handle(message(5, "neo", "/gif"))
	assert.Equal(t, "Пожалуйста, укажите запрос. Например:\n/gif cat", h.out.lastText(t))

	h.handle(message(5, "neo", "/gif cat"))
	h.out.mu.Lock()
	anim, ok := h.out.sent[len(h.out.sent)-1].(tgbotapi.AnimationConfig)
	h.out.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, tgbotapi.FileURL("https://media.tenor.com/cat.gif"), anim.File)
}

func TestHandle_Help(t *testing.T) {
	h := newHarness(t)
	h.handle(message(5, "neo", "/help"))
	assert.Equal(t, commandHelp, h.out.lastText(t))
	assert.Equal(t, 2, h.app.Scheduler().Pending())

	h.handle(message(5, "neo", "/help_film_genres"))
	assert.True(t, strings.HasPrefix(h.out.lastText(t), "*Список доступных жанров*"))
}

func TestHandle_DeleteReplied(t *testing.T) {
	h := newHarness(t)

	target := message(9, "smith", "spam")
	cmd := message(adminID, "admin", "/dm")
	cmd.ReplyToMessage = target
	h.handle(cmd)
	assert.ElementsMatch(t, []int{target.MessageID, cmd.MessageID}, h.out.deleted())

	other := message(9, "smith", "/dm")
	other.ReplyToMessage = message(adminID, "admin", "important")
	h.handle(other)
	assert.Contains(t, h.out.deleted(), other.MessageID)
	assert.NotContains(t, h.out.deleted(), other.ReplyToMessage.MessageID)
}

func TestHandle_DeleteRepliedWithoutAdmins(t *testing.T) {
	h := newHarness(t)
	h.app.admin = nil

	target := message(9, "smith", "spam")
	cmd := message(adminID, "admin", "/dm")
	cmd.ReplyToMessage = target
	h.handle(cmd)
	assert.Equal(t, []int{cmd.MessageID}, h.out.deleted())
}

func TestHandle_MembersJoinAndLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.handle(message(7, "switch", "hi"))

	join := message(7, "switch", "")
	join.NewChatMembers = []tgbotapi.User{{ID: 8, FirstName: "Agent", LastName: "Smith"}}
	h.handle(join)
	assert.Equal(t, "Привет, Agent Smith", h.out.lastText(t))

	leave := message(1000, "admin", "")
	leave.From = nil
	leave.LeftChatMember = &tgbotapi.User{ID: 7}
	h.handle(leave)
	_, err := h.store.GetUser(ctx, 7, testChatID)
	assert.Error(t, err)
}

func TestHandle_Callback(t *testing.T) {
	h := newHarness(t)
	h.movies.search = func(string) (*kinopoisk.SearchResult, error) {
		return &kinopoisk.SearchResult{Total: 1, Docs: []kinopoisk.Movie{{ID: 1, Name: ptr("Брат")}}}, nil
	}

	announcement := message(0, "", "")
	h.app.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 5, UserName: "neo"},
		Message: announcement,
		Data:    "/film Брат",
	}})

	assert.Equal(t, []string{"Брат"}, h.movies.queries)
	assert.True(t, strings.HasPrefix(h.out.lastText(t), "*Брат*"))
	h.out.mu.Lock()
	_, answered := h.out.requests[0].(tgbotapi.CallbackConfig)
	h.out.mu.Unlock()
	assert.True(t, answered)
}

func TestHandle_UnknownCommandSuggestion(t *testing.T) {
	h := newHarness(t)

	h.handle(message(5, "neo", "/hepl"))
	assert.Empty(t, h.out.messages(), "unaddressed commands in groups are ignored")

	h.handle(message(5, "neo", "/hepl@KinoBot"))
	assert.Equal(t, "Неизвестная команда 😢 Возможно Вы имели ввиду /help?", h.out.lastText(t))
}

func TestHandleUpdate_RecoversPanics(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "users.db"), 0)
	require.NoError(t, err)
	defer st.Close()

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any()).DoAndReturn(func(tgbotapi.Chattable) (tgbotapi.Message, error) {
		panic("boom")
	}).Times(1)

	app, err := New(Config{Sender: sender, Movies: &fakeMovies{}, Directory: st, Logger: testLogger()})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		app.HandleUpdate(context.Background(), tgbotapi.Update{Message: message(5, "neo", "/filmr")})
	})
}

func TestRun_DispatchAndStop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	updates := make(chan tgbotapi.Update, 1)
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx, updates) }()

	updates <- tgbotapi.Update{UpdateID: 1, Message: message(5, "neo", "/everyone")}
	require.NoError(t, h.app.Dispatch(ctx, tgbotapi.Update{UpdateID: 2, Message: message(6, "trinity", "/everyone")}))

	for range 2 {
		select {
		case <-h.out.notify:
		case <-time.After(2 * time.Second):
			t.Fatal("update was not handled")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	err := h.app.Dispatch(context.Background(), tgbotapi.Update{})
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestRun_StopsWhileWorkersBusy(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "users.db"), 0)
	require.NoError(t, err)
	defer st.Close()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any()).DoAndReturn(func(tgbotapi.Chattable) (tgbotapi.Message, error) {
		started <- struct{}{}
		<-release
		return tgbotapi.Message{MessageID: 1}, nil
	}).Times(1)
	sender.EXPECT().Request(gomock.Any()).Return(&tgbotapi.APIResponse{Ok: true}, nil).AnyTimes()

	app, err := New(Config{
		Sender: sender, Movies: &fakeMovies{}, Directory: st, Logger: testLogger(), Workers: 1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan tgbotapi.Update)
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, updates) }()

	updates <- tgbotapi.Update{UpdateID: 1, Message: message(5, "neo", "/everyone")}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first update was not handled")
	}
	// The only worker is busy, so this one waits for a slot.
	updates <- tgbotapi.Update{UpdateID: 2, Message: message(6, "trinity", "/everyone")}

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
