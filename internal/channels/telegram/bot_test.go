package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/notify"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sent struct {
	chatID string
	text   string
}

type fakeAPI struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"MediTrack","username":"meditrack_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		f.sent = append(f.sent, sent{chatID: r.FormValue("chat_id"), text: r.FormValue("text")})
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type queries struct{}

func (queries) Now() time.Time                              { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
func (queries) TodaysReminders(time.Time) []health.Reminder { return nil }
func (queries) AdherenceRate(time.Time) int                 { return 100 }
func (queries) Streak() int                                 { return 3 }

func newTestBot(t *testing.T, chatID int64) (*Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	bot, err := NewBot(Config{Token: "TOKEN", ChatID: chatID, Endpoint: srv.URL + "/bot%s/%s"}, queries{}, zap.NewNop())
	require.NoError(t, err)
	return bot, api
}

func command(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}},
	}}
}

func TestNewBot_RequiresToken(t *testing.T) {
	_, err := NewBot(Config{}, queries{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNotify(t *testing.T) {
	bot, api := newTestBot(t, 42)

	require.NoError(t, bot.Notify(context.Background(), notify.Message{Title: "💊 Medication reminder", Body: "Aspirin is due"}))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].chatID)
	assert.Equal(t, "💊 Medication reminder\nAspirin is due", msgs[0].text)
	assert.Equal(t, "telegram", bot.Name())
}

func TestNotify_NoChat(t *testing.T) {
	bot, _ := newTestBot(t, 0)
	assert.Error(t, bot.Notify(context.Background(), notify.Message{Body: "x"}))
}

func TestHandleUpdate(t *testing.T) {
	bot, api := newTestBot(t, 42)

	require.NoError(t, bot.handleUpdate(command(42, "/streak")))
	require.NoError(t, bot.handleUpdate(command(42, "/bogus")))
	require.NoError(t, bot.handleUpdate(command(99, "/streak")))
	require.NoError(t, bot.handleUpdate(tgbotapi.Update{}))

	msgs := api.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "🔥 Current streak: 3 day(s)", msgs[0].text)
	assert.Contains(t, msgs[1].text, "Unknown command")
	assert.Equal(t, "99", msgs[2].chatID)
	assert.Contains(t, msgs[2].text, "only answers")
}
