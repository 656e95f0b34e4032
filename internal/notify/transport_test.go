package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func newTestTelegram(t *testing.T, h http.HandlerFunc) *Telegram {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tg, err := NewTelegram(TelegramConfig{
		Token:   "TOKEN",
		ChatID:  "42",
		BaseURL: srv.URL,
		Client:  srv.Client(),
	})
	require.NoError(t, err)
	return tg
}

func TestTelegram_Send(t *testing.T) {
	var gotPath, gotChat, gotText string
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotChat = r.URL.Query().Get("chat_id")
		gotText = r.URL.Query().Get("text")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	err := tg.Send(context.Background(), "🔴 gpu-1 is DOWN & out")
	require.NoError(t, err)
	require.Equal(t, "/botTOKEN/sendMessage", gotPath)
	require.Equal(t, "42", gotChat)
	require.Equal(t, "🔴 gpu-1 is DOWN & out", gotText)
}

func TestTelegram_RateLimit(t *testing.T) {
	t.Run("status code with retry_after", func(t *testing.T) {
		tg := newTestTelegram(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":7}}`))
		})
		err := tg.Send(context.Background(), "x")
		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		require.Equal(t, 7*time.Second, rl.RetryAfter)
	})

	t.Run("error code in body", func(t *testing.T) {
		tg := newTestTelegram(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429}`))
		})
		err := tg.Send(context.Background(), "x")
		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		require.Equal(t, time.Second, rl.RetryAfter)
	})
}

func TestTelegram_Errors(t *testing.T) {
	tg := newTestTelegram(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})
	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	var rl *RateLimitError
	require.False(t, errors.As(err, &rl))

	_, err = NewTelegram(TelegramConfig{ChatID: "1"})
	require.Error(t, err)
}

func TestTelegram_NetworkErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tg, err := NewTelegram(TelegramConfig{
		Token:   "SECRET123:abc",
		ChatID:  "42",
		BaseURL: base,
	})
	require.NoError(t, err)

	err = tg.Send(context.Background(), "x")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "SECRET123")
	require.Contains(t, err.Error(), "telegram: Get")
	var rl *RateLimitError
	require.False(t, errors.As(err, &rl))
}

type fakeDiscord struct {
	channel string
	content string
	err     error
}

func (f *fakeDiscord) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.content = content
	return &discordgo.Message{}, f.err
}

func TestDiscord_Send(t *testing.T) {
	fake := &fakeDiscord{}
	d := &Discord{channelID: "c1", session: fake}
	require.NoError(t, d.Send(context.Background(), "hello"))
	require.Equal(t, "c1", fake.channel)
	require.Equal(t, "hello", fake.content)
}

func TestDiscordError(t *testing.T) {
	require.NoError(t, discordError(nil))

	err := discordError(&discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{
		TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 2500 * time.Millisecond},
	}})
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	require.Equal(t, 2500*time.Millisecond, rl.RetryAfter)

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	err = discordError(&discordgo.RESTError{Response: resp})
	require.ErrorAs(t, err, &rl)
	require.Equal(t, 3*time.Second, rl.RetryAfter)

	plain := errors.New("nope")
	require.Equal(t, plain, discordError(plain))

	_, err = NewDiscord("", "c")
	require.Error(t, err)
}
