package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logx "charitybot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassTooLong, Classify(fmt.Errorf("send: %w", ErrTooLong)))
	assert.Equal(t, ClassDuplicate, Classify(ErrDuplicate))
	assert.Equal(t, ClassOther, Classify(errors.New("rate limited")))
	assert.Equal(t, ClassOther, Classify(nil))

	err := classifyByText(errors.New("telegram: Bad Request: message is too long (400)"), []string{"message is too long"}, nil)
	assert.Equal(t, ClassTooLong, Classify(err))
	assert.Contains(t, err.Error(), "message is too long")
	assert.Equal(t, ClassOther, Classify(classifyByText(errors.New("boom"), []string{"x"}, []string{"y"})))
}

func TestStaticListerTrimsAndDedupes(t *testing.T) {
	got, err := Static{"@redcross", " unicef ", "", "redcross"}.ListFollowers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"redcross", "unicef"}, got)
}

func TestLogPoster(t *testing.T) {
	p := &LogPoster{MaxLen: 10, Log: logx.Nop()}
	ctx := context.Background()
	require.NoError(t, p.Send(ctx, "hello"))
	assert.ErrorIs(t, p.Send(ctx, "hello"), ErrDuplicate)
	assert.ErrorIs(t, p.Send(ctx, "hello world!"), ErrTooLong)
	require.NoError(t, p.Send(ctx, "hello 2"))
}

func telegramServer(t *testing.T, reply func(body map[string]any) string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"), r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		seen = append(seen, body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply(body)))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestTelegramSendAndClassify(t *testing.T) {
	srv, seen := telegramServer(t, func(body map[string]any) string {
		if strings.Contains(fmt.Sprint(body["text"]), "reject") {
			return `{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`
		}
		return `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-1001,"type":"channel"}}}`
	})

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", Chat: "@charity", APIURL: srv.URL}, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, tg.Send(context.Background(), "thanks"))
	require.Len(t, *seen, 1)
	assert.Equal(t, "@charity", fmt.Sprint((*seen)[0]["chat_id"]))

	err = tg.Send(context.Background(), "reject me")
	assert.ErrorIs(t, err, ErrTooLong)

	err = tg.Send(context.Background(), strings.Repeat("x", telegramTextLimit+1))
	assert.ErrorIs(t, err, ErrTooLong)
	assert.Len(t, *seen, 2, "oversized text is rejected locally")
}

func TestTelegramRecipient(t *testing.T) {
	r, err := telegramRecipient("-1001234")
	require.NoError(t, err)
	assert.Equal(t, "-1001234", r.Recipient())

	_, err = telegramRecipient("charity")
	require.Error(t, err)
	_, err = telegramRecipient("")
	require.Error(t, err)
	_, err = NewTelegram(TelegramConfig{Chat: "@x"}, logx.Nop())
	require.Error(t, err)
}

func slackServer(t *testing.T) *httptest.Server {
	t.Helper()
	users := map[string]string{
		"U1":   `{"id":"U1","name":"redcross"}`,
		"U2":   `{"id":"U2","name":"unicef"}`,
		"U3":   `{"id":"U3","name":"helperbot","is_bot":true}`,
		"U4":   `{"id":"U4","name":"gone","deleted":true}`,
		"UBOT": `{"id":"UBOT","name":"charitybot"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "auth.test":
			_, _ = w.Write([]byte(`{"ok":true,"user_id":"UBOT"}`))
		case "conversations.members":
			if r.FormValue("cursor") == "" {
				_, _ = w.Write([]byte(`{"ok":true,"members":["U1","UBOT","U3"],"response_metadata":{"next_cursor":"page2"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"members":["U2","U4"],"response_metadata":{"next_cursor":""}}`))
		case "users.info":
			_, _ = w.Write([]byte(`{"ok":true,"user":` + users[r.FormValue("user")] + `}`))
		case "chat.postMessage":
			if len(r.FormValue("text")) > 20 {
				_, _ = w.Write([]byte(`{"ok":false,"error":"msg_too_long"}`))
				return
			}
			if r.FormValue("text") == "fail" {
				_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1.0"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSlackPostAndFollowers(t *testing.T) {
	srv := slackServer(t)
	s, err := NewSlack(SlackConfig{Token: "xoxb-test", Channel: "C1", APIURL: srv.URL + "/"}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, "short post"))
	assert.ErrorIs(t, s.Send(ctx, strings.Repeat("y", 30)), ErrTooLong)
	err = s.Send(ctx, "fail")
	require.Error(t, err)
	assert.Equal(t, ClassOther, Classify(err))

	names, err := s.ListFollowers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"redcross", "unicef"}, names)
}
