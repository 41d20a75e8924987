package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/syften-relay/internal/notifier"
)

type postedMessage struct {
	Token   string
	Channel string
	Text    string
	Blocks  []map[string]any
}

func newSlackServer(t *testing.T, handler func(w http.ResponseWriter, msg postedMessage)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		msg := postedMessage{
			Token:   r.FormValue("token"),
			Channel: r.FormValue("channel"),
			Text:    r.FormValue("text"),
		}
		if msg.Token == "" {
			msg.Token = r.Header.Get("Authorization")
		}
		if raw := r.FormValue("blocks"); raw != "" {
			require.NoError(t, json.Unmarshal([]byte(raw), &msg.Blocks))
		}
		handler(w, msg)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSlackChannel_Deliver(t *testing.T) {
	var got postedMessage
	srv := newSlackServer(t, func(w http.ResponseWriter, msg postedMessage) {
		got = msg
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1709633472.000100"}`))
	})

	ch := notifier.NewSlackChannel("xoxb-test", notifier.SlackOptions{APIURL: srv.URL + "/", Timeout: 5 * time.Second})
	require.NoError(t, ch.Deliver(context.Background(), "C123", sampleNotification()))

	assert.Contains(t, got.Token, "xoxb-test")
	assert.Equal(t, "C123", got.Channel)
	assert.Equal(t, "Hello – https://example.com/post/1", got.Text)

	require.Len(t, got.Blocks, 5)
	kinds := make([]string, 0, len(got.Blocks))
	for _, b := range got.Blocks {
		kinds = append(kinds, b["type"].(string))
	}
	assert.Equal(t, []string{"header", "section", "actions", "divider", "context"}, kinds)

	button := got.Blocks[2]["elements"].([]any)[0].(map[string]any)
	assert.Equal(t, "https://example.com/post/1", button["url"])
	assert.Equal(t, "primary", button["style"])

	footer := got.Blocks[4]["elements"].([]any)
	require.Len(t, footer, 2)
	assert.Equal(t, "*Source:* Reddit", footer[0].(map[string]any)["text"])
	assert.Equal(t, "*Published:* 2024-03-05", footer[1].(map[string]any)["text"])
}

func TestSlackChannel_Deliver_Errors(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(w http.ResponseWriter)
		wantCode string
		status   int
		wait     time.Duration
	}{
		{
			name: "slack error response",
			respond: func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			},
			wantCode: "channel_not_found",
		},
		{
			name: "rate limited",
			respond: func(w http.ResponseWriter) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantCode: "ratelimited",
			status:   http.StatusTooManyRequests,
			wait:     7 * time.Second,
		},
		{
			name: "server error",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSlackServer(t, func(w http.ResponseWriter, _ postedMessage) { tt.respond(w) })
			ch := notifier.NewSlackChannel("xoxb-test", notifier.SlackOptions{APIURL: srv.URL + "/", Timeout: 5 * time.Second})

			err := ch.Deliver(context.Background(), "C123", sampleNotification())

			var apiErr *notifier.APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, apiErr.Code)
			}
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wait, apiErr.RetryAfter)
		})
	}
}
