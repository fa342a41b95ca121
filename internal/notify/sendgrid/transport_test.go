package sendgrid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BhekumusaEric/apply4me-sub001/internal/notify"
)

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{FromEmail: "noreply@apply4me.co.za"})
	require.Error(t, err)
	_, err = New(Config{APIKey: "key"})
	require.Error(t, err)
}

func TestSendPostsV3Mail(t *testing.T) {
	t.Parallel()

	type captured struct {
		auth string
		path string
		body map[string]any
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		got <- captured{auth: r.Header.Get("Authorization"), path: r.URL.Path, body: body}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	tr, err := New(Config{
		APIKey:    "sg-key",
		FromEmail: "noreply@apply4me.co.za",
		FromName:  "Apply4Me",
		AppName:   "Apply4Me",
		Host:      srv.URL,
	})
	require.NoError(t, err)

	err = tr.Send(context.Background(), notify.Message{
		To:       "thandi@example.com",
		ToName:   "Thandi",
		Subject:  "2 new bursaries",
		HTMLBody: "<p>hi</p>",
		TextBody: "hi",
	})
	require.NoError(t, err)

	c := <-got
	assert.Equal(t, "Bearer sg-key", c.auth)
	assert.Equal(t, "/v3/mail/send", c.path)
	personalizations := c.body["personalizations"].([]any)
	require.Len(t, personalizations, 1)
	p := personalizations[0].(map[string]any)
	assert.Equal(t, "[Apply4Me] 2 new bursaries", p["subject"])
	to := p["to"].([]any)[0].(map[string]any)
	assert.Equal(t, "thandi@example.com", to["email"])
	assert.Len(t, c.body["content"].([]any), 2)
}

func TestSendReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	tr, err := New(Config{APIKey: "bad", FromEmail: "noreply@apply4me.co.za", Host: srv.URL})
	require.NoError(t, err)
	err = tr.Send(context.Background(), notify.Message{To: "a@example.com", Subject: "s", TextBody: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSendStopsWhenContextExpires(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tr, err := New(Config{APIKey: "sg-key", FromEmail: "noreply@apply4me.co.za", Host: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = tr.Send(ctx, notify.Message{To: "a@example.com", Subject: "s", TextBody: "t"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
