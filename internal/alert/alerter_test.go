package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:    AlertTypeWatcherDown,
		Pinger:  "pinger-fra-1",
		Title:   "Anchor watcher gave up",
		Message: "5 consecutive blockhash fetches failed",
		Fields: map[string]string{
			"endpoint": "https://api.mainnet-beta.solana.com",
		},
	}
}

func TestWebhookAlerterPostsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	webhook := NewWebhookAlerter(srv.URL)
	require.NoError(t, webhook.Send(context.Background(), testAlert()))

	assert.Equal(t, "WATCHER_DOWN", got["type"])
	assert.Equal(t, "pinger-fra-1", got["pinger"])
	assert.Equal(t, "Anchor watcher gave up", got["title"])
}

func TestWebhookAlerterRejectedStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	webhook := NewWebhookAlerter(srv.URL)
	err := webhook.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// Sending the same alert twice within the cooldown window only
// dispatches one actual request.
func TestCooldownAlerterDedup(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alerter := NewCooldownAlerter(NewWebhookAlerter(srv.URL), time.Hour, testLogger())

	require.NoError(t, alerter.Send(context.Background(), testAlert()))
	require.NoError(t, alerter.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(1), received.Load(), "second send within cooldown must be suppressed")
}

func TestCooldownAlerterDistinctTypesBothDeliver(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alerter := NewCooldownAlerter(NewWebhookAlerter(srv.URL), time.Hour, testLogger())

	a := testAlert()
	b := testAlert()
	b.Type = AlertTypeProbeStalled

	require.NoError(t, alerter.Send(context.Background(), a))
	require.NoError(t, alerter.Send(context.Background(), b))

	assert.Equal(t, int32(2), received.Load())
}

func TestCooldownAlerterExpiresWindow(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alerter := NewCooldownAlerter(NewWebhookAlerter(srv.URL), 10*time.Millisecond, testLogger())

	require.NoError(t, alerter.Send(context.Background(), testAlert()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, alerter.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(2), received.Load())
}

func TestNoopAlerter(t *testing.T) {
	var n NoopAlerter
	assert.NoError(t, n.Send(context.Background(), testAlert()))
}
