package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/config"
	"onboardline/internal/domain"
)

func sample() Notification {
	return Notification{
		Type:       TaskEscalated,
		Recipients: []domain.Contact{{StakeholderID: "s1", Name: "Tess", Email: "tess@example.edu", Role: domain.RoleTechnicalLead}},
		Subject:    "Task overdue: sis_setup",
		Message:    "sis_setup is 4 days overdue",
		Urgency:    domain.PriorityCritical,
		Metadata:   map[string]any{"task_id": "t1", "onboarding_id": "o1"},
	}
}

type panicSender struct{}

func (panicSender) Deliver(context.Context, string, Notification) error { panic("boom") }

type errSender struct{}

func (errSender) Deliver(context.Context, string, Notification) error { return errors.New("smtp down") }

func TestDispatcherReportsFailuresAsValues(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.NewID = func() string { return "n-1" }

	res := d.Send(context.Background(), sample(), ChannelWebhook)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not configured")
	assert.Equal(t, "n-1", res.NotificationID)

	d.Register(ChannelWebhook, errSender{})
	res = d.Send(context.Background(), sample(), ChannelWebhook)
	assert.False(t, res.Success)
	assert.Equal(t, "smtp down", res.Error)

	d.Register(ChannelWebhook, panicSender{})
	res = d.Send(context.Background(), sample(), ChannelWebhook)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panic")

	n := sample()
	n.Recipients = nil
	d.Register(ChannelLog, LogSender{})
	res = d.Send(context.Background(), n, ChannelLog)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no recipients")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	logger := charmLog.NewWithOptions(&buf, charmLog.Options{Formatter: charmLog.LogfmtFormatter})
	d := NewDispatcher(logger, nil)
	d.Register(ChannelLog, LogSender{Logger: logger})
	res := d.Send(context.Background(), sample(), ChannelLog)
	require.True(t, res.Success)
	assert.NotEmpty(t, res.NotificationID)
	assert.Contains(t, buf.String(), "tess@example.edu")
}

func TestWebhookSenderPostsPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		got     webhookNotification
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	disabled := false
	sender := NewWebhookSender([]config.WebhookConfig{
		{URL: srv.URL, Secret: "s3cret", Events: []string{"task_escalated"}},
		{URL: "http://127.0.0.1:1/never", Enabled: &disabled},
	}, "test")
	sender.Now = func() time.Time { return time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, sender.Deliver(context.Background(), "n-42", sample()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "task_escalated", headers.Get("X-Onboardline-Event"))
	assert.Equal(t, "n-42", headers.Get("X-Onboardline-Delivery"))
	assert.Equal(t, "s3cret", headers.Get("X-Onboardline-Secret"))
	assert.Equal(t, "critical", got.Urgency)
	assert.Equal(t, "2026-03-03T10:00:00Z", got.SentAt)
	require.Len(t, got.Recipients, 1)
	assert.Equal(t, "tess@example.edu", got.Recipients[0].Email)
	assert.Equal(t, "t1", got.Metadata["task_id"])
}

func TestWebhookSenderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewWebhookSender([]config.WebhookConfig{{URL: srv.URL}}, "test")
	err := sender.Deliver(context.Background(), "n-1", sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	filtered := NewWebhookSender([]config.WebhookConfig{{URL: srv.URL, Events: []string{"blocker_created"}}}, "test")
	err = filtered.Deliver(context.Background(), "n-2", sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook accepts")
}
