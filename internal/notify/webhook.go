package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"onboardline/internal/config"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSender posts notifications as JSON to every enabled webhook whose event filter matches.
type WebhookSender struct {
	Hooks       []config.WebhookConfig
	Environment string
	Client      *http.Client
	Now         func() time.Time
}

func NewWebhookSender(hooks []config.WebhookConfig, environment string) *WebhookSender {
	return &WebhookSender{
		Hooks:       hooks,
		Environment: environment,
		Client:      &http.Client{Timeout: defaultWebhookTimeout},
		Now:         time.Now,
	}
}

type webhookNotification struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Environment string          `json:"environment,omitempty"`
	Recipients  []webhookPerson `json:"recipients"`
	Subject     string          `json:"subject"`
	Message     string          `json:"message"`
	Urgency     string          `json:"urgency"`
	Metadata    map[string]any  `json:"metadata"`
	SentAt      string          `json:"sent_at"`
}

type webhookPerson struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *WebhookSender) Deliver(ctx context.Context, id string, n Notification) error {
	var errs []error
	delivered := 0
	for _, hook := range s.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if !newEventFilter(hook.Events).match(string(n.Type)) {
			continue
		}
		if err := s.post(ctx, hook, id, n); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", hook.URL, err))
			continue
		}
		delivered++
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if delivered == 0 {
		return fmt.Errorf("no webhook accepts %s notifications", n.Type)
	}
	return nil
}

func (s *WebhookSender) post(ctx context.Context, hook config.WebhookConfig, id string, n Notification) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	body := webhookNotification{
		ID:          id,
		Type:        n.Type,
		Environment: s.Environment,
		Subject:     n.Subject,
		Message:     n.Message,
		Urgency:     string(n.Urgency),
		Metadata:    n.Metadata,
		SentAt:      now().UTC().Format(time.RFC3339),
	}
	for _, r := range n.Recipients {
		body.Recipients = append(body.Recipients, webhookPerson{Name: r.Name, Email: r.Email, Role: string(r.Role)})
	}
	if body.Metadata == nil {
		body.Metadata = map[string]any{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		if timeout != client.Timeout {
			c := *client
			c.Timeout = timeout
			client = &c
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Onboardline-Event", string(n.Type))
	req.Header.Set("X-Onboardline-Delivery", id)
	req.Header.Set("X-Onboardline-Urgency", string(n.Urgency))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Onboardline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
