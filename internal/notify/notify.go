package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	charmLog "github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/panics"

	"onboardline/internal/domain"
	"onboardline/internal/metrics"
)

type Type string

const (
	BlockerCreated  Type = "blocker_created"
	TaskEscalated   Type = "task_escalated"
	TaskReminder    Type = "task_reminder"
	BlockerResolved Type = "blocker_resolved"
)

func (t Type) Valid() bool {
	switch t {
	case BlockerCreated, TaskEscalated, TaskReminder, BlockerResolved:
		return true
	}
	return false
}

type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelLog     Channel = "log"
)

// Notification is the payload handed to a delivery channel.
type Notification struct {
	Type       Type             `json:"type"`
	Recipients []domain.Contact `json:"recipients"`
	Subject    string           `json:"subject"`
	Message    string           `json:"message"`
	Urgency    domain.Urgency   `json:"urgency"`
	Metadata   map[string]any   `json:"metadata"`
}

// Emails lists recipient addresses in order.
func (n Notification) Emails() []string {
	out := make([]string, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		out = append(out, r.Email)
	}
	return out
}

func (n Notification) validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
	if len(n.Recipients) == 0 {
		return errors.New("notification has no recipients")
	}
	if strings.TrimSpace(n.Subject) == "" {
		return errors.New("notification subject is required")
	}
	if !n.Urgency.Valid() {
		return fmt.Errorf("unknown urgency %q", n.Urgency)
	}
	return nil
}

// Result reports a delivery outcome. Failures are values, never errors.
type Result struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Gateway delivers notifications.
type Gateway interface {
	Send(ctx context.Context, n Notification, ch Channel) Result
}

// Sender delivers over one channel.
type Sender interface {
	Deliver(ctx context.Context, id string, n Notification) error
}

// Dispatcher routes notifications to the sender registered for the channel.
type Dispatcher struct {
	Senders map[Channel]Sender
	Logger  *charmLog.Logger
	Metrics *metrics.Recorder
	NewID   func() string
}

func NewDispatcher(logger *charmLog.Logger, rec *metrics.Recorder) *Dispatcher {
	return &Dispatcher{Senders: map[Channel]Sender{}, Logger: logger, Metrics: rec}
}

// Register installs s for ch.
func (d *Dispatcher) Register(ch Channel, s Sender) {
	if d.Senders == nil {
		d.Senders = map[Channel]Sender{}
	}
	d.Senders[ch] = s
}

func (d *Dispatcher) Send(ctx context.Context, n Notification, ch Channel) Result {
	id := d.newID()
	var (
		catcher panics.Catcher
		res     Result
	)
	catcher.Try(func() { res = d.deliver(ctx, id, n, ch) })
	if r := catcher.Recovered(); r != nil {
		res = Result{NotificationID: id, Error: fmt.Sprintf("sender panic: %v", r.Value)}
	}
	d.Metrics.Notification(string(n.Type), string(ch), res.Success)
	if !res.Success && d.Logger != nil {
		d.Logger.Warn("notification failed", "id", id, "type", n.Type, "channel", ch, "err", res.Error)
	}
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, id string, n Notification, ch Channel) Result {
	if err := n.validate(); err != nil {
		return Result{NotificationID: id, Error: err.Error()}
	}
	s, ok := d.Senders[ch]
	if !ok {
		return Result{NotificationID: id, Error: fmt.Sprintf("channel %s is not configured", ch)}
	}
	if err := s.Deliver(ctx, id, n); err != nil {
		return Result{NotificationID: id, Error: err.Error()}
	}
	return Result{Success: true, NotificationID: id}
}

func (d *Dispatcher) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return ulid.Make().String()
}

// LogSender writes notifications to the process log. It is the local default channel.
type LogSender struct {
	Logger *charmLog.Logger
}

func (s LogSender) Deliver(_ context.Context, id string, n Notification) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("notification",
		"id", id,
		"type", n.Type,
		"urgency", n.Urgency,
		"to", strings.Join(n.Emails(), ","),
		"subject", n.Subject,
	)
	return nil
}
