package engine

import (
	"context"
	"database/sql"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboardline/internal/assign"
	"onboardline/internal/audit"
	"onboardline/internal/config"
	"onboardline/internal/domain"
	"onboardline/internal/escalation"
	"onboardline/internal/integration"
	"onboardline/internal/logging"
	"onboardline/internal/metrics"
	"onboardline/internal/notify"
	"onboardline/internal/repo"
	"onboardline/internal/rules"
	"onboardline/internal/telemetry"
)

// Audit sources written by the engine.
const (
	SourceAPI        = "api"
	SourceCLI        = "cli"
	SourceEscalation = "escalation_engine"
	SourceValidator  = "integration_validator"
	SourceSystem     = "system"
)

const defaultConcurrency = 4

// Engine orchestrates onboarding workflows over the repo, the rule components,
// the notification gateway and the audit ledger.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Ledger   *audit.Ledger
	Rules    *rules.Tables
	Checker  integration.ConnectivityChecker
	Notifier notify.Gateway
	Channel  notify.Channel
	Config   *config.Config
	Logger   *charmLog.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
	NewID    func() string
	tracer   trace.Tracer
}

// Options carries the collaborators New does not build itself. Zero values get defaults.
type Options struct {
	Rules    *rules.Tables
	Notifier notify.Gateway
	Checker  integration.ConnectivityChecker
	Logger   *charmLog.Logger
	Metrics  *metrics.Recorder
}

func New(db *sql.DB, cfg *config.Config, opts Options) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Rules == nil {
		opts.Rules = rules.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	r := repo.Repo{DB: db}
	e := &Engine{
		DB:       db,
		Repo:     r,
		Rules:    opts.Rules,
		Checker:  opts.Checker,
		Notifier: opts.Notifier,
		Channel:  notify.Channel(cfg.Notifications.Channel),
		Config:   cfg,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Now:      time.Now,
		tracer:   telemetry.Tracer("onboardline/engine"),
	}
	if e.Channel == "" {
		e.Channel = notify.ChannelLog
	}
	if e.Notifier == nil {
		e.Notifier = DefaultNotifier(cfg, e.Logger, e.Metrics)
	}
	e.Ledger = audit.NewLedger(r, cfg.Environment)
	e.Ledger.Now = e.now
	e.Ledger.SummaryCap = cfg.Audit.SummaryCap
	e.Ledger.TopEntities = cfg.Audit.TopEntities
	return e
}

// DefaultNotifier registers the log channel and, when webhooks are configured, the webhook channel.
func DefaultNotifier(cfg *config.Config, logger *charmLog.Logger, rec *metrics.Recorder) *notify.Dispatcher {
	d := notify.NewDispatcher(logger, rec)
	d.Register(notify.ChannelLog, notify.LogSender{Logger: logger})
	if len(cfg.Notifications.Webhooks) > 0 {
		d.Register(notify.ChannelWebhook, notify.NewWebhookSender(cfg.Notifications.Webhooks, cfg.Environment))
	}
	return d
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) location() *time.Location {
	return e.Config.Location()
}

func (e *Engine) resolver() assign.Resolver {
	return assign.Resolver{Rules: e.Rules, Now: func() time.Time { return e.now().In(e.location()) }}
}

func (e *Engine) escalator() escalation.Engine {
	return escalation.Engine{Rules: e.Rules, Now: e.now, Location: e.location()}
}

func (e *Engine) validator() integration.Validator {
	v := integration.NewValidator(e.Checker)
	v.Now = e.now
	return v
}

func (e *Engine) concurrency() int {
	if e.Config.Escalation.Concurrency > 0 {
		return e.Config.Escalation.Concurrency
	}
	return defaultConcurrency
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if e.tracer == nil {
		e.tracer = telemetry.Tracer("onboardline/engine")
	}
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// record appends audit entries after the domain write has committed. Failures are
// logged and counted but never returned.
func (e *Engine) record(ctx context.Context, entries ...audit.Entry) []domain.AuditRecord {
	if len(entries) == 0 {
		return nil
	}
	recs, err := e.Ledger.AppendBatch(ctx, entries)
	e.Metrics.AuditWrite(err == nil)
	if err != nil {
		e.Logger.Error("audit append failed", "events", len(entries), "first", entries[0].Payload.EventType(), "err", err)
		return nil
	}
	return recs
}

// notifyAndRecord sends n and appends the matching notification outcome record.
func (e *Engine) notifyAndRecord(ctx context.Context, n notify.Notification, entity domain.EntityType, entityID, onboardingID, source string) notify.Result {
	res := e.Notifier.Send(ctx, n, e.Channel)
	e.record(ctx, notificationEntry(n, res, e.Channel, entity, entityID, onboardingID, source))
	return res
}

func notificationEntry(n notify.Notification, res notify.Result, ch notify.Channel, entity domain.EntityType, entityID, onboardingID, source string) audit.Entry {
	var payload audit.Payload
	if res.Success {
		payload = audit.NotificationSent{NotificationType: string(n.Type), NotificationID: res.NotificationID, Channel: string(ch), Recipients: n.Emails()}
	} else {
		payload = audit.NotificationFailed{NotificationType: string(n.Type), Channel: string(ch), Recipients: n.Emails(), Error: res.Error}
	}
	return audit.Entry{EntityType: entity, EntityID: entityID, OnboardingID: onboardingID, Payload: payload, Source: source, Trigger: string(n.Type)}
}

// Origin identifies who asked for a change; it becomes the audit source/trigger pair.
type Origin struct {
	Source  string `json:"source,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func (o Origin) entry(entity domain.EntityType, id, onboardingID string, p audit.Payload) audit.Entry {
	src := o.Source
	if src == "" {
		src = SourceSystem
	}
	return audit.Entry{EntityType: entity, EntityID: id, OnboardingID: onboardingID, Payload: p, Source: src, Trigger: o.Trigger, Notes: o.Notes}
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
