package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
	"onboardline/internal/escalation"
	"onboardline/internal/notify"
	"onboardline/internal/repo"
)

// Escalation run item outcomes.
const (
	OutcomeEscalated   = "escalated"
	OutcomeDuplicate   = "duplicate"
	OutcomeNotifyError = "notification_failed"
	OutcomeClaimError  = "claim_failed"
)

type EscalationItem struct {
	TaskID       string            `json:"task_id"`
	OnboardingID string            `json:"onboarding_id"`
	TaskType     string            `json:"task_type"`
	Outcome      string            `json:"outcome"`
	Result       escalation.Result `json:"result"`
	Recipients   []string          `json:"recipients"`
	Notification *notify.Result    `json:"notification,omitempty"`
	Error        string            `json:"error,omitempty"`
}

type EscalationReport struct {
	RanAt                time.Time        `json:"ran_at"`
	Evaluated            int              `json:"evaluated"`
	Escalated            int              `json:"escalated"`
	Duplicates           int              `json:"duplicates"`
	NotificationFailures int              `json:"notification_failures"`
	Items                []EscalationItem `json:"items"`
}

// EvaluateTask returns the current overdue verdict for one task without side effects.
func (e *Engine) EvaluateTask(ctx context.Context, id string) (escalation.Result, error) {
	t, err := e.Repo.GetTask(ctx, e.DB, id)
	if err != nil {
		return escalation.Result{}, err
	}
	return e.escalator().Evaluate(t), nil
}

// CheckEscalations lists the open tasks that would escalate now. onboardingID may be empty.
func (e *Engine) CheckEscalations(ctx context.Context, onboardingID string) ([]escalation.Candidate, error) {
	tasks, err := e.Repo.ListTasks(ctx, e.DB, repo.TaskFilter{OnboardingID: onboardingID, OpenOnly: true})
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	out := e.escalator().FindTasksNeedingEscalation(tasks)
	if out == nil {
		out = []escalation.Candidate{}
	}
	return out, nil
}

// BlockerRecipients resolves who a blocker on task id escalates to.
func (e *Engine) BlockerRecipients(ctx context.Context, id string) (escalation.BlockerResult, error) {
	t, err := e.Repo.GetTask(ctx, e.DB, id)
	if err != nil {
		return escalation.BlockerResult{}, err
	}
	stakeholders, err := e.Repo.ListStakeholders(ctx, e.DB, t.OnboardingID)
	if err != nil {
		return escalation.BlockerResult{}, err
	}
	return e.escalator().EvaluateBlocker(t, stakeholders), nil
}

// sortTasks orders tasks by due date then id so runs are reproducible.
func sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.ID < b.ID
	})
}

type stakeholderCache struct {
	e    *Engine
	byOB map[string][]domain.Stakeholder
}

func (c *stakeholderCache) get(ctx context.Context, onboardingID string) ([]domain.Stakeholder, error) {
	if s, ok := c.byOB[onboardingID]; ok {
		return s, nil
	}
	s, err := c.e.Repo.ListStakeholders(ctx, c.e.DB, onboardingID)
	if err != nil {
		return nil, err
	}
	c.byOB[onboardingID] = s
	return s, nil
}

// recipientsFor resolves every stakeholder holding one of roles, in role order, without duplicates.
func recipientsFor(roles []domain.Role, stakeholders []domain.Stakeholder) []domain.Contact {
	var out []domain.Contact
	seen := map[string]bool{}
	for _, role := range roles {
		for _, s := range stakeholders {
			if s.Role == role && !seen[s.ID] {
				seen[s.ID] = true
				out = append(out, s.Contact())
			}
		}
	}
	return out
}

type pendingSend struct {
	idx  int
	task domain.Task
	n    notify.Notification
}

// RunEscalationCheck evaluates every open task, claims each escalation under its
// per-day dedup key, notifies the chain concurrently and records the outcomes.
func (e *Engine) RunEscalationCheck(ctx context.Context, onboardingID string, o Origin) (report EscalationReport, err error) {
	ctx, span := e.start(ctx, "engine.RunEscalationCheck", attribute.String("onboarding.id", onboardingID))
	defer func() { finish(span, err) }()
	started := time.Now()
	defer func() { e.Metrics.EscalationRun(time.Since(started)) }()

	tasks, err := e.Repo.ListTasks(ctx, e.DB, repo.TaskFilter{OnboardingID: onboardingID, OpenOnly: true})
	if err != nil {
		return EscalationReport{}, err
	}
	sortTasks(tasks)
	report = EscalationReport{RanAt: e.now().UTC(), Evaluated: len(tasks), Items: []EscalationItem{}}
	cache := &stakeholderCache{e: e, byOB: map[string][]domain.Stakeholder{}}

	var sends []pendingSend
	for _, c := range e.escalator().FindTasksNeedingEscalation(tasks) {
		item := EscalationItem{TaskID: c.Task.ID, OnboardingID: c.Task.OnboardingID, TaskType: c.Task.TaskType, Result: c.Result}
		stakeholders, err := cache.get(ctx, c.Task.OnboardingID)
		if err != nil {
			return EscalationReport{}, fmt.Errorf("load stakeholders: %w", err)
		}
		recipients := recipientsFor(c.Result.EscalateTo, stakeholders)
		item.Recipients = contactEmails(recipients)
		claimed, err := e.claimEscalation(ctx, c.Task, audit.TaskEscalated{
			Kind:        audit.KindOverdue,
			TaskType:    c.Task.TaskType,
			DaysOverdue: c.Result.DaysOverdue,
			Threshold:   c.Result.Threshold,
			Tier:        c.Result.Tier,
			EscalateTo:  c.Result.EscalateTo,
			Urgency:     c.Result.UrgencyLevel,
			Recipients:  item.Recipients,
		}, o)
		switch {
		case err != nil:
			item.Outcome = OutcomeClaimError
			item.Error = err.Error()
			e.Logger.Error("escalation claim failed", "task", c.Task.ID, "err", err)
		case !claimed:
			item.Outcome = OutcomeDuplicate
			report.Duplicates++
		default:
			item.Outcome = OutcomeEscalated
			report.Escalated++
			e.Metrics.Escalation(audit.KindOverdue, string(c.Result.UrgencyLevel))
			sends = append(sends, pendingSend{idx: len(report.Items), task: c.Task, n: notify.Notification{
				Type:       notify.TaskEscalated,
				Recipients: recipients,
				Subject:    fmt.Sprintf("Overdue: %s (%d days)", taskLabel(c.Task), c.Result.DaysOverdue),
				Message:    fmt.Sprintf("%s is %d day(s) overdue; escalating to %v", taskLabel(c.Task), c.Result.DaysOverdue, c.Result.EscalateTo),
				Urgency:    c.Result.UrgencyLevel,
				Metadata: taskMetadata(c.Task, map[string]any{
					"days_overdue": c.Result.DaysOverdue,
					"tier":         c.Result.Tier,
					"escalate_to":  c.Result.EscalateTo,
				}),
			}})
		}
		report.Items = append(report.Items, item)
	}

	var entries []audit.Entry
	for _, r := range e.deliver(ctx, sends) {
		s := sends[r.pos]
		res := r.res
		report.Items[s.idx].Notification = &res
		if !res.Success {
			report.Items[s.idx].Outcome = OutcomeNotifyError
			report.NotificationFailures++
		}
		entries = append(entries, notificationEntry(s.n, res, e.Channel, domain.EntityTask, s.task.ID, s.task.OnboardingID, SourceEscalation))
	}
	run := o.entry(domain.EntityEscalation, "run-"+report.RanAt.Format("20060102T150405Z"), onboardingID, audit.EscalationRunCompleted{
		Evaluated:            report.Evaluated,
		Escalated:            report.Escalated,
		Duplicates:           report.Duplicates,
		NotificationFailures: report.NotificationFailures,
	})
	run.Source = SourceEscalation
	e.record(ctx, append(entries, run)...)
	e.Logger.Info("escalation run", "evaluated", report.Evaluated, "escalated", report.Escalated, "duplicates", report.Duplicates, "failed", report.NotificationFailures)
	return report, nil
}

type delivered struct {
	pos int
	res notify.Result
}

// deliver sends notifications on a bounded pool and returns results in input order.
func (e *Engine) deliver(ctx context.Context, sends []pendingSend) []delivered {
	if len(sends) == 0 {
		return nil
	}
	p := pool.NewWithResults[delivered]().WithMaxGoroutines(e.concurrency())
	for i, s := range sends {
		p.Go(func() delivered {
			return delivered{pos: i, res: e.Notifier.Send(ctx, s.n, e.Channel)}
		})
	}
	out := p.Wait()
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// ReminderReport lists the reminders sent by SendReminders.
type ReminderReport struct {
	RanAt   time.Time        `json:"ran_at"`
	Checked int              `json:"checked"`
	Sent    int              `json:"sent"`
	Skipped int              `json:"skipped"`
	Failed  int              `json:"failed"`
	Items   []EscalationItem `json:"items"`
}

// SendReminders notifies assignees of open tasks due within days (config reminder_days when <= 0).
// Each task is reminded at most once per local day.
func (e *Engine) SendReminders(ctx context.Context, onboardingID string, days int, o Origin) (report ReminderReport, err error) {
	ctx, span := e.start(ctx, "engine.SendReminders", attribute.String("onboarding.id", onboardingID))
	defer func() { finish(span, err) }()

	if days <= 0 {
		days = e.Config.Escalation.ReminderDays
	}
	if days <= 0 {
		days = 2
	}
	tasks, err := e.Repo.ListTasks(ctx, e.DB, repo.TaskFilter{OnboardingID: onboardingID, OpenOnly: true})
	if err != nil {
		return ReminderReport{}, err
	}
	sortTasks(tasks)
	esc := e.escalator()
	now := e.now()
	report = ReminderReport{RanAt: now.UTC(), Items: []EscalationItem{}}
	dayStart := startOfLocalDay(now, e.location())
	cache := &stakeholderCache{e: e, byOB: map[string][]domain.Stakeholder{}}

	var sends []pendingSend
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		overdue := esc.DaysOverdue(*t.DueDate)
		if overdue > 0 || -overdue > days {
			continue
		}
		report.Checked++
		item := EscalationItem{TaskID: t.ID, OnboardingID: t.OnboardingID, TaskType: t.TaskType}
		already, err := e.remindedSince(ctx, t.ID, dayStart)
		if err != nil {
			return ReminderReport{}, err
		}
		if already {
			item.Outcome = OutcomeDuplicate
			report.Skipped++
			report.Items = append(report.Items, item)
			continue
		}
		stakeholders, err := cache.get(ctx, t.OnboardingID)
		if err != nil {
			return ReminderReport{}, err
		}
		recipients := reminderRecipients(t, stakeholders)
		item.Recipients = contactEmails(recipients)
		sends = append(sends, pendingSend{idx: len(report.Items), task: t, n: notify.Notification{
			Type:       notify.TaskReminder,
			Recipients: recipients,
			Subject:    fmt.Sprintf("Reminder: %s due %s", taskLabel(t), dateString(t.DueDate)),
			Message:    fmt.Sprintf("%s is due in %d day(s)", taskLabel(t), -overdue),
			Urgency:    t.Priority,
			Metadata:   taskMetadata(t, map[string]any{"days_until_due": -overdue}),
		}})
		report.Items = append(report.Items, item)
	}

	var entries []audit.Entry
	for _, r := range e.deliver(ctx, sends) {
		s := sends[r.pos]
		res := r.res
		report.Items[s.idx].Notification = &res
		if res.Success {
			report.Items[s.idx].Outcome = "sent"
			report.Sent++
		} else {
			report.Items[s.idx].Outcome = OutcomeNotifyError
			report.Failed++
		}
		entry := notificationEntry(s.n, res, e.Channel, domain.EntityTask, s.task.ID, s.task.OnboardingID, SourceSystem)
		if o.Source != "" {
			entry.Source = o.Source
		}
		if res.Success {
			entry.DedupKey = audit.DedupKey(s.task.ID, domain.EventType(notify.TaskReminder), now.In(e.location()))
		}
		entries = append(entries, entry)
	}
	for _, entry := range entries {
		if entry.DedupKey == "" {
			e.record(ctx, entry)
			continue
		}
		if _, _, err := e.Ledger.AppendOnce(ctx, entry); err != nil {
			e.Metrics.AuditWrite(false)
			e.Logger.Error("reminder audit failed", "task", entry.EntityID, "err", err)
		} else {
			e.Metrics.AuditWrite(true)
		}
	}
	return report, nil
}

// remindedSince reports whether a reminder for task id was delivered at or after since.
func (e *Engine) remindedSince(ctx context.Context, id string, since time.Time) (bool, error) {
	recs, err := e.Ledger.Query(ctx, audit.Query{
		EntityType: domain.EntityTask,
		EntityID:   id,
		EventType:  domain.EventNotificationSent,
		From:       &since,
		Limit:      audit.MaxLimit,
	})
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Metadata["notification_type"] == string(notify.TaskReminder) {
			return true, nil
		}
	}
	return false, nil
}

// reminderRecipients is the assignee, or everyone holding the owner role when unassigned.
func reminderRecipients(t domain.Task, stakeholders []domain.Stakeholder) []domain.Contact {
	if t.AssignedTo != nil {
		for _, s := range stakeholders {
			if s.ID == *t.AssignedTo {
				return []domain.Contact{s.Contact()}
			}
		}
	}
	return recipientsFor([]domain.Role{t.OwnerRole}, stakeholders)
}

func startOfLocalDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
