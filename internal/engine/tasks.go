package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
	"onboardline/internal/escalation"
	"onboardline/internal/notify"
	"onboardline/internal/repo"
)

func ensureTaskTransition(from, to domain.TaskStatus, force bool) error {
	if !to.Valid() {
		return domain.ValidationError{Field: "status", Reason: "unknown status " + string(to)}
	}
	if force || from == to {
		return nil
	}
	switch from {
	case domain.TaskPending:
		if to == domain.TaskInProgress || to == domain.TaskBlocked || to == domain.TaskCompleted {
			return nil
		}
	case domain.TaskInProgress:
		if to == domain.TaskBlocked || to == domain.TaskCompleted || to == domain.TaskPending {
			return nil
		}
	case domain.TaskBlocked:
		if to == domain.TaskInProgress || to == domain.TaskPending {
			return nil
		}
	}
	return domain.ValidationError{Field: "status", Reason: fmt.Sprintf("invalid task status transition %s -> %s", from, to)}
}

// TaskInput creates an ad-hoc task. Owner, assignee, priority and due date come from the rule tables
// unless set explicitly.
type TaskInput struct {
	OnboardingID string          `json:"onboarding_id"`
	TaskType     string          `json:"task_type"`
	Title        string          `json:"title,omitempty"`
	Priority     domain.Priority `json:"priority,omitempty"`
	Origin       Origin          `json:"-"`
}

func (e *Engine) CreateTask(ctx context.Context, in TaskInput) (task domain.Task, err error) {
	ctx, span := e.start(ctx, "engine.CreateTask", attribute.String("task.type", in.TaskType))
	defer func() { finish(span, err) }()

	in.TaskType = strings.TrimSpace(in.TaskType)
	if in.TaskType == "" {
		return domain.Task{}, domain.ValidationError{Field: "task_type", Reason: "required"}
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(in.Priority)}
	}
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		ob, err := e.Repo.GetOnboarding(ctx, tx, in.OnboardingID)
		if err != nil {
			return err
		}
		c, err := e.Repo.GetCustomer(ctx, tx, ob.CustomerID)
		if err != nil {
			return err
		}
		stakeholders, err := e.Repo.ListStakeholders(ctx, tx, ob.ID)
		if err != nil {
			return err
		}
		res := e.resolver()
		a := res.Assign(in.TaskType, stakeholders)
		due := res.DueDate(in.TaskType, ob.GoLiveDate, c.Size)
		now := e.now().UTC()
		task = domain.Task{
			ID:           e.newID(),
			OnboardingID: ob.ID,
			Title:        in.Title,
			TaskType:     in.TaskType,
			OwnerRole:    a.OwnerRole,
			Status:       domain.TaskPending,
			Priority:     in.Priority,
			DueDate:      &due,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if task.Title == "" {
			task.Title = strings.ReplaceAll(in.TaskType, "_", " ")
		}
		if task.Priority == "" {
			task.Priority = res.Priority(in.TaskType)
		}
		if a.AssignedTo != nil {
			id := a.AssignedTo.StakeholderID
			task.AssignedTo = &id
		}
		return e.Repo.InsertTask(ctx, tx, task)
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.record(ctx, in.Origin.entry(domain.EntityTask, task.ID, task.OnboardingID, audit.TaskCreated{
		TaskType: task.TaskType, OwnerRole: task.OwnerRole, AssignedTo: deref(task.AssignedTo), Priority: task.Priority, DueDate: dateString(task.DueDate),
	}))
	return task, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, e.DB, id)
}

func (e *Engine) ListTasks(ctx context.Context, f repo.TaskFilter) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, e.DB, f)
}

// UpdateTaskStatus applies a validated status transition. Completing a task stamps
// completed_at and clears any blocker; force allows leaving the completed state.
func (e *Engine) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, force bool, o Origin) (task domain.Task, err error) {
	ctx, span := e.start(ctx, "engine.UpdateTaskStatus", attribute.String("task.id", id), attribute.String("task.status", string(status)))
	defer func() { finish(span, err) }()

	var prev domain.Task
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = e.Repo.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if err := ensureTaskTransition(prev.Status, status, force); err != nil {
			return err
		}
		task = prev
		now := e.now().UTC()
		task.Status = status
		task.UpdatedAt = now
		switch status {
		case domain.TaskCompleted:
			if task.CompletedAt == nil {
				task.CompletedAt = &now
			}
			task.IsBlocker = false
			task.BlockerReason = ""
		case domain.TaskBlocked:
			if !task.IsBlocker {
				return domain.ValidationError{Field: "status", Reason: "use the blocker operation to block a task with a reason"}
			}
		default:
			task.CompletedAt = nil
			task.IsBlocker = false
			task.BlockerReason = ""
		}
		return e.Repo.UpdateTask(ctx, tx, task)
	})
	if err != nil {
		return domain.Task{}, err
	}
	if prev.Status == task.Status && prev.IsBlocker == task.IsBlocker {
		return task, nil
	}
	entries := []audit.Entry{o.entry(domain.EntityTask, task.ID, task.OnboardingID, audit.TaskStatusChanged{
		From: prev.Status, To: task.Status, Forced: force && ensureTaskTransition(prev.Status, status, false) != nil,
	})}
	if prev.IsBlocker && !task.IsBlocker {
		entries = append(entries, o.entry(domain.EntityBlocker, task.ID, task.OnboardingID, audit.BlockerResolved{
			TaskID: task.ID, Resolution: "task moved to " + string(task.Status),
		}))
	}
	e.record(ctx, entries...)
	return task, nil
}

// BlockerOutcome reports what happened when a task became a blocker.
type BlockerOutcome struct {
	Task         domain.Task              `json:"task"`
	Escalation   escalation.BlockerResult `json:"escalation"`
	Duplicate    bool                     `json:"duplicate"`
	Notification *notify.Result           `json:"notification,omitempty"`
}

// SetBlocker flags a task as blocked with a reason, escalates to the owner's successors
// and notifies them. A task escalates at most once per local day.
func (e *Engine) SetBlocker(ctx context.Context, id, reason string, o Origin) (out BlockerOutcome, err error) {
	ctx, span := e.start(ctx, "engine.SetBlocker", attribute.String("task.id", id))
	defer func() { finish(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return BlockerOutcome{}, domain.ValidationError{Field: "reason", Reason: "required"}
	}
	var (
		prev         domain.Task
		task         domain.Task
		stakeholders []domain.Stakeholder
	)
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = e.Repo.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if prev.Status == domain.TaskCompleted {
			return domain.ValidationError{Field: "status", Reason: "completed task cannot be a blocker"}
		}
		if stakeholders, err = e.Repo.ListStakeholders(ctx, tx, prev.OnboardingID); err != nil {
			return err
		}
		task = prev
		task.IsBlocker = true
		task.BlockerReason = reason
		task.Status = domain.TaskBlocked
		task.UpdatedAt = e.now().UTC()
		return e.Repo.UpdateTask(ctx, tx, task)
	})
	if err != nil {
		return BlockerOutcome{}, err
	}
	out = BlockerOutcome{Task: task, Escalation: e.escalator().EvaluateBlocker(task, stakeholders)}

	var entries []audit.Entry
	if prev.Status != task.Status {
		entries = append(entries, o.entry(domain.EntityTask, task.ID, task.OnboardingID, audit.TaskStatusChanged{From: prev.Status, To: task.Status}))
	}
	entries = append(entries, o.entry(domain.EntityBlocker, task.ID, task.OnboardingID, audit.BlockerCreated{
		TaskID: task.ID, TaskType: task.TaskType, Reason: reason, OwnerRole: task.OwnerRole,
	}))
	e.record(ctx, entries...)

	claimed, err := e.claimEscalation(ctx, task, blockerEscalation(out.Escalation, task), o)
	if err != nil {
		e.Logger.Error("blocker escalation claim failed", "task", task.ID, "err", err)
		return out, nil
	}
	if !claimed {
		out.Duplicate = true
		return out, nil
	}
	e.Metrics.Escalation(audit.KindBlocker, string(out.Escalation.UrgencyLevel))
	res := e.notifyAndRecord(ctx, notify.Notification{
		Type:       notify.BlockerCreated,
		Recipients: out.Escalation.Recipients,
		Subject:    fmt.Sprintf("Blocker on %s", taskLabel(task)),
		Message:    fmt.Sprintf("%s is blocked: %s", taskLabel(task), reason),
		Urgency:    out.Escalation.UrgencyLevel,
		Metadata:   taskMetadata(task, map[string]any{"reason": reason, "escalate_to": out.Escalation.Roles}),
	}, domain.EntityTask, task.ID, task.OnboardingID, SourceEscalation)
	out.Notification = &res
	return out, nil
}

func blockerEscalation(b escalation.BlockerResult, task domain.Task) audit.TaskEscalated {
	return audit.TaskEscalated{
		Kind:       audit.KindBlocker,
		TaskType:   task.TaskType,
		Tier:       0,
		EscalateTo: b.Roles,
		Urgency:    b.UrgencyLevel,
		Recipients: contactEmails(b.Recipients),
	}
}

// claimEscalation appends the task_escalated record under the task's dedup key for
// the current local day. It reports false when the task already escalated today.
func (e *Engine) claimEscalation(ctx context.Context, task domain.Task, p audit.TaskEscalated, o Origin) (bool, error) {
	key := audit.DedupKey(task.ID, domain.EventTaskEscalated, e.now().In(e.location()))
	entry := o.entry(domain.EntityTask, task.ID, task.OnboardingID, p)
	entry.Source = SourceEscalation
	if entry.Trigger == "" {
		entry.Trigger = p.Kind
	}
	entry.DedupKey = key
	_, ok, err := e.Ledger.AppendOnce(ctx, entry)
	e.Metrics.AuditWrite(err == nil)
	return ok, err
}

// ResolveBlockerInput clears a blocker. The task returns to in_progress unless Status says otherwise.
type ResolveBlockerInput struct {
	Resolution string            `json:"resolution,omitempty"`
	Status     domain.TaskStatus `json:"status,omitempty"`
	Origin     Origin            `json:"-"`
}

// ResolveBlockerOutcome is the cleared task and the delivery result of the resolution notice.
type ResolveBlockerOutcome struct {
	Task         domain.Task    `json:"task"`
	Notification *notify.Result `json:"notification,omitempty"`
}

func (e *Engine) ResolveBlocker(ctx context.Context, id string, in ResolveBlockerInput) (out ResolveBlockerOutcome, err error) {
	ctx, span := e.start(ctx, "engine.ResolveBlocker", attribute.String("task.id", id))
	defer func() { finish(span, err) }()

	next := in.Status
	if next == "" {
		next = domain.TaskInProgress
	}
	if next != domain.TaskInProgress && next != domain.TaskPending {
		return ResolveBlockerOutcome{}, domain.ValidationError{Field: "status", Reason: "must be in_progress or pending"}
	}
	var (
		prev         domain.Task
		task         domain.Task
		stakeholders []domain.Stakeholder
	)
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = e.Repo.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if !prev.IsBlocker {
			return domain.ValidationError{Field: "is_blocker", Reason: "task is not a blocker"}
		}
		if stakeholders, err = e.Repo.ListStakeholders(ctx, tx, prev.OnboardingID); err != nil {
			return err
		}
		task = prev
		task.IsBlocker = false
		task.BlockerReason = ""
		if task.Status == domain.TaskBlocked {
			task.Status = next
		}
		task.UpdatedAt = e.now().UTC()
		return e.Repo.UpdateTask(ctx, tx, task)
	})
	if err != nil {
		return ResolveBlockerOutcome{}, err
	}
	o := in.Origin
	entries := []audit.Entry{o.entry(domain.EntityBlocker, task.ID, task.OnboardingID, audit.BlockerResolved{TaskID: task.ID, Resolution: in.Resolution})}
	if prev.Status != task.Status {
		entries = append(entries, o.entry(domain.EntityTask, task.ID, task.OnboardingID, audit.TaskStatusChanged{From: prev.Status, To: task.Status}))
	}
	e.record(ctx, entries...)

	b := e.escalator().EvaluateBlocker(task, stakeholders)
	msg := fmt.Sprintf("%s is no longer blocked", taskLabel(task))
	if in.Resolution != "" {
		msg += ": " + in.Resolution
	}
	res := e.notifyAndRecord(ctx, notify.Notification{
		Type:       notify.BlockerResolved,
		Recipients: b.Recipients,
		Subject:    fmt.Sprintf("Blocker resolved on %s", taskLabel(task)),
		Message:    msg,
		Urgency:    domain.PriorityLow,
		Metadata:   taskMetadata(task, map[string]any{"resolution": in.Resolution}),
	}, domain.EntityTask, task.ID, task.OnboardingID, o.Source)
	return ResolveBlockerOutcome{Task: task, Notification: &res}, nil
}

// ReassignTask moves a task to a specific stakeholder, or re-runs assignment when stakeholderID is empty.
func (e *Engine) ReassignTask(ctx context.Context, id, stakeholderID string, o Origin) (task domain.Task, err error) {
	ctx, span := e.start(ctx, "engine.ReassignTask", attribute.String("task.id", id))
	defer func() { finish(span, err) }()

	var prev domain.Task
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = e.Repo.GetTask(ctx, tx, id); err != nil {
			return err
		}
		task = prev
		if stakeholderID != "" {
			s, err := e.Repo.GetStakeholder(ctx, tx, stakeholderID)
			if err != nil {
				return err
			}
			if s.OnboardingID != task.OnboardingID {
				return domain.ValidationError{Field: "stakeholder_id", Reason: "stakeholder belongs to another onboarding"}
			}
			task.OwnerRole = s.Role
			task.AssignedTo = &s.ID
		} else {
			stakeholders, err := e.Repo.ListStakeholders(ctx, tx, task.OnboardingID)
			if err != nil {
				return err
			}
			a := e.resolver().Assign(task.TaskType, stakeholders)
			task.OwnerRole = a.OwnerRole
			task.AssignedTo = nil
			if a.AssignedTo != nil {
				sid := a.AssignedTo.StakeholderID
				task.AssignedTo = &sid
			}
		}
		task.UpdatedAt = e.now().UTC()
		return e.Repo.UpdateTask(ctx, tx, task)
	})
	if err != nil {
		return domain.Task{}, err
	}
	if deref(prev.AssignedTo) != deref(task.AssignedTo) || prev.OwnerRole != task.OwnerRole {
		e.record(ctx, o.entry(domain.EntityTask, task.ID, task.OnboardingID, audit.TaskAssigned{
			OwnerRole: task.OwnerRole, From: deref(prev.AssignedTo), To: deref(task.AssignedTo),
		}))
	}
	return task, nil
}

func taskLabel(t domain.Task) string {
	if t.Title != "" {
		return t.Title
	}
	return t.TaskType
}

func taskMetadata(t domain.Task, extra map[string]any) map[string]any {
	m := map[string]any{
		"task_id":       t.ID,
		"onboarding_id": t.OnboardingID,
		"task_type":     t.TaskType,
		"owner_role":    string(t.OwnerRole),
	}
	if t.DueDate != nil {
		m["due_date"] = dateString(t.DueDate)
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func contactEmails(cs []domain.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Email)
	}
	return out
}
