package escalation

import (
	"fmt"
	"strings"
	"time"

	"onboardline/internal/domain"
	"onboardline/internal/rules"
)

const maxTier = 2

// Result is the verdict for one task at one point in time.
type Result struct {
	TaskID         string         `json:"task_id"`
	ShouldEscalate bool           `json:"should_escalate"`
	DaysOverdue    int            `json:"days_overdue"`
	Threshold      int            `json:"threshold_days"`
	Tier           int            `json:"tier"`
	EscalateTo     []domain.Role  `json:"escalate_to"`
	UrgencyLevel   domain.Urgency `json:"urgency_level"`
	Reason         string         `json:"reason"`
}

// Candidate pairs a task with the result that selected it.
type Candidate struct {
	Task   domain.Task `json:"task"`
	Result Result      `json:"result"`
}

// BlockerResult is the one-shot escalation for a task that became a blocker.
type BlockerResult struct {
	TaskID       string           `json:"task_id"`
	Roles        []domain.Role    `json:"roles"`
	Recipients   []domain.Contact `json:"recipients"`
	UrgencyLevel domain.Urgency   `json:"urgency_level"`
}

// Engine evaluates escalation rules. It holds no mutable state.
type Engine struct {
	Rules    *rules.Tables
	Now      func() time.Time
	Location *time.Location
}

func New(tables *rules.Tables, loc *time.Location) Engine {
	return Engine{Rules: tables, Now: time.Now, Location: loc}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

func (e Engine) tables() *rules.Tables {
	if e.Rules != nil {
		return e.Rules
	}
	return rules.Default()
}

// DaysOverdue counts whole local days between the due date and today. Negative means not yet due.
func (e Engine) DaysOverdue(due time.Time) int {
	loc := e.loc()
	return dayNumber(e.now().In(loc)) - dayNumber(due.In(loc))
}

func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Evaluate recomputes the overdue escalation verdict from the task's current fields.
func (e Engine) Evaluate(task domain.Task) Result {
	res := Result{TaskID: task.ID, Tier: -1}
	if task.Status == domain.TaskCompleted {
		res.Reason = "task is completed"
		return res
	}
	rule := e.tables().EscalationFor(task.TaskType)
	res.Threshold = rule.OverdueThresholdDays
	res.UrgencyLevel = rule.UrgencyLevel
	if task.DueDate == nil {
		res.Reason = "task has no due date"
		return res
	}
	days := e.DaysOverdue(*task.DueDate)
	if days <= 0 {
		res.Reason = "task is not overdue"
		return res
	}
	res.DaysOverdue = days
	if days < rule.OverdueThresholdDays {
		res.Reason = fmt.Sprintf("overdue %d day(s), %d short of %d-day threshold",
			days, rule.OverdueThresholdDays-days, rule.OverdueThresholdDays)
		return res
	}
	res.ShouldEscalate = true
	res.Tier = Tier(days, rule.OverdueThresholdDays, len(rule.EscalationChain))
	res.EscalateTo = append([]domain.Role(nil), rule.EscalationChain[:res.Tier+1]...)
	res.Reason = fmt.Sprintf("overdue %d day(s), threshold %d; escalating to tier %d", days, rule.OverdueThresholdDays, res.Tier)
	return res
}

// Tier returns the chain index for an escalation at daysOverdue. Callers ensure days >= threshold.
func Tier(daysOverdue, threshold, chainLen int) int {
	tier := 0
	switch {
	case daysOverdue >= 3*threshold:
		tier = maxTier
	case daysOverdue >= 2*threshold:
		tier = 1
	}
	if tier > chainLen-1 {
		tier = chainLen - 1
	}
	if tier < 0 {
		tier = 0
	}
	return tier
}

// FindTasksNeedingEscalation returns the overdue tasks that should escalate, in input order.
// Completed tasks are never returned.
func (e Engine) FindTasksNeedingEscalation(tasks []domain.Task) []Candidate {
	var out []Candidate
	for _, t := range tasks {
		if t.Status == domain.TaskCompleted {
			continue
		}
		if res := e.Evaluate(t); res.ShouldEscalate {
			out = append(out, Candidate{Task: t, Result: res})
		}
	}
	return out
}

// BlockerRecipients resolves the successor roles of the task owner to stakeholder contacts.
// Roles without a stakeholder are dropped.
func (e Engine) BlockerRecipients(task domain.Task, stakeholders []domain.Stakeholder) []domain.Contact {
	var out []domain.Contact
	seen := map[string]bool{}
	for _, role := range e.tables().BlockerSuccessors(task.OwnerRole) {
		for _, s := range stakeholders {
			if s.Role != role {
				continue
			}
			key := s.ID
			if key == "" {
				key = s.Email
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s.Contact())
		}
	}
	return out
}

// EvaluateBlocker bundles roles, recipients and urgency for a blocker escalation.
func (e Engine) EvaluateBlocker(task domain.Task, stakeholders []domain.Stakeholder) BlockerResult {
	return BlockerResult{
		TaskID:       task.ID,
		Roles:        append([]domain.Role(nil), e.tables().BlockerSuccessors(task.OwnerRole)...),
		Recipients:   e.BlockerRecipients(task, stakeholders),
		UrgencyLevel: BlockerUrgency(task),
	}
}

// BlockerUrgency takes the higher of the task-type class and the task priority.
func BlockerUrgency(task domain.Task) domain.Urgency {
	t := strings.ToLower(task.TaskType)
	class := domain.PriorityMedium
	switch {
	case strings.Contains(t, "security"), strings.HasPrefix(t, "sis_"), t == "sis":
		class = domain.PriorityCritical
	case strings.Contains(t, "setup"), strings.Contains(t, "go_live"):
		class = domain.PriorityHigh
	default:
		if task.Priority.Valid() {
			return task.Priority
		}
		return domain.PriorityMedium
	}
	if task.Priority.Rank() > class.Rank() {
		return task.Priority
	}
	return class
}
