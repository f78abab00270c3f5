package audit

import (
	"strings"

	"onboardline/internal/domain"
)

// Payload is the event-specific part of an audit record. Each event type has exactly one payload shape.
type Payload interface {
	EventType() domain.EventType
	Validate() error
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return domain.ValidationError{Field: field, Reason: "required"}
	}
	return nil
}

type CustomerCreated struct {
	Name string              `json:"name"`
	Size domain.CustomerSize `json:"size,omitempty"`
}

func (CustomerCreated) EventType() domain.EventType { return domain.EventCustomerCreated }
func (p CustomerCreated) Validate() error           { return required("name", p.Name) }

type OnboardingCreated struct {
	CustomerID       string `json:"customer_id"`
	GoLiveDate       string `json:"go_live_date,omitempty"`
	StakeholderCount int    `json:"stakeholder_count"`
	IntegrationCount int    `json:"integration_count"`
	TaskCount        int    `json:"task_count"`
}

func (OnboardingCreated) EventType() domain.EventType { return domain.EventOnboardingCreated }
func (p OnboardingCreated) Validate() error           { return required("customer_id", p.CustomerID) }

type OnboardingStatusChanged struct {
	From domain.OnboardingStatus `json:"from"`
	To   domain.OnboardingStatus `json:"to"`
}

func (OnboardingStatusChanged) EventType() domain.EventType {
	return domain.EventOnboardingStatusChanged
}
func (p OnboardingStatusChanged) Validate() error { return required("to", string(p.To)) }

type StakeholderAdded struct {
	Role  domain.Role `json:"role"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

func (StakeholderAdded) EventType() domain.EventType { return domain.EventStakeholderAdded }
func (p StakeholderAdded) Validate() error {
	if !p.Role.Valid() {
		return domain.ValidationError{Field: "role", Reason: "unknown role " + string(p.Role)}
	}
	return required("email", p.Email)
}

type TaskCreated struct {
	TaskType   string          `json:"task_type"`
	OwnerRole  domain.Role     `json:"owner_role"`
	AssignedTo string          `json:"assigned_to,omitempty"`
	Priority   domain.Priority `json:"priority"`
	DueDate    string          `json:"due_date,omitempty"`
}

func (TaskCreated) EventType() domain.EventType { return domain.EventTaskCreated }
func (p TaskCreated) Validate() error {
	if err := required("task_type", p.TaskType); err != nil {
		return err
	}
	if !p.OwnerRole.Valid() {
		return domain.ValidationError{Field: "owner_role", Reason: "unknown role " + string(p.OwnerRole)}
	}
	return nil
}

type TaskStatusChanged struct {
	From   domain.TaskStatus `json:"from"`
	To     domain.TaskStatus `json:"to"`
	Forced bool              `json:"forced,omitempty"`
}

func (TaskStatusChanged) EventType() domain.EventType { return domain.EventTaskStatusChanged }
func (p TaskStatusChanged) Validate() error {
	if !p.To.Valid() {
		return domain.ValidationError{Field: "to", Reason: "unknown status " + string(p.To)}
	}
	return nil
}

type TaskAssigned struct {
	OwnerRole domain.Role `json:"owner_role"`
	From      string      `json:"from,omitempty"`
	To        string      `json:"to,omitempty"`
}

func (TaskAssigned) EventType() domain.EventType { return domain.EventTaskAssigned }
func (p TaskAssigned) Validate() error {
	if !p.OwnerRole.Valid() {
		return domain.ValidationError{Field: "owner_role", Reason: "unknown role " + string(p.OwnerRole)}
	}
	return nil
}

type BlockerCreated struct {
	TaskID    string      `json:"task_id"`
	TaskType  string      `json:"task_type"`
	Reason    string      `json:"reason"`
	OwnerRole domain.Role `json:"owner_role"`
}

func (BlockerCreated) EventType() domain.EventType { return domain.EventBlockerCreated }
func (p BlockerCreated) Validate() error {
	if err := required("task_id", p.TaskID); err != nil {
		return err
	}
	return required("reason", p.Reason)
}

type BlockerResolved struct {
	TaskID     string `json:"task_id"`
	Resolution string `json:"resolution,omitempty"`
}

func (BlockerResolved) EventType() domain.EventType { return domain.EventBlockerResolved }
func (p BlockerResolved) Validate() error           { return required("task_id", p.TaskID) }

// Escalation kinds.
const (
	KindOverdue = "overdue"
	KindBlocker = "blocker"
)

type TaskEscalated struct {
	Kind        string         `json:"kind"`
	TaskType    string         `json:"task_type"`
	DaysOverdue int            `json:"days_overdue,omitempty"`
	Threshold   int            `json:"threshold_days,omitempty"`
	Tier        int            `json:"tier"`
	EscalateTo  []domain.Role  `json:"escalate_to"`
	Urgency     domain.Urgency `json:"urgency"`
	Recipients  []string       `json:"recipients"`
}

func (TaskEscalated) EventType() domain.EventType { return domain.EventTaskEscalated }
func (p TaskEscalated) Validate() error {
	if p.Kind != KindOverdue && p.Kind != KindBlocker {
		return domain.ValidationError{Field: "kind", Reason: "must be overdue or blocker"}
	}
	if !p.Urgency.Valid() {
		return domain.ValidationError{Field: "urgency", Reason: "unknown urgency " + string(p.Urgency)}
	}
	return nil
}

type NotificationSent struct {
	NotificationType string   `json:"notification_type"`
	NotificationID   string   `json:"notification_id,omitempty"`
	Channel          string   `json:"channel"`
	Recipients       []string `json:"recipients"`
}

func (NotificationSent) EventType() domain.EventType { return domain.EventNotificationSent }
func (p NotificationSent) Validate() error {
	return required("notification_type", p.NotificationType)
}

type NotificationFailed struct {
	NotificationType string   `json:"notification_type"`
	Channel          string   `json:"channel"`
	Recipients       []string `json:"recipients"`
	Error            string   `json:"error"`
}

func (NotificationFailed) EventType() domain.EventType { return domain.EventNotificationFailed }
func (p NotificationFailed) Validate() error {
	return required("notification_type", p.NotificationType)
}

type IntegrationCreated struct {
	Name string                 `json:"name"`
	Type domain.IntegrationType `json:"type"`
}

func (IntegrationCreated) EventType() domain.EventType { return domain.EventIntegrationCreated }
func (p IntegrationCreated) Validate() error {
	if !p.Type.Valid() {
		return domain.ValidationError{Field: "type", Reason: "unknown integration type " + string(p.Type)}
	}
	return nil
}

// IntegrationConfigured records configuration keys only, never values.
type IntegrationConfigured struct {
	Keys []string `json:"keys"`
}

func (IntegrationConfigured) EventType() domain.EventType { return domain.EventIntegrationConfigured }
func (IntegrationConfigured) Validate() error             { return nil }

type IntegrationTested struct {
	OverallStatus        domain.ValidationStatus `json:"overall_status"`
	CompletionPercentage int                     `json:"completion_percentage"`
	Passed               int                     `json:"passed"`
	Total                int                     `json:"total"`
}

func (IntegrationTested) EventType() domain.EventType { return domain.EventIntegrationTested }
func (p IntegrationTested) Validate() error {
	if p.CompletionPercentage < 0 || p.CompletionPercentage > 100 {
		return domain.ValidationError{Field: "completion_percentage", Reason: "must be within 0-100"}
	}
	return required("overall_status", string(p.OverallStatus))
}

type IntegrationStatusChanged struct {
	From domain.IntegrationStatus `json:"from"`
	To   domain.IntegrationStatus `json:"to"`
}

func (IntegrationStatusChanged) EventType() domain.EventType {
	return domain.EventIntegrationStatusChanged
}
func (p IntegrationStatusChanged) Validate() error {
	if !p.To.Valid() {
		return domain.ValidationError{Field: "to", Reason: "unknown status " + string(p.To)}
	}
	return nil
}

type EscalationRunCompleted struct {
	Evaluated            int `json:"evaluated"`
	Escalated            int `json:"escalated"`
	Duplicates           int `json:"duplicates"`
	NotificationFailures int `json:"notification_failures"`
}

func (EscalationRunCompleted) EventType() domain.EventType { return domain.EventEscalationRunCompleted }
func (EscalationRunCompleted) Validate() error             { return nil }
