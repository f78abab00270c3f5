package domain

import (
	"strings"
	"time"
)

// Role is one of the fixed stakeholder roles.
type Role string

const (
	RoleOwner          Role = "owner"
	RoleITContact      Role = "it_contact"
	RoleProjectManager Role = "project_manager"
	RoleTechnicalLead  Role = "technical_lead"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleOwner, RoleITContact, RoleProjectManager, RoleTechnicalLead}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleITContact, RoleProjectManager, RoleTechnicalLead:
		return true
	}
	return false
}

// Technical reports whether the role is expected to do hands-on integration work.
func (r Role) Technical() bool {
	return r == RoleITContact || r == RoleTechnicalLead
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskBlocked:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities; zero means unknown.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// Urgency shares the priority scale and is used for escalations and notifications.
type Urgency = Priority

type IntegrationType string

const (
	IntegrationSIS   IntegrationType = "SIS"
	IntegrationCRM   IntegrationType = "CRM"
	IntegrationSFTP  IntegrationType = "SFTP"
	IntegrationAPI   IntegrationType = "API"
	IntegrationOther IntegrationType = "other"
)

var IntegrationTypes = []IntegrationType{IntegrationSIS, IntegrationCRM, IntegrationSFTP, IntegrationAPI, IntegrationOther}

func (t IntegrationType) Valid() bool {
	switch t {
	case IntegrationSIS, IntegrationCRM, IntegrationSFTP, IntegrationAPI, IntegrationOther:
		return true
	}
	return false
}

// ParseIntegrationType accepts any casing ("sis", "Sis", "SIS").
func ParseIntegrationType(s string) (IntegrationType, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(IntegrationOther)) {
		return IntegrationOther, nil
	}
	t := IntegrationType(strings.ToUpper(s))
	if !t.Valid() {
		return "", ValidationError{Field: "type", Reason: "must be one of SIS, CRM, SFTP, API, other"}
	}
	return t, nil
}

// TaskPrefix is the lowercase token used in generated task types, e.g. "sis" in "sis_setup".
func (t IntegrationType) TaskPrefix() string {
	if t == IntegrationOther || !t.Valid() {
		return "integration"
	}
	return strings.ToLower(string(t))
}

type IntegrationStatus string

const (
	IntegrationNotConfigured IntegrationStatus = "not_configured"
	IntegrationConfigured    IntegrationStatus = "configured"
	IntegrationTesting       IntegrationStatus = "testing"
	IntegrationActive        IntegrationStatus = "active"
	IntegrationFailed        IntegrationStatus = "failed"
)

var IntegrationStatuses = []IntegrationStatus{
	IntegrationNotConfigured, IntegrationConfigured, IntegrationTesting, IntegrationActive, IntegrationFailed,
}

func (s IntegrationStatus) Valid() bool {
	switch s {
	case IntegrationNotConfigured, IntegrationConfigured, IntegrationTesting, IntegrationActive, IntegrationFailed:
		return true
	}
	return false
}

type CustomerSize string

const (
	SizeSmall      CustomerSize = "small"
	SizeMedium     CustomerSize = "medium"
	SizeLarge      CustomerSize = "large"
	SizeEnterprise CustomerSize = "enterprise"
)

func (s CustomerSize) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge, SizeEnterprise:
		return true
	}
	return false
}

type OnboardingStatus string

const (
	OnboardingActive    OnboardingStatus = "active"
	OnboardingPaused    OnboardingStatus = "paused"
	OnboardingCompleted OnboardingStatus = "completed"
)

type Customer struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Size         CustomerSize `json:"size"`
	ContactEmail string       `json:"contact_email,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

type Onboarding struct {
	ID         string           `json:"id"`
	CustomerID string           `json:"customer_id"`
	Status     OnboardingStatus `json:"status" enum:"active,paused,completed"`
	GoLiveDate *time.Time       `json:"go_live_date,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type Task struct {
	ID            string     `json:"id"`
	OnboardingID  string     `json:"onboarding_id"`
	Title         string     `json:"title"`
	TaskType      string     `json:"task_type"`
	OwnerRole     Role       `json:"owner_role" enum:"owner,it_contact,project_manager,technical_lead"`
	AssignedTo    *string    `json:"assigned_to,omitempty"`
	Status        TaskStatus `json:"status" enum:"pending,in_progress,completed,blocked"`
	Priority      Priority   `json:"priority" enum:"low,medium,high,critical"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	IsBlocker     bool       `json:"is_blocker"`
	BlockerReason string     `json:"blocker_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate checks the task invariants that must hold before any write.
func (t Task) Validate() error {
	if strings.TrimSpace(t.TaskType) == "" {
		return ValidationError{Field: "task_type", Reason: "required"}
	}
	if !t.OwnerRole.Valid() {
		return ValidationError{Field: "owner_role", Reason: "unknown role " + string(t.OwnerRole)}
	}
	if !t.Status.Valid() {
		return ValidationError{Field: "status", Reason: "unknown status " + string(t.Status)}
	}
	if !t.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: "unknown priority " + string(t.Priority)}
	}
	if t.IsBlocker && strings.TrimSpace(t.BlockerReason) == "" {
		return ValidationError{Field: "blocker_reason", Reason: "required when task is a blocker"}
	}
	if t.Status == TaskCompleted {
		if t.CompletedAt == nil {
			return ValidationError{Field: "completed_at", Reason: "required when task is completed"}
		}
		if t.IsBlocker {
			return ValidationError{Field: "is_blocker", Reason: "completed task cannot be a blocker"}
		}
	}
	return nil
}

type Stakeholder struct {
	ID               string    `json:"id"`
	OnboardingID     string    `json:"onboarding_id"`
	Role             Role      `json:"role" enum:"owner,it_contact,project_manager,technical_lead"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	Responsibilities []string  `json:"responsibilities,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Contact is the addressable identity of a stakeholder.
type Contact struct {
	StakeholderID string `json:"stakeholder_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
}

func (s Stakeholder) Contact() Contact {
	return Contact{StakeholderID: s.ID, Name: s.Name, Email: s.Email, Role: s.Role}
}

type Integration struct {
	ID            string            `json:"id"`
	OnboardingID  string            `json:"onboarding_id"`
	Name          string            `json:"name"`
	Type          IntegrationType   `json:"type" enum:"SIS,CRM,SFTP,API,other"`
	Configuration map[string]any    `json:"configuration,omitempty"`
	Status        IntegrationStatus `json:"status" enum:"not_configured,configured,testing,active,failed"`
	TestResults   *ValidationResult `json:"test_results,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type TestType string

const (
	TestConnectivity   TestType = "connectivity"
	TestAuthentication TestType = "authentication"
	TestDataFlow       TestType = "data_flow"
	TestConfiguration  TestType = "configuration"
)

type TestResult struct {
	Name     string    `json:"name"`
	TestType TestType  `json:"test_type" enum:"connectivity,authentication,data_flow,configuration"`
	Passed   bool      `json:"passed"`
	Message  string    `json:"message"`
	RanAt    time.Time `json:"ran_at"`
}

type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

type ValidationResult struct {
	IntegrationID        string           `json:"integration_id"`
	Tests                []TestResult     `json:"tests"`
	OverallStatus        ValidationStatus `json:"overall_status" enum:"passed,warning,failed"`
	CompletionPercentage int              `json:"completion_percentage"`
	NextSteps            []string         `json:"next_steps"`
	TestedAt             time.Time        `json:"tested_at"`
}

// EntityType names what an audit record is about.
type EntityType string

const (
	EntityCustomer    EntityType = "customer"
	EntityOnboarding  EntityType = "onboarding"
	EntityTask        EntityType = "task"
	EntityStakeholder EntityType = "stakeholder"
	EntityIntegration EntityType = "integration"
	EntityBlocker     EntityType = "blocker"
	EntityEscalation  EntityType = "escalation"
	EntitySystem      EntityType = "system"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityCustomer, EntityOnboarding, EntityTask, EntityStakeholder, EntityIntegration,
		EntityBlocker, EntityEscalation, EntitySystem:
		return true
	}
	return false
}

// EventType is the closed set of causally meaningful audit events.
type EventType string

const (
	EventCustomerCreated          EventType = "customer_created"
	EventOnboardingCreated        EventType = "onboarding_created"
	EventOnboardingStatusChanged  EventType = "onboarding_status_changed"
	EventStakeholderAdded         EventType = "stakeholder_added"
	EventTaskCreated              EventType = "task_created"
	EventTaskStatusChanged        EventType = "task_status_changed"
	EventTaskAssigned             EventType = "task_assigned"
	EventBlockerCreated           EventType = "blocker_created"
	EventBlockerResolved          EventType = "blocker_resolved"
	EventTaskEscalated            EventType = "task_escalated"
	EventNotificationSent         EventType = "notification_sent"
	EventNotificationFailed       EventType = "notification_failed"
	EventIntegrationCreated       EventType = "integration_created"
	EventIntegrationConfigured    EventType = "integration_configured"
	EventIntegrationTested        EventType = "integration_tested"
	EventIntegrationStatusChanged EventType = "integration_status_changed"
	EventEscalationRunCompleted   EventType = "escalation_run_completed"
)

type AuditRecord struct {
	ID           string         `json:"id"`
	EntityType   EntityType     `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	EventType    EventType      `json:"event_type"`
	OnboardingID string         `json:"onboarding_id,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	DedupKey     string         `json:"dedup_key,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Source returns the envelope source of the record.
func (r AuditRecord) Source() string {
	s, _ := r.Metadata["source"].(string)
	return s
}
