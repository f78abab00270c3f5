package server

import (
	"onboardline/internal/domain"
	"onboardline/internal/escalation"
	"onboardline/internal/integration"
)

// Request payloads

type CustomerRequest struct {
	Name         string `json:"name" minLength:"1"`
	Size         string `json:"size,omitempty" enum:"small,medium,large,enterprise"`
	ContactEmail string `json:"contact_email,omitempty"`
}

type StakeholderRequest struct {
	Role             string   `json:"role" enum:"owner,it_contact,project_manager,technical_lead"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone,omitempty"`
	Responsibilities []string `json:"responsibilities,omitempty"`
}

type IntegrationRequest struct {
	Name          string         `json:"name"`
	Type          string         `json:"type" doc:"SIS, CRM, SFTP, API or other, any casing"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

type CreateOnboardingRequest struct {
	Customer     CustomerRequest      `json:"customer"`
	GoLiveDate   string               `json:"go_live_date,omitempty" doc:"YYYY-MM-DD or RFC 3339"`
	Stakeholders []StakeholderRequest `json:"stakeholders,omitempty"`
	Integrations []IntegrationRequest `json:"integrations,omitempty"`
	Notes        string               `json:"notes,omitempty"`
}

type UpdateOnboardingStatusRequest struct {
	Status string `json:"status" enum:"active,paused,completed"`
	Notes  string `json:"notes,omitempty"`
}

type CreateTaskRequest struct {
	TaskType string `json:"task_type"`
	Title    string `json:"title,omitempty"`
	Priority string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Notes    string `json:"notes,omitempty"`
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status" enum:"pending,in_progress,completed,blocked"`
	Force  bool   `json:"force,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type SetBlockerRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes,omitempty"`
}

type ResolveBlockerRequest struct {
	Resolution string `json:"resolution,omitempty"`
	Status     string `json:"status,omitempty" enum:"pending,in_progress"`
	Notes      string `json:"notes,omitempty"`
}

type ReassignTaskRequest struct {
	StakeholderID string `json:"stakeholder_id,omitempty" doc:"Empty re-runs rule-based assignment"`
	Notes         string `json:"notes,omitempty"`
}

type ConfigureIntegrationRequest struct {
	Configuration map[string]any `json:"configuration"`
	Merge         bool           `json:"merge,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

type RunEscalationsRequest struct {
	OnboardingID string `json:"onboarding_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type SendRemindersRequest struct {
	OnboardingID string `json:"onboarding_id,omitempty"`
	Days         int    `json:"days,omitempty" minimum:"0"`
}

type AuditQueryRequest struct {
	EntityType   string `json:"entity_type,omitempty"`
	EntityID     string `json:"entity_id,omitempty"`
	EventType    string `json:"event_type,omitempty"`
	OnboardingID string `json:"onboarding_id,omitempty"`
	Source       string `json:"source,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	Filter       string `json:"filter,omitempty" doc:"AIP-160 filter expression"`
}

// Response payloads

type HealthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int    `json:"schema_version"`
}

type OnboardingList struct {
	Items []domain.Onboarding `json:"items"`
}

type TaskList struct {
	Items []domain.Task `json:"items"`
}

type IntegrationList struct {
	Items []domain.Integration `json:"items"`
}

type CandidateList struct {
	Items []escalation.Candidate `json:"items"`
}

type AuditRecordList struct {
	Items  []domain.AuditRecord `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type ReportResponse struct {
	OnboardingID string               `json:"onboarding_id"`
	Progress     integration.Progress `json:"progress"`
	Report       string               `json:"report"`
}
