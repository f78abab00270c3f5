package onboardlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Onboardline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Onboarding represents the API onboarding model (partial).
type Onboarding struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	GoLiveDate string `json:"go_live_date,omitempty"`
}

// Stakeholder is a contact attached to an onboarding.
type Stakeholder struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Integration represents the API integration model (partial).
type Integration struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Status        string         `json:"status,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID            string  `json:"id"`
	OnboardingID  string  `json:"onboarding_id"`
	Title         string  `json:"title"`
	TaskType      string  `json:"task_type"`
	OwnerRole     string  `json:"owner_role"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Status        string  `json:"status"`
	Priority      string  `json:"priority"`
	DueDate       string  `json:"due_date,omitempty"`
	IsBlocker     bool    `json:"is_blocker"`
	BlockerReason string  `json:"blocker_reason,omitempty"`
}

// OnboardingDetail is an onboarding with everything it owns.
type OnboardingDetail struct {
	Onboarding   Onboarding    `json:"onboarding"`
	Stakeholders []Stakeholder `json:"stakeholders"`
	Integrations []Integration `json:"integrations"`
	Tasks        []Task        `json:"tasks"`
}

// CreateOnboardingInput is the intake payload.
type CreateOnboardingInput struct {
	CustomerName string
	CustomerSize string
	// GoLiveDate is YYYY-MM-DD or RFC 3339.
	GoLiveDate   string
	Stakeholders []Stakeholder
	Integrations []Integration
}

// NotificationResult is a delivery outcome.
type NotificationResult struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BlockerOutcome is returned when a task is flagged as a blocker.
type BlockerOutcome struct {
	Task         Task                `json:"task"`
	Duplicate    bool                `json:"duplicate"`
	Notification *NotificationResult `json:"notification,omitempty"`
}

// EscalationReport summarizes one escalation run.
type EscalationReport struct {
	RanAt                string `json:"ran_at"`
	Evaluated            int    `json:"evaluated"`
	Escalated            int    `json:"escalated"`
	Duplicates           int    `json:"duplicates"`
	NotificationFailures int    `json:"notification_failures"`
}

// AuditRecord represents a ledger entry.
type AuditRecord struct {
	ID           string         `json:"id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	EventType    string         `json:"event_type"`
	OnboardingID string         `json:"onboarding_id,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	DedupKey     string         `json:"dedup_key,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

// AuditQuery filters audit listings. Zero values are omitted.
type AuditQuery struct {
	EntityType   string
	EntityID     string
	EventType    string
	OnboardingID string
	From         string
	To           string
	Filter       string
	Limit        int
	Offset       int
}

func (q AuditQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("entity_type", q.EntityType)
	set("entity_id", q.EntityID)
	set("event_type", q.EventType)
	set("onboarding_id", q.OnboardingID)
	set("from", q.From)
	set("to", q.To)
	set("filter", q.Filter)
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprint(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", fmt.Sprint(q.Offset))
	}
	return v
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateOnboarding opens an onboarding.
func (c *Client) CreateOnboarding(ctx context.Context, in CreateOnboardingInput) (OnboardingDetail, error) {
	body := map[string]any{
		"customer":     map[string]any{"name": in.CustomerName, "size": in.CustomerSize},
		"stakeholders": in.Stakeholders,
		"integrations": in.Integrations,
	}
	if in.CustomerSize == "" {
		body["customer"] = map[string]any{"name": in.CustomerName}
	}
	if in.GoLiveDate != "" {
		body["go_live_date"] = in.GoLiveDate
	}
	var resp OnboardingDetail
	err := c.do(ctx, http.MethodPost, "onboardings", body, &resp)
	return resp, err
}

// GetOnboarding fetches an onboarding with its owned entities.
func (c *Client) GetOnboarding(ctx context.Context, id string) (OnboardingDetail, error) {
	var resp OnboardingDetail
	err := c.do(ctx, http.MethodGet, "onboardings/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Tasks lists an onboarding's tasks.
func (c *Client) Tasks(ctx context.Context, onboardingID string, openOnly bool) ([]Task, error) {
	endpoint := fmt.Sprintf("onboardings/%s/tasks", url.PathEscape(onboardingID))
	if openOnly {
		endpoint += "?open=true"
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateTaskStatus moves a task through its lifecycle.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string, force bool) (Task, error) {
	body := map[string]any{"status": status, "force": force}
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%s/status", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// SetBlocker flags a task as a blocker.
func (c *Client) SetBlocker(ctx context.Context, taskID, reason string) (BlockerOutcome, error) {
	var resp BlockerOutcome
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/blocker", url.PathEscape(taskID)), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// ResolveBlocker clears a blocker.
func (c *Client) ResolveBlocker(ctx context.Context, taskID, resolution string) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/blocker/resolve", url.PathEscape(taskID)), map[string]any{"resolution": resolution}, &resp)
	return resp.Task, err
}

// RunEscalations escalates overdue tasks. An empty onboardingID covers all active onboardings.
func (c *Client) RunEscalations(ctx context.Context, onboardingID string) (EscalationReport, error) {
	var resp EscalationReport
	err := c.do(ctx, http.MethodPost, "escalations/run", map[string]any{"onboarding_id": onboardingID}, &resp)
	return resp, err
}

// Audit queries the ledger, newest first.
func (c *Client) Audit(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	endpoint := "audit"
	if v := q.values(); len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var resp struct {
		Items []AuditRecord `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
