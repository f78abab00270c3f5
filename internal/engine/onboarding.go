package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
	"onboardline/internal/integration"
	"onboardline/internal/repo"
)

type CustomerInput struct {
	Name         string              `json:"name"`
	Size         domain.CustomerSize `json:"size,omitempty"`
	ContactEmail string              `json:"contact_email,omitempty"`
}

type StakeholderInput struct {
	Role             domain.Role `json:"role"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone,omitempty"`
	Responsibilities []string    `json:"responsibilities,omitempty"`
}

type IntegrationInput struct {
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// OnboardingInput is everything needed to open an onboarding in one step.
type OnboardingInput struct {
	Customer     CustomerInput      `json:"customer"`
	GoLiveDate   *time.Time         `json:"go_live_date,omitempty"`
	Stakeholders []StakeholderInput `json:"stakeholders"`
	Integrations []IntegrationInput `json:"integrations"`
	Origin       Origin             `json:"-"`
}

// OnboardingDetail is an onboarding with its owned entities.
type OnboardingDetail struct {
	Onboarding   domain.Onboarding    `json:"onboarding"`
	Customer     domain.Customer      `json:"customer"`
	Stakeholders []domain.Stakeholder `json:"stakeholders"`
	Integrations []domain.Integration `json:"integrations"`
	Tasks        []domain.Task        `json:"tasks"`
}

func validateEmail(field, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.ValidationError{Field: field, Reason: "required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return domain.ValidationError{Field: field, Reason: "invalid email address " + email}
	}
	return nil
}

func (in StakeholderInput) validate(field string) error {
	if !in.Role.Valid() {
		return domain.ValidationError{Field: field + ".role", Reason: "unknown role " + string(in.Role)}
	}
	if strings.TrimSpace(in.Name) == "" {
		return domain.ValidationError{Field: field + ".name", Reason: "required"}
	}
	return validateEmail(field+".email", in.Email)
}

func (e *Engine) validateOnboarding(in *OnboardingInput) ([]domain.IntegrationType, error) {
	if strings.TrimSpace(in.Customer.Name) == "" {
		return nil, domain.ValidationError{Field: "customer.name", Reason: "required"}
	}
	if in.Customer.Size == "" {
		in.Customer.Size = domain.SizeMedium
	}
	if !in.Customer.Size.Valid() {
		return nil, domain.ValidationError{Field: "customer.size", Reason: "must be one of small, medium, large, enterprise"}
	}
	if in.Customer.ContactEmail != "" {
		if err := validateEmail("customer.contact_email", in.Customer.ContactEmail); err != nil {
			return nil, err
		}
	}
	if in.GoLiveDate != nil && !in.GoLiveDate.After(e.now()) {
		return nil, domain.ValidationError{Field: "go_live_date", Reason: "must be in the future"}
	}
	for i, s := range in.Stakeholders {
		if err := s.validate(fmt.Sprintf("stakeholders[%d]", i)); err != nil {
			return nil, err
		}
	}
	types := make([]domain.IntegrationType, len(in.Integrations))
	for i, integ := range in.Integrations {
		if strings.TrimSpace(integ.Name) == "" {
			return nil, domain.ValidationError{Field: fmt.Sprintf("integrations[%d].name", i), Reason: "required"}
		}
		t, err := domain.ParseIntegrationType(integ.Type)
		if err != nil {
			return nil, domain.ValidationError{Field: fmt.Sprintf("integrations[%d].type", i), Reason: "must be one of SIS, CRM, SFTP, API, other"}
		}
		types[i] = t
	}
	return types, nil
}

type plannedTask struct {
	taskType string
	title    string
}

// initialTasks is the standard task set for a new onboarding.
func initialTasks(integrations []domain.Integration) []plannedTask {
	out := []plannedTask{
		{"kickoff_meeting", "Kickoff meeting"},
		{"requirements_gathering", "Requirements gathering"},
	}
	for _, in := range integrations {
		prefix := in.Type.TaskPrefix()
		label := strings.ToUpper(prefix)
		if in.Type == domain.IntegrationOther {
			label = "Integration"
		}
		out = append(out,
			plannedTask{prefix + "_setup", fmt.Sprintf("%s setup: %s", label, in.Name)},
			plannedTask{prefix + "_testing", fmt.Sprintf("%s testing: %s", label, in.Name)},
		)
	}
	return append(out,
		plannedTask{"security_review", "Security review"},
		plannedTask{"user_training", "User training"},
		plannedTask{"go_live_preparation", "Go-live preparation"},
	)
}

// CreateOnboarding validates the intake and writes customer, onboarding, stakeholders,
// integrations and the initial task set in one transaction.
func (e *Engine) CreateOnboarding(ctx context.Context, in OnboardingInput) (detail OnboardingDetail, err error) {
	ctx, span := e.start(ctx, "engine.CreateOnboarding")
	defer func() { finish(span, err) }()

	types, err := e.validateOnboarding(&in)
	if err != nil {
		return OnboardingDetail{}, err
	}
	now := e.now().UTC()
	customer := domain.Customer{
		ID:           e.newID(),
		Name:         strings.TrimSpace(in.Customer.Name),
		Size:         in.Customer.Size,
		ContactEmail: strings.TrimSpace(in.Customer.ContactEmail),
		CreatedAt:    now,
	}
	ob := domain.Onboarding{
		ID:         e.newID(),
		CustomerID: customer.ID,
		Status:     domain.OnboardingActive,
		GoLiveDate: in.GoLiveDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	detail = OnboardingDetail{Onboarding: ob, Customer: customer}
	for _, s := range in.Stakeholders {
		detail.Stakeholders = append(detail.Stakeholders, domain.Stakeholder{
			ID:               e.newID(),
			OnboardingID:     ob.ID,
			Role:             s.Role,
			Name:             strings.TrimSpace(s.Name),
			Email:            strings.TrimSpace(s.Email),
			Phone:            s.Phone,
			Responsibilities: s.Responsibilities,
			CreatedAt:        now,
		})
	}
	for i, integ := range in.Integrations {
		status := domain.IntegrationNotConfigured
		if len(integ.Configuration) > 0 {
			status = domain.IntegrationConfigured
		}
		detail.Integrations = append(detail.Integrations, domain.Integration{
			ID:            e.newID(),
			OnboardingID:  ob.ID,
			Name:          strings.TrimSpace(integ.Name),
			Type:          types[i],
			Configuration: integ.Configuration,
			Status:        status,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	res := e.resolver()
	for _, p := range initialTasks(detail.Integrations) {
		a := res.Assign(p.taskType, detail.Stakeholders)
		due := res.DueDate(p.taskType, in.GoLiveDate, customer.Size)
		t := domain.Task{
			ID:           e.newID(),
			OnboardingID: ob.ID,
			Title:        p.title,
			TaskType:     p.taskType,
			OwnerRole:    a.OwnerRole,
			Status:       domain.TaskPending,
			Priority:     res.Priority(p.taskType),
			DueDate:      &due,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if a.AssignedTo != nil {
			id := a.AssignedTo.StakeholderID
			t.AssignedTo = &id
		}
		detail.Tasks = append(detail.Tasks, t)
	}

	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertCustomer(ctx, tx, customer); err != nil {
			return fmt.Errorf("insert customer: %w", err)
		}
		if err := e.Repo.InsertOnboarding(ctx, tx, ob); err != nil {
			return fmt.Errorf("insert onboarding: %w", err)
		}
		for _, s := range detail.Stakeholders {
			if err := e.Repo.InsertStakeholder(ctx, tx, s); err != nil {
				return fmt.Errorf("insert stakeholder: %w", err)
			}
		}
		for _, integ := range detail.Integrations {
			if err := e.Repo.InsertIntegration(ctx, tx, integ); err != nil {
				return fmt.Errorf("insert integration: %w", err)
			}
		}
		for _, t := range detail.Tasks {
			if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
				return fmt.Errorf("insert task %s: %w", t.TaskType, err)
			}
		}
		return nil
	})
	if err != nil {
		return OnboardingDetail{}, err
	}
	span.SetAttributes(attribute.String("onboarding.id", ob.ID), attribute.Int("tasks", len(detail.Tasks)))

	o := in.Origin
	entries := []audit.Entry{
		o.entry(domain.EntityCustomer, customer.ID, ob.ID, audit.CustomerCreated{Name: customer.Name, Size: customer.Size}),
		o.entry(domain.EntityOnboarding, ob.ID, ob.ID, audit.OnboardingCreated{
			CustomerID:       customer.ID,
			GoLiveDate:       dateString(ob.GoLiveDate),
			StakeholderCount: len(detail.Stakeholders),
			IntegrationCount: len(detail.Integrations),
			TaskCount:        len(detail.Tasks),
		}),
	}
	for _, s := range detail.Stakeholders {
		entries = append(entries, o.entry(domain.EntityStakeholder, s.ID, ob.ID, audit.StakeholderAdded{Role: s.Role, Name: s.Name, Email: s.Email}))
	}
	for _, integ := range detail.Integrations {
		entries = append(entries, o.entry(domain.EntityIntegration, integ.ID, ob.ID, audit.IntegrationCreated{Name: integ.Name, Type: integ.Type}))
	}
	for _, t := range detail.Tasks {
		entries = append(entries, o.entry(domain.EntityTask, t.ID, ob.ID, audit.TaskCreated{
			TaskType:   t.TaskType,
			OwnerRole:  t.OwnerRole,
			AssignedTo: deref(t.AssignedTo),
			Priority:   t.Priority,
			DueDate:    dateString(t.DueDate),
		}))
	}
	e.record(ctx, entries...)
	e.Logger.Info("onboarding created", "id", ob.ID, "customer", customer.Name, "tasks", len(detail.Tasks), "integrations", len(detail.Integrations))
	return detail, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetOnboarding loads an onboarding with its customer, stakeholders, integrations and tasks.
func (e *Engine) GetOnboarding(ctx context.Context, id string) (OnboardingDetail, error) {
	q := e.DB
	ob, err := e.Repo.GetOnboarding(ctx, q, id)
	if err != nil {
		return OnboardingDetail{}, err
	}
	c, err := e.Repo.GetCustomer(ctx, q, ob.CustomerID)
	if err != nil {
		return OnboardingDetail{}, err
	}
	stakeholders, err := e.Repo.ListStakeholders(ctx, q, id)
	if err != nil {
		return OnboardingDetail{}, err
	}
	integrations, err := e.Repo.ListIntegrations(ctx, q, id)
	if err != nil {
		return OnboardingDetail{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, q, repo.TaskFilter{OnboardingID: id})
	if err != nil {
		return OnboardingDetail{}, err
	}
	return OnboardingDetail{Onboarding: ob, Customer: c, Stakeholders: stakeholders, Integrations: integrations, Tasks: tasks}, nil
}

func (e *Engine) ListOnboardings(ctx context.Context, f repo.OnboardingFilter) ([]domain.Onboarding, error) {
	return e.Repo.ListOnboardings(ctx, e.DB, f)
}

// SetOnboardingStatus moves an onboarding between active, paused and completed.
func (e *Engine) SetOnboardingStatus(ctx context.Context, id string, status domain.OnboardingStatus, o Origin) (domain.Onboarding, error) {
	switch status {
	case domain.OnboardingActive, domain.OnboardingPaused, domain.OnboardingCompleted:
	default:
		return domain.Onboarding{}, domain.ValidationError{Field: "status", Reason: "must be active, paused or completed"}
	}
	var prev, ob domain.Onboarding
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = e.Repo.GetOnboarding(ctx, tx, id); err != nil {
			return err
		}
		ob = prev
		ob.Status = status
		ob.UpdatedAt = e.now().UTC()
		return e.Repo.UpdateOnboardingStatus(ctx, tx, ob)
	})
	if err != nil {
		return domain.Onboarding{}, err
	}
	if prev.Status != status {
		e.record(ctx, o.entry(domain.EntityOnboarding, id, id, audit.OnboardingStatusChanged{From: prev.Status, To: status}))
	}
	return ob, nil
}

// AddStakeholder appends a stakeholder to an onboarding. Existing task assignments are not changed.
func (e *Engine) AddStakeholder(ctx context.Context, onboardingID string, in StakeholderInput, o Origin) (domain.Stakeholder, error) {
	if err := in.validate("stakeholder"); err != nil {
		return domain.Stakeholder{}, err
	}
	s := domain.Stakeholder{
		ID:               e.newID(),
		OnboardingID:     onboardingID,
		Role:             in.Role,
		Name:             strings.TrimSpace(in.Name),
		Email:            strings.TrimSpace(in.Email),
		Phone:            in.Phone,
		Responsibilities: in.Responsibilities,
		CreatedAt:        e.now().UTC(),
	}
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOnboarding(ctx, tx, onboardingID); err != nil {
			return err
		}
		return e.Repo.InsertStakeholder(ctx, tx, s)
	})
	if err != nil {
		return domain.Stakeholder{}, err
	}
	e.record(ctx, o.entry(domain.EntityStakeholder, s.ID, onboardingID, audit.StakeholderAdded{Role: s.Role, Name: s.Name, Email: s.Email}))
	return s, nil
}

// Progress summarizes where an onboarding stands.
type Progress struct {
	OnboardingID   string                    `json:"onboarding_id"`
	Status         domain.OnboardingStatus   `json:"status"`
	TotalTasks     int                       `json:"total_tasks"`
	CompletedTasks int                       `json:"completed_tasks"`
	Percentage     int                       `json:"percentage"`
	TasksByStatus  map[domain.TaskStatus]int `json:"tasks_by_status"`
	OverdueTasks   int                       `json:"overdue_tasks"`
	Blockers       []domain.Task             `json:"blockers"`
	Integrations   integration.Progress      `json:"integrations"`
	DaysToGoLive   *int                      `json:"days_to_go_live,omitempty"`
}

func (e *Engine) OnboardingProgress(ctx context.Context, id string) (Progress, error) {
	ob, err := e.Repo.GetOnboarding(ctx, e.DB, id)
	if err != nil {
		return Progress{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, e.DB, repo.TaskFilter{OnboardingID: id})
	if err != nil {
		return Progress{}, err
	}
	integrations, err := e.Repo.ListIntegrations(ctx, e.DB, id)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{
		OnboardingID:  id,
		Status:        ob.Status,
		TotalTasks:    len(tasks),
		TasksByStatus: map[domain.TaskStatus]int{},
		Blockers:      []domain.Task{},
		Integrations:  integration.CalculateProgress(integrations),
	}
	for _, s := range []domain.TaskStatus{domain.TaskPending, domain.TaskInProgress, domain.TaskBlocked, domain.TaskCompleted} {
		p.TasksByStatus[s] = 0
	}
	esc := e.escalator()
	for _, t := range tasks {
		p.TasksByStatus[t.Status]++
		if t.Status == domain.TaskCompleted {
			p.CompletedTasks++
			continue
		}
		if t.IsBlocker {
			p.Blockers = append(p.Blockers, t)
		}
		if t.DueDate != nil && esc.DaysOverdue(*t.DueDate) > 0 {
			p.OverdueTasks++
		}
	}
	if p.TotalTasks > 0 {
		p.Percentage = integration.Percentage(p.CompletedTasks, p.TotalTasks)
	}
	if ob.GoLiveDate != nil {
		d := -esc.DaysOverdue(*ob.GoLiveDate)
		p.DaysToGoLive = &d
	}
	return p, nil
}
