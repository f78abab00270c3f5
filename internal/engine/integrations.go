package engine

import (
	"context"
	"database/sql"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
	"onboardline/internal/integration"
)

func (e *Engine) GetIntegration(ctx context.Context, id string) (domain.Integration, error) {
	return e.Repo.GetIntegration(ctx, e.DB, id)
}

func (e *Engine) ListIntegrations(ctx context.Context, onboardingID string) ([]domain.Integration, error) {
	if _, err := e.Repo.GetOnboarding(ctx, e.DB, onboardingID); err != nil {
		return nil, err
	}
	out, err := e.Repo.ListIntegrations(ctx, e.DB, onboardingID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Integration{}
	}
	return out, nil
}

// AddIntegration registers another integration on an existing onboarding.
func (e *Engine) AddIntegration(ctx context.Context, onboardingID string, in IntegrationInput, o Origin) (domain.Integration, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Integration{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	typ, err := domain.ParseIntegrationType(in.Type)
	if err != nil {
		return domain.Integration{}, domain.ValidationError{Field: "type", Reason: "unknown integration type " + in.Type}
	}
	now := e.now().UTC()
	integ := domain.Integration{
		ID:            e.newID(),
		OnboardingID:  onboardingID,
		Name:          strings.TrimSpace(in.Name),
		Type:          typ,
		Configuration: in.Configuration,
		Status:        domain.IntegrationNotConfigured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(in.Configuration) > 0 {
		integ.Status = domain.IntegrationConfigured
	}
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOnboarding(ctx, tx, onboardingID); err != nil {
			return err
		}
		return e.Repo.InsertIntegration(ctx, tx, integ)
	})
	if err != nil {
		return domain.Integration{}, err
	}
	e.record(ctx, o.entry(domain.EntityIntegration, integ.ID, onboardingID, audit.IntegrationCreated{Name: integ.Name, Type: integ.Type}))
	return integ, nil
}

// ConfigureIntegration stores configuration, replacing it unless merge is set.
// An unconfigured integration moves to configured; later states are kept until the next test.
func (e *Engine) ConfigureIntegration(ctx context.Context, id string, cfg map[string]any, merge bool, o Origin) (integ domain.Integration, err error) {
	ctx, span := e.start(ctx, "engine.ConfigureIntegration", attribute.String("integration.id", id))
	defer func() { finish(span, err) }()

	if len(cfg) == 0 {
		return domain.Integration{}, domain.ValidationError{Field: "configuration", Reason: "must not be empty"}
	}
	var prev domain.Integration
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = e.Repo.GetIntegration(ctx, tx, id); err != nil {
			return err
		}
		integ = prev
		next := map[string]any{}
		if merge {
			maps.Copy(next, prev.Configuration)
		}
		maps.Copy(next, cfg)
		integ.Configuration = next
		if integ.Status == domain.IntegrationNotConfigured {
			integ.Status = domain.IntegrationConfigured
		}
		integ.UpdatedAt = e.now().UTC()
		return e.Repo.UpdateIntegration(ctx, tx, integ)
	})
	if err != nil {
		return domain.Integration{}, err
	}
	entries := []audit.Entry{
		o.entry(domain.EntityIntegration, id, integ.OnboardingID, audit.IntegrationConfigured{Keys: slices.Sorted(maps.Keys(cfg))}),
	}
	if prev.Status != integ.Status {
		entries = append(entries, o.entry(domain.EntityIntegration, id, integ.OnboardingID, audit.IntegrationStatusChanged{From: prev.Status, To: integ.Status}))
	}
	e.record(ctx, entries...)
	return integ, nil
}

// TestOutcome is the stored integration with the validation that produced its status.
type TestOutcome struct {
	Integration   domain.Integration      `json:"integration"`
	Validation    domain.ValidationResult `json:"validation"`
	StatusChanged bool                    `json:"status_changed"`
}

// TestIntegration runs the validation battery and persists the result and derived status.
func (e *Engine) TestIntegration(ctx context.Context, id string, o Origin) (out TestOutcome, err error) {
	ctx, span := e.start(ctx, "engine.TestIntegration", attribute.String("integration.id", id))
	defer func() { finish(span, err) }()

	prev, err := e.Repo.GetIntegration(ctx, e.DB, id)
	if err != nil {
		return TestOutcome{}, err
	}
	res := e.validator().RunTests(ctx, prev)
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetIntegration(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.UpdatedAt.Equal(prev.UpdatedAt) {
			return domain.ValidationError{Field: "integration", Reason: "changed while the test was running; retry"}
		}
		next, changed := integration.Apply(cur, res)
		next.UpdatedAt = e.now().UTC()
		out = TestOutcome{Integration: next, Validation: res, StatusChanged: changed}
		return e.Repo.UpdateIntegration(ctx, tx, next)
	})
	if err != nil {
		return TestOutcome{}, err
	}
	e.Metrics.Validation(string(prev.Type), string(res.OverallStatus))

	passed := 0
	for _, t := range res.Tests {
		if t.Passed {
			passed++
		}
	}
	if o.Source == "" {
		o.Source = SourceValidator
	}
	entries := []audit.Entry{o.entry(domain.EntityIntegration, id, prev.OnboardingID, audit.IntegrationTested{
		OverallStatus:        res.OverallStatus,
		CompletionPercentage: res.CompletionPercentage,
		Passed:               passed,
		Total:                len(res.Tests),
	})}
	if out.StatusChanged {
		entries = append(entries, o.entry(domain.EntityIntegration, id, prev.OnboardingID, audit.IntegrationStatusChanged{From: prev.Status, To: out.Integration.Status}))
	}
	e.record(ctx, entries...)
	e.Logger.Info("integration tested", "id", id, "type", prev.Type, "status", res.OverallStatus, "pct", res.CompletionPercentage)
	return out, nil
}

func (e *Engine) IntegrationProgress(ctx context.Context, onboardingID string) (integration.Progress, error) {
	list, err := e.ListIntegrations(ctx, onboardingID)
	if err != nil {
		return integration.Progress{}, err
	}
	return integration.CalculateProgress(list), nil
}

// IntegrationReport renders the plain-text status report for an onboarding's integrations.
func (e *Engine) IntegrationReport(ctx context.Context, onboardingID string) (string, error) {
	list, err := e.ListIntegrations(ctx, onboardingID)
	if err != nil {
		return "", err
	}
	return integration.GenerateStatusReport(list), nil
}

// Instructions returns setup instructions for an integration type and role.
// Unknown types fall back to the custom guide.
func (e *Engine) Instructions(integrationType string, role domain.Role) integration.InstructionSet {
	t, err := domain.ParseIntegrationType(integrationType)
	if err != nil {
		t = domain.IntegrationOther
	}
	return integration.Instructions(t, role)
}
