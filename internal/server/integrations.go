package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/integration"
)

func (s *handlers) registerIntegrations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-integrations",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}/integrations",
		Summary:     "List integrations",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
	}) (*struct {
		Body IntegrationList `json:"body"`
	}, error) {
		items, err := s.e.ListIntegrations(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationList `json:"body"`
		}{Body: IntegrationList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-integration",
		Method:        http.MethodPost,
		Path:          "/onboardings/{onboarding_id}/integrations",
		Summary:       "Add an integration and its setup task",
		Tags:          []string{"integrations"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string             `path:"onboarding_id"`
		Body         IntegrationRequest `json:"body"`
	}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		integ, err := s.e.AddIntegration(ctx, input.OnboardingID, engine.IntegrationInput{
			Name:          input.Body.Name,
			Type:          input.Body.Type,
			Configuration: input.Body.Configuration,
		}, origin("add-integration", ""))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: integ}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "integration-progress",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}/integrations/progress",
		Summary:     "Integration progress rollup",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
	}) (*struct {
		Body integration.Progress `json:"body"`
	}, error) {
		p, err := s.e.IntegrationProgress(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body integration.Progress `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "integration-report",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}/integrations/report",
		Summary:     "Plain-text integration status report",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		p, err := s.e.IntegrationProgress(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := s.e.IntegrationReport(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: ReportResponse{OnboardingID: input.OnboardingID, Progress: p, Report: report}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-integration",
		Method:      http.MethodGet,
		Path:        "/integrations/{integration_id}",
		Summary:     "Get integration",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IntegrationID string `path:"integration_id"`
	}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		integ, err := s.e.GetIntegration(ctx, input.IntegrationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: integ}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "configure-integration",
		Method:      http.MethodPut,
		Path:        "/integrations/{integration_id}/configuration",
		Summary:     "Replace or merge integration configuration",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IntegrationID string                      `path:"integration_id"`
		Body          ConfigureIntegrationRequest `json:"body"`
	}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		integ, err := s.e.ConfigureIntegration(ctx, input.IntegrationID, input.Body.Configuration, input.Body.Merge, origin("configure-integration", input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: integ}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-integration",
		Method:      http.MethodPost,
		Path:        "/integrations/{integration_id}/test",
		Summary:     "Validate an integration and record the result",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IntegrationID string `path:"integration_id"`
	}) (*struct {
		Body engine.TestOutcome `json:"body"`
	}, error) {
		out, err := s.e.TestIntegration(ctx, input.IntegrationID, engine.Origin{Source: engine.SourceValidator, Trigger: "test-integration"})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TestOutcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "integration-instructions",
		Method:      http.MethodGet,
		Path:        "/integrations/instructions",
		Summary:     "Role-specific setup instructions for an integration type",
		Tags:        []string{"integrations"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type string `query:"type" required:"true"`
		Role string `query:"role" enum:"owner,it_contact,project_manager,technical_lead"`
	}) (*struct {
		Body integration.InstructionSet `json:"body"`
	}, error) {
		role := domain.Role(input.Role)
		if role == "" {
			role = domain.RoleITContact
		}
		return &struct {
			Body integration.InstructionSet `json:"body"`
		}{Body: s.e.Instructions(input.Type, role)}, nil
	})
}
