package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/repo"
)

func toOnboardingInput(req CreateOnboardingRequest, goLive *time.Time) engine.OnboardingInput {
	in := engine.OnboardingInput{
		Customer: engine.CustomerInput{
			Name:         req.Customer.Name,
			Size:         domain.CustomerSize(req.Customer.Size),
			ContactEmail: req.Customer.ContactEmail,
		},
		GoLiveDate: goLive,
		Origin:     origin("create-onboarding", req.Notes),
	}
	for _, st := range req.Stakeholders {
		in.Stakeholders = append(in.Stakeholders, toStakeholderInput(st))
	}
	for _, integ := range req.Integrations {
		in.Integrations = append(in.Integrations, engine.IntegrationInput{Name: integ.Name, Type: integ.Type, Configuration: integ.Configuration})
	}
	return in
}

func toStakeholderInput(st StakeholderRequest) engine.StakeholderInput {
	return engine.StakeholderInput{
		Role:             domain.Role(st.Role),
		Name:             st.Name,
		Email:            st.Email,
		Phone:            st.Phone,
		Responsibilities: st.Responsibilities,
	}
}

func (s *handlers) registerOnboardings(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-onboarding",
		Method:        http.MethodPost,
		Path:          "/onboardings",
		Summary:       "Open an onboarding with its stakeholders, integrations and initial tasks",
		Tags:          []string{"onboardings"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateOnboardingRequest `json:"body"`
	}) (*struct {
		Body engine.OnboardingDetail `json:"body"`
	}, error) {
		goLive, err := parseDate("go_live_date", input.Body.GoLiveDate, s.e.Config.Location())
		if err != nil {
			return nil, err
		}
		detail, err := s.e.CreateOnboarding(ctx, toOnboardingInput(input.Body, goLive))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OnboardingDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-onboardings",
		Method:      http.MethodGet,
		Path:        "/onboardings",
		Summary:     "List onboardings",
		Tags:        []string{"onboardings"},
	}, func(ctx context.Context, input *struct {
		CustomerID string `query:"customer_id"`
		Status     string `query:"status" enum:"active,paused,completed"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body OnboardingList `json:"body"`
	}, error) {
		items, err := s.e.ListOnboardings(ctx, repo.OnboardingFilter{
			CustomerID: input.CustomerID,
			Status:     domain.OnboardingStatus(input.Status),
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Onboarding{}
		}
		return &struct {
			Body OnboardingList `json:"body"`
		}{Body: OnboardingList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-onboarding",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}",
		Summary:     "Get an onboarding with its owned entities",
		Tags:        []string{"onboardings"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
	}) (*struct {
		Body engine.OnboardingDetail `json:"body"`
	}, error) {
		detail, err := s.e.GetOnboarding(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OnboardingDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "onboarding-progress",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}/progress",
		Summary:     "Task and integration progress",
		Tags:        []string{"onboardings"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
	}) (*struct {
		Body engine.Progress `json:"body"`
	}, error) {
		p, err := s.e.OnboardingProgress(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Progress `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-onboarding-status",
		Method:      http.MethodPatch,
		Path:        "/onboardings/{onboarding_id}/status",
		Summary:     "Pause, resume or complete an onboarding",
		Tags:        []string{"onboardings"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string                        `path:"onboarding_id"`
		Body         UpdateOnboardingStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Onboarding `json:"body"`
	}, error) {
		ob, err := s.e.SetOnboardingStatus(ctx, input.OnboardingID, domain.OnboardingStatus(input.Body.Status), origin("update-onboarding-status", input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Onboarding `json:"body"`
		}{Body: ob}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-stakeholder",
		Method:        http.MethodPost,
		Path:          "/onboardings/{onboarding_id}/stakeholders",
		Summary:       "Add a stakeholder",
		Tags:          []string{"onboardings"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string             `path:"onboarding_id"`
		Body         StakeholderRequest `json:"body"`
	}) (*struct {
		Body domain.Stakeholder `json:"body"`
	}, error) {
		st, err := s.e.AddStakeholder(ctx, input.OnboardingID, toStakeholderInput(input.Body), origin("add-stakeholder", ""))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stakeholder `json:"body"`
		}{Body: st}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
