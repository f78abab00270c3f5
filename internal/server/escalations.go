package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"onboardline/internal/engine"
)

func (s *handlers) registerEscalations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "check-escalations",
		Method:      http.MethodGet,
		Path:        "/escalations/check",
		Summary:     "List tasks that would escalate now, without notifying",
		Tags:        []string{"escalations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `query:"onboarding_id"`
	}) (*struct {
		Body CandidateList `json:"body"`
	}, error) {
		items, err := s.e.CheckEscalations(ctx, input.OnboardingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CandidateList `json:"body"`
		}{Body: CandidateList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-escalations",
		Method:      http.MethodPost,
		Path:        "/escalations/run",
		Summary:     "Escalate overdue tasks and notify the escalation chain",
		Tags:        []string{"escalations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RunEscalationsRequest `json:"body"`
	}) (*struct {
		Body engine.EscalationReport `json:"body"`
	}, error) {
		report, err := s.e.RunEscalationCheck(ctx, input.Body.OnboardingID, origin("run-escalations", input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.EscalationReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-reminders",
		Method:      http.MethodPost,
		Path:        "/reminders",
		Summary:     "Remind assignees of tasks due soon",
		Tags:        []string{"escalations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body SendRemindersRequest `json:"body"`
	}) (*struct {
		Body engine.ReminderReport `json:"body"`
	}, error) {
		report, err := s.e.SendReminders(ctx, input.Body.OnboardingID, input.Body.Days, origin("send-reminders", ""))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReminderReport `json:"body"`
		}{Body: report}, nil
	})
}
