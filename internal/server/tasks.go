package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/escalation"
	"onboardline/internal/repo"
)

func (s *handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}/tasks",
		Summary:     "List tasks",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
		Status       string `query:"status" doc:"Comma-separated task statuses"`
		OwnerRole    string `query:"owner_role" enum:"owner,it_contact,project_manager,technical_lead"`
		Open         bool   `query:"open" doc:"Exclude completed tasks"`
		Blockers     bool   `query:"blockers" doc:"Only tasks flagged as blockers"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body TaskList `json:"body"`
	}, error) {
		if _, err := s.e.Repo.GetOnboarding(ctx, s.e.DB, input.OnboardingID); err != nil {
			return nil, handleError(err)
		}
		f := repo.TaskFilter{
			OnboardingID: input.OnboardingID,
			OwnerRole:    domain.Role(input.OwnerRole),
			OpenOnly:     input.Open,
			BlockerOnly:  input.Blockers,
			Limit:        input.Limit,
		}
		for _, raw := range strings.Split(input.Status, ",") {
			st := domain.TaskStatus(strings.TrimSpace(raw))
			if st == "" {
				continue
			}
			if !st.Valid() {
				return nil, badRequest("status", "unknown status "+string(st))
			}
			f.Statuses = append(f.Statuses, st)
		}
		items, err := s.e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Task{}
		}
		return &struct {
			Body TaskList `json:"body"`
		}{Body: TaskList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/onboardings/{onboarding_id}/tasks",
		Summary:       "Create an ad-hoc task; ownership and due date come from the rule tables",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string            `path:"onboarding_id"`
		Body         CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := s.e.CreateTask(ctx, engine.TaskInput{
			OnboardingID: input.OnboardingID,
			TaskType:     input.Body.TaskType,
			Title:        input.Body.Title,
			Priority:     domain.Priority(input.Body.Priority),
			Origin:       origin("create-task", input.Body.Notes),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := s.e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Move a task through its lifecycle",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string                  `path:"task_id"`
		Body   UpdateTaskStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := s.e.UpdateTaskStatus(ctx, input.TaskID, domain.TaskStatus(input.Body.Status), input.Body.Force, origin("update-task-status", input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-blocker",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/blocker",
		Summary:     "Flag a task as a blocker and escalate it",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   SetBlockerRequest `json:"body"`
	}) (*struct {
		Body engine.BlockerOutcome `json:"body"`
	}, error) {
		out, err := s.e.SetBlocker(ctx, input.TaskID, input.Body.Reason, origin("set-blocker", input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.BlockerOutcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-blocker",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/blocker/resolve",
		Summary:     "Clear a blocker",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   ResolveBlockerRequest `json:"body"`
	}) (*struct {
		Body engine.ResolveBlockerOutcome `json:"body"`
	}, error) {
		out, err := s.e.ResolveBlocker(ctx, input.TaskID, engine.ResolveBlockerInput{
			Resolution: input.Body.Resolution,
			Status:     domain.TaskStatus(input.Body.Status),
			Origin:     origin("resolve-blocker", input.Body.Notes),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ResolveBlockerOutcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/reassign",
		Summary:     "Reassign a task to a stakeholder or re-run assignment",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string              `path:"task_id"`
		Body   ReassignTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := s.e.ReassignTask(ctx, input.TaskID, input.Body.StakeholderID, origin("reassign-task", input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-task-escalation",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/escalation",
		Summary:     "Current overdue escalation verdict for a task",
		Tags:        []string{"escalations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body escalation.Result `json:"body"`
	}, error) {
		res, err := s.e.EvaluateTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body escalation.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "blocker-recipients",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/blocker/recipients",
		Summary:     "Who a blocker on this task escalates to",
		Tags:        []string{"escalations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body escalation.BlockerResult `json:"body"`
	}, error) {
		res, err := s.e.BlockerRecipients(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body escalation.BlockerResult `json:"body"`
		}{Body: res}, nil
	})
}
