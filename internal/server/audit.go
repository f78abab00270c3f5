package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"onboardline/internal/archive"
	"onboardline/internal/audit"
	"onboardline/internal/domain"
)

// AuditParams are the shared audit filter query parameters.
type AuditParams struct {
	EntityType   string `query:"entity_type" enum:"customer,onboarding,task,stakeholder,integration,blocker,escalation,system"`
	EntityID     string `query:"entity_id"`
	EventType    string `query:"event_type"`
	OnboardingID string `query:"onboarding_id"`
	Source       string `query:"source"`
	From         string `query:"from" doc:"YYYY-MM-DD or RFC 3339"`
	To           string `query:"to" doc:"YYYY-MM-DD (inclusive) or RFC 3339"`
	Filter       string `query:"filter" doc:"AIP-160 filter expression"`
}

func (p AuditParams) query(loc *time.Location) (audit.Query, error) {
	return buildQuery(AuditQueryRequest{
		EntityType:   p.EntityType,
		EntityID:     p.EntityID,
		EventType:    p.EventType,
		OnboardingID: p.OnboardingID,
		Source:       p.Source,
		From:         p.From,
		To:           p.To,
		Filter:       p.Filter,
	}, loc)
}

func buildQuery(req AuditQueryRequest, loc *time.Location) (audit.Query, error) {
	q := audit.Query{
		EntityType:   domain.EntityType(req.EntityType),
		EntityID:     req.EntityID,
		EventType:    domain.EventType(req.EventType),
		OnboardingID: req.OnboardingID,
		Source:       req.Source,
		Filter:       req.Filter,
	}
	from, err := parseDate("from", req.From, loc)
	if err != nil {
		return q, err
	}
	to, err := parseDate("to", req.To, loc)
	if err != nil {
		return q, err
	}
	// A bare date includes the whole day.
	if to != nil && len(req.To) == len("2006-01-02") {
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &end
	}
	q.From, q.To = from, to
	return q, nil
}

func (s *handlers) registerAudit(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "query-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Query the audit ledger, newest first",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AuditParams
		Limit  int `query:"limit" default:"100" minimum:"1" maximum:"1000"`
		Offset int `query:"offset" minimum:"0"`
	}) (*struct {
		Body AuditRecordList `json:"body"`
	}, error) {
		q, err := input.AuditParams.query(s.e.Config.Location())
		if err != nil {
			return nil, err
		}
		q.Limit, q.Offset = input.Limit, input.Offset
		return s.auditList(ctx, q)
	})

	huma.Register(api, huma.Operation{
		OperationID: "summarize-audit",
		Method:      http.MethodGet,
		Path:        "/audit/summary",
		Summary:     "Aggregate counts over matching audit records",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AuditParams
	}) (*struct {
		Body audit.Summary `json:"body"`
	}, error) {
		q, err := input.AuditParams.query(s.e.Config.Location())
		if err != nil {
			return nil, err
		}
		sum, err := s.e.AuditSummary(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body audit.Summary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-audit-trail",
		Method:      http.MethodGet,
		Path:        "/audit/entities/{entity_type}/{entity_id}",
		Summary:     "Audit trail for one entity",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityType string `path:"entity_type" enum:"customer,onboarding,task,stakeholder,integration,blocker,escalation,system"`
		EntityID   string `path:"entity_id"`
		Limit      int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
		Offset     int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body AuditRecordList `json:"body"`
	}, error) {
		items, err := s.e.EntityAuditTrail(ctx, domain.EntityType(input.EntityType), input.EntityID, input.Limit, input.Offset)
		return auditPage(items, err, input.Limit, input.Offset)
	})

	huma.Register(api, huma.Operation{
		OperationID: "onboarding-audit-trail",
		Method:      http.MethodGet,
		Path:        "/onboardings/{onboarding_id}/audit",
		Summary:     "Every audit record scoped to an onboarding",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OnboardingID string `path:"onboarding_id"`
		Limit        int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
		Offset       int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body AuditRecordList `json:"body"`
	}, error) {
		items, err := s.e.OnboardingAuditTrail(ctx, input.OnboardingID, input.Limit, input.Offset)
		return auditPage(items, err, input.Limit, input.Offset)
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-range",
		Method:      http.MethodGet,
		Path:        "/audit/range",
		Summary:     "Audit records created within a date range",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From   string `query:"from" required:"true" doc:"YYYY-MM-DD or RFC 3339"`
		To     string `query:"to" required:"true" doc:"YYYY-MM-DD (inclusive) or RFC 3339"`
		Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
		Offset int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body AuditRecordList `json:"body"`
	}, error) {
		q, err := buildQuery(AuditQueryRequest{From: input.From, To: input.To}, s.e.Config.Location())
		if err != nil {
			return nil, err
		}
		if q.From == nil || q.To == nil {
			return nil, badRequest("from", "from and to are required")
		}
		items, err := s.e.AuditInRange(ctx, *q.From, *q.To, input.Limit, input.Offset)
		return auditPage(items, err, input.Limit, input.Offset)
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-audit",
		Method:      http.MethodPost,
		Path:        "/audit/export",
		Summary:     "Write matching audit records to the archive as JSON lines",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body AuditQueryRequest `json:"body"`
	}) (*struct {
		Body archive.Export `json:"body"`
	}, error) {
		if s.archive == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "archive_unavailable", "no audit archive is configured", nil)
		}
		q, err := buildQuery(input.Body, s.e.Config.Location())
		if err != nil {
			return nil, err
		}
		out, err := s.e.ExportAudit(ctx, s.archive, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body archive.Export `json:"body"`
		}{Body: out}, nil
	})
}

func (s *handlers) auditList(ctx context.Context, q audit.Query) (*struct {
	Body AuditRecordList `json:"body"`
}, error) {
	items, err := s.e.QueryAudit(ctx, q)
	return auditPage(items, err, q.Limit, q.Offset)
}

func auditPage(items []domain.AuditRecord, err error, limit, offset int) (*struct {
	Body AuditRecordList `json:"body"`
}, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body AuditRecordList `json:"body"`
	}{Body: AuditRecordList{Items: items, Limit: limit, Offset: offset}}, nil
}
