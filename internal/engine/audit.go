package engine

import (
	"context"
	"time"

	"onboardline/internal/archive"
	"onboardline/internal/audit"
	"onboardline/internal/domain"
)

func (e *Engine) QueryAudit(ctx context.Context, q audit.Query) ([]domain.AuditRecord, error) {
	if q.Limit == 0 {
		q.Limit = audit.DefaultLimit
	}
	return records(e.Ledger.Query(ctx, q))
}

// EntityAuditTrail returns the records naming one entity, newest first.
func (e *Engine) EntityAuditTrail(ctx context.Context, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.AuditRecord, error) {
	return records(e.Ledger.ForEntity(ctx, entityType, entityID, pageLimit(limit), offset))
}

// OnboardingAuditTrail returns every record scoped to an existing onboarding.
func (e *Engine) OnboardingAuditTrail(ctx context.Context, onboardingID string, limit, offset int) ([]domain.AuditRecord, error) {
	if _, err := e.Repo.GetOnboarding(ctx, e.DB, onboardingID); err != nil {
		return nil, err
	}
	return records(e.Ledger.ForOnboarding(ctx, onboardingID, pageLimit(limit), offset))
}

// AuditInRange returns records created within [from, to].
func (e *Engine) AuditInRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.AuditRecord, error) {
	return records(e.Ledger.InRange(ctx, from, to, pageLimit(limit), offset))
}

func pageLimit(limit int) int {
	if limit == 0 {
		return audit.DefaultLimit
	}
	return limit
}

func records(recs []domain.AuditRecord, err error) ([]domain.AuditRecord, error) {
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.AuditRecord{}
	}
	return recs, nil
}

// AuditSummary aggregates the records matching q, up to the configured cap.
func (e *Engine) AuditSummary(ctx context.Context, q audit.Query) (audit.Summary, error) {
	return e.Ledger.Summarize(ctx, q)
}

// ExportAudit writes the records matching q to storage as one JSON-lines object.
func (e *Engine) ExportAudit(ctx context.Context, storage archive.Storage, q audit.Query) (archive.Export, error) {
	ctx, span := e.start(ctx, "engine.ExportAudit")
	x := archive.NewExporter(e.Ledger, storage)
	x.Now = e.now
	x.MaxRecords = e.Config.Audit.SummaryCap
	out, err := x.Export(ctx, q)
	finish(span, err)
	if err != nil {
		return archive.Export{}, err
	}
	e.Logger.Info("audit exported", "path", out.Path, "records", out.Records)
	return out, nil
}
