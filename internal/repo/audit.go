package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
)

const auditColumns = `id,entity_type,entity_id,event_type,onboarding_id,source,trigger_name,metadata_json,dedup_key,created_at`

// auditBatchRows keeps multi-row inserts under SQLite's bound parameter limit.
const auditBatchRows = 500

// InsertAuditRecords writes recs in one transaction. A dedup key collision on any
// record aborts the whole batch with audit.ErrDuplicate.
func (r Repo) InsertAuditRecords(ctx context.Context, recs []domain.AuditRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(recs); start += auditBatchRows {
			end := min(start+auditBatchRows, len(recs))
			if err := insertAuditChunk(ctx, tx, recs[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertAuditChunk(ctx context.Context, q DBTX, recs []domain.AuditRecord) error {
	rowPlaceholders := "(" + placeholders(10) + ")"
	values := make([]string, 0, len(recs))
	args := make([]any, 0, len(recs)*10)
	for _, rec := range recs {
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := marshalJSON(meta)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		trigger, _ := meta[audit.KeyTrigger].(string)
		values = append(values, rowPlaceholders)
		args = append(args, rec.ID, rec.EntityType, rec.EntityID, rec.EventType, nullable(rec.OnboardingID),
			rec.Source(), trigger, metaJSON, nullable(rec.DedupKey), rec.CreatedAt.UTC().Format(audit.TimeLayout))
	}
	res, err := q.ExecContext(ctx, `INSERT INTO audit_records(`+auditColumns+`) VALUES `+strings.Join(values, ",")+
		` ON CONFLICT(dedup_key) DO NOTHING`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) < len(recs) {
		return audit.ErrDuplicate
	}
	return nil
}

// QueryAuditRecords returns matching records ordered newest first.
func (r Repo) QueryAuditRecords(ctx context.Context, q audit.Query) ([]domain.AuditRecord, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		clauses = append(clauses, clause)
		args = append(args, v)
	}
	if q.EntityType != "" {
		add("entity_type=?", q.EntityType)
	}
	if q.EntityID != "" {
		add("entity_id=?", q.EntityID)
	}
	if q.EventType != "" {
		add("event_type=?", q.EventType)
	}
	if q.OnboardingID != "" {
		add("onboarding_id=?", q.OnboardingID)
	}
	if q.Source != "" {
		add("source=?", q.Source)
	}
	if q.From != nil {
		add("created_at>=?", q.From.UTC().Format(audit.TimeLayout))
	}
	if q.To != nil {
		add("created_at<=?", q.To.UTC().Format(audit.TimeLayout))
	}
	cond, err := audit.ParseFilter(q.Filter)
	if err != nil {
		return nil, domain.ValidationError{Field: "filter", Reason: err.Error()}
	}
	if cond.Clause != "" {
		clauses = append(clauses, "("+cond.Clause+")")
		args = append(args, cond.Params...)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = audit.DefaultLimit
	}
	query := `SELECT ` + auditColumns + ` FROM audit_records ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.AuditRecord{}
	for rows.Next() {
		var (
			rec                    domain.AuditRecord
			onboardingID, dedupKey sql.NullString
			source, trigger, meta  string
			createdAt              string
		)
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.EventType, &onboardingID, &source, &trigger,
			&meta, &dedupKey, &createdAt); err != nil {
			return nil, err
		}
		rec.OnboardingID = onboardingID.String
		rec.DedupKey = dedupKey.String
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = time.Parse(audit.TimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse audit time %s: %w", rec.ID, err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

var _ audit.Store = Repo{}
