package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
)

// Source is the read side of the audit ledger.
type Source interface {
	Query(ctx context.Context, q audit.Query) ([]domain.AuditRecord, error)
}

// Export describes one written archive object.
type Export struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
}

// Exporter pages through the ledger and writes matching records as JSON lines.
type Exporter struct {
	Ledger  Source
	Storage Storage
	Now     func() time.Time
	// PageSize bounds each ledger read; MaxRecords bounds the whole export.
	PageSize   int
	MaxRecords int
}

func NewExporter(ledger Source, storage Storage) *Exporter {
	return &Exporter{Ledger: ledger, Storage: storage, Now: time.Now}
}

// Export writes every record matching q to audit/<date>/<ulid>.jsonl.
// q.Limit and q.Offset are ignored.
func (e *Exporter) Export(ctx context.Context, q audit.Query) (Export, error) {
	pageSize := e.PageSize
	if pageSize <= 0 || pageSize > audit.MaxLimit {
		pageSize = audit.MaxLimit
	}
	maxRecords := e.MaxRecords
	if maxRecords <= 0 {
		maxRecords = audit.DefaultSummaryCap
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for offset := 0; count < maxRecords; offset += pageSize {
		q.Limit = min(pageSize, maxRecords-count)
		q.Offset = offset
		page, err := e.Ledger.Query(ctx, q)
		if err != nil {
			return Export{}, err
		}
		for _, rec := range page {
			if err := enc.Encode(rec); err != nil {
				return Export{}, fmt.Errorf("encode audit record %s: %w", rec.ID, err)
			}
		}
		count += len(page)
		if len(page) < q.Limit {
			break
		}
	}

	at := now().UTC()
	path := fmt.Sprintf("audit/%s/%s.jsonl", at.Format("2006-01-02"), ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String())
	if err := e.Storage.Write(ctx, path, buf.Bytes()); err != nil {
		return Export{}, err
	}
	return Export{Path: path, Records: count}, nil
}
