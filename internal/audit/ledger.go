package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"onboardline/internal/domain"
)

// ErrDuplicate is returned by a Store when a record's dedup key is already taken.
var ErrDuplicate = fmt.Errorf("duplicate audit record: %w", domain.ErrConflict)

const (
	MaxLimit           = 1000
	DefaultLimit       = 100
	DefaultSummaryCap  = 10000
	DefaultTopEntities = 10
)

// Envelope keys added to every record's metadata.
const (
	KeyTimestamp   = "timestamp"
	KeyEnvironment = "environment"
	KeySource      = "source"
	KeyTrigger     = "trigger"
	KeyNotes       = "notes"
)

// Store persists audit records. InsertAuditRecords is all-or-nothing and returns
// ErrDuplicate when any record's dedup key already exists.
type Store interface {
	InsertAuditRecords(ctx context.Context, recs []domain.AuditRecord) error
	QueryAuditRecords(ctx context.Context, q Query) ([]domain.AuditRecord, error)
}

// Entry is one record to append.
type Entry struct {
	EntityType   domain.EntityType
	EntityID     string
	OnboardingID string
	Payload      Payload
	Source       string
	Trigger      string
	Notes        string
	DedupKey     string
}

// Query is a conjunctive filter over the ledger, most recent first.
type Query struct {
	EntityType   domain.EntityType `json:"entity_type,omitempty"`
	EntityID     string            `json:"entity_id,omitempty"`
	EventType    domain.EventType  `json:"event_type,omitempty"`
	OnboardingID string            `json:"onboarding_id,omitempty"`
	Source       string            `json:"source,omitempty"`
	From         *time.Time        `json:"from,omitempty"`
	To           *time.Time        `json:"to,omitempty"`
	Filter       string            `json:"filter,omitempty"`
	Limit        int               `json:"limit"`
	Offset       int               `json:"offset"`
}

// Validate enforces the paging bounds and parses Filter.
func (q Query) Validate() error {
	if q.Limit < 1 || q.Limit > MaxLimit {
		return domain.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be within 1-%d", MaxLimit)}
	}
	if q.Offset < 0 {
		return domain.ValidationError{Field: "offset", Reason: "must be >= 0"}
	}
	if q.EntityType != "" && !q.EntityType.Valid() {
		return domain.ValidationError{Field: "entity_type", Reason: "unknown entity type " + string(q.EntityType)}
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return domain.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if _, err := ParseFilter(q.Filter); err != nil {
		return domain.ValidationError{Field: "filter", Reason: err.Error()}
	}
	return nil
}

// Ledger is the append-only audit log.
type Ledger struct {
	Store       Store
	Environment string
	Now         func() time.Time
	NewID       func() string
	SummaryCap  int
	TopEntities int
}

func NewLedger(store Store, environment string) *Ledger {
	return &Ledger{Store: store, Environment: environment, Now: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Ledger) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return ulid.Make().String()
}

// Append enriches and persists one record.
func (l *Ledger) Append(ctx context.Context, e Entry) (domain.AuditRecord, error) {
	recs, err := l.AppendBatch(ctx, []Entry{e})
	if err != nil {
		return domain.AuditRecord{}, err
	}
	return recs[0], nil
}

// AppendBatch persists every entry or none of them.
func (l *Ledger) AppendBatch(ctx context.Context, entries []Entry) ([]domain.AuditRecord, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	now := l.now().UTC()
	recs := make([]domain.AuditRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := l.build(e, now)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := l.Store.InsertAuditRecords(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// AppendOnce appends e unless a record with the same dedup key exists.
// It reports false, without error, when the key is already taken.
func (l *Ledger) AppendOnce(ctx context.Context, e Entry) (domain.AuditRecord, bool, error) {
	if e.DedupKey == "" {
		return domain.AuditRecord{}, false, domain.ValidationError{Field: "dedup_key", Reason: "required"}
	}
	rec, err := l.Append(ctx, e)
	if errors.Is(err, ErrDuplicate) {
		return domain.AuditRecord{}, false, nil
	}
	if err != nil {
		return domain.AuditRecord{}, false, err
	}
	return rec, true, nil
}

func (l *Ledger) build(e Entry, now time.Time) (domain.AuditRecord, error) {
	if !e.EntityType.Valid() {
		return domain.AuditRecord{}, domain.ValidationError{Field: "entity_type", Reason: "unknown entity type " + string(e.EntityType)}
	}
	if strings.TrimSpace(e.EntityID) == "" {
		return domain.AuditRecord{}, domain.ValidationError{Field: "entity_id", Reason: "required"}
	}
	if e.Payload == nil {
		return domain.AuditRecord{}, domain.ValidationError{Field: "payload", Reason: "required"}
	}
	if err := e.Payload.Validate(); err != nil {
		return domain.AuditRecord{}, fmt.Errorf("%s payload: %w", e.Payload.EventType(), err)
	}
	meta, err := l.metadata(e, now)
	if err != nil {
		return domain.AuditRecord{}, err
	}
	return domain.AuditRecord{
		ID:           l.newID(),
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		EventType:    e.Payload.EventType(),
		OnboardingID: e.OnboardingID,
		Metadata:     meta,
		DedupKey:     e.DedupKey,
		CreatedAt:    now,
	}, nil
}

func (l *Ledger) metadata(e Entry, now time.Time) (map[string]any, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	meta := map[string]any{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("payload must encode as an object: %w", err)
	}
	if e.Notes != "" {
		meta[KeyNotes] = e.Notes
	}
	source := e.Source
	if source == "" {
		source = "system"
	}
	trigger := e.Trigger
	if trigger == "" {
		trigger = "unspecified"
	}
	env := l.Environment
	if env == "" {
		env = "development"
	}
	meta[KeyTimestamp] = now.Format(time.RFC3339Nano)
	meta[KeyEnvironment] = env
	meta[KeySource] = source
	meta[KeyTrigger] = trigger
	return meta, nil
}

// Query returns matching records, most recent first.
func (l *Ledger) Query(ctx context.Context, q Query) ([]domain.AuditRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return l.Store.QueryAuditRecords(ctx, q)
}

func (l *Ledger) ForEntity(ctx context.Context, entityType domain.EntityType, entityID string, limit, offset int) ([]domain.AuditRecord, error) {
	return l.Query(ctx, Query{EntityType: entityType, EntityID: entityID, Limit: limit, Offset: offset})
}

// ForOnboarding returns every record scoped to an onboarding, whatever entity it names.
func (l *Ledger) ForOnboarding(ctx context.Context, onboardingID string, limit, offset int) ([]domain.AuditRecord, error) {
	return l.Query(ctx, Query{OnboardingID: onboardingID, Limit: limit, Offset: offset})
}

// InRange returns records created between from and to, both inclusive.
func (l *Ledger) InRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.AuditRecord, error) {
	return l.Query(ctx, Query{From: &from, To: &to, Limit: limit, Offset: offset})
}

// EntityActivity counts events for one entity.
type EntityActivity struct {
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Count      int               `json:"count"`
}

type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

type Summary struct {
	TotalEvents        int                       `json:"total_events"`
	EventsByType       map[domain.EventType]int  `json:"events_by_type"`
	EventsByEntity     map[domain.EntityType]int `json:"events_by_entity"`
	DateRange          *DateRange                `json:"date_range,omitempty"`
	MostActiveEntities []EntityActivity          `json:"most_active_entities"`
	Truncated          bool                      `json:"truncated"`
}

// Summarize aggregates up to SummaryCap matching records. Larger result sets are
// truncated and flagged, not rejected. Limit and Offset on q are ignored.
func (l *Ledger) Summarize(ctx context.Context, q Query) (Summary, error) {
	capN := l.SummaryCap
	if capN <= 0 {
		capN = DefaultSummaryCap
	}
	q.Limit = 1
	q.Offset = 0
	if err := q.Validate(); err != nil {
		return Summary{}, err
	}
	q.Limit = capN + 1
	recs, err := l.Store.QueryAuditRecords(ctx, q)
	if err != nil {
		return Summary{}, err
	}
	truncated := len(recs) > capN
	if truncated {
		recs = recs[:capN]
	}
	top := l.TopEntities
	if top <= 0 {
		top = DefaultTopEntities
	}
	s := Summarize(recs, top)
	s.Truncated = truncated
	return s, nil
}

// Summarize aggregates recs in memory.
func Summarize(recs []domain.AuditRecord, top int) Summary {
	s := Summary{
		TotalEvents:        len(recs),
		EventsByType:       map[domain.EventType]int{},
		EventsByEntity:     map[domain.EntityType]int{},
		MostActiveEntities: []EntityActivity{},
	}
	type key struct {
		t  domain.EntityType
		id string
	}
	counts := map[key]int{}
	for _, r := range recs {
		s.EventsByType[r.EventType]++
		s.EventsByEntity[r.EntityType]++
		counts[key{r.EntityType, r.EntityID}]++
		if s.DateRange == nil {
			s.DateRange = &DateRange{Earliest: r.CreatedAt, Latest: r.CreatedAt}
			continue
		}
		if r.CreatedAt.Before(s.DateRange.Earliest) {
			s.DateRange.Earliest = r.CreatedAt
		}
		if r.CreatedAt.After(s.DateRange.Latest) {
			s.DateRange.Latest = r.CreatedAt
		}
	}
	for k, n := range counts {
		s.MostActiveEntities = append(s.MostActiveEntities, EntityActivity{EntityType: k.t, EntityID: k.id, Count: n})
	}
	sort.Slice(s.MostActiveEntities, func(i, j int) bool {
		a, b := s.MostActiveEntities[i], s.MostActiveEntities[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		return a.EntityID < b.EntityID
	})
	if len(s.MostActiveEntities) > top {
		s.MostActiveEntities = s.MostActiveEntities[:top]
	}
	return s
}

// DedupKey buckets an event for an entity into the calendar day of at.
func DedupKey(entityID string, eventType domain.EventType, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", entityID, eventType, at.Format("2006-01-02"))
}
