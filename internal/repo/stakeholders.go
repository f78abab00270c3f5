package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"onboardline/internal/domain"
)

const stakeholderColumns = `id,onboarding_id,role,name,email,phone,responsibilities_json,created_at`

func scanStakeholder(row rowScanner) (domain.Stakeholder, error) {
	var (
		s                domain.Stakeholder
		phone            sql.NullString
		responsibilities string
		createdAt        string
	)
	if err := row.Scan(&s.ID, &s.OnboardingID, &s.Role, &s.Name, &s.Email, &phone, &responsibilities, &createdAt); err != nil {
		return s, err
	}
	s.Phone = phone.String
	if responsibilities != "" {
		if err := json.Unmarshal([]byte(responsibilities), &s.Responsibilities); err != nil {
			return s, err
		}
	}
	var err error
	s.CreatedAt, err = parseTime(createdAt)
	return s, err
}

// InsertStakeholder appends s after the onboarding's existing stakeholders.
func (r Repo) InsertStakeholder(ctx context.Context, q DBTX, s domain.Stakeholder) error {
	if s.Responsibilities == nil {
		s.Responsibilities = []string{}
	}
	resp, err := marshalJSON(s.Responsibilities)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO stakeholders(id,onboarding_id,role,name,email,phone,responsibilities_json,position,created_at)
VALUES (?,?,?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM stakeholders WHERE onboarding_id=?),?)`,
		s.ID, s.OnboardingID, s.Role, s.Name, s.Email, nullable(s.Phone), resp, s.OnboardingID, formatTime(s.CreatedAt))
	return err
}

func (r Repo) GetStakeholder(ctx context.Context, q DBTX, id string) (domain.Stakeholder, error) {
	s, err := scanStakeholder(q.QueryRowContext(ctx, `SELECT `+stakeholderColumns+` FROM stakeholders WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, domain.NotFound("stakeholder", id)
	}
	return s, err
}

// ListStakeholders returns stakeholders in the order they were added.
func (r Repo) ListStakeholders(ctx context.Context, q DBTX, onboardingID string) ([]domain.Stakeholder, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+stakeholderColumns+` FROM stakeholders WHERE onboarding_id=? ORDER BY position, id`, onboardingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stakeholder
	for rows.Next() {
		s, err := scanStakeholder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
