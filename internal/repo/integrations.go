package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"onboardline/internal/domain"
)

const integrationColumns = `id,onboarding_id,name,type,configuration_json,status,test_results_json,created_at,updated_at`

func scanIntegration(row rowScanner) (domain.Integration, error) {
	var (
		in                   domain.Integration
		cfg                  string
		results              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&in.ID, &in.OnboardingID, &in.Name, &in.Type, &cfg, &in.Status, &results, &createdAt, &updatedAt); err != nil {
		return in, err
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &in.Configuration); err != nil {
			return in, err
		}
	}
	if results.Valid && results.String != "" {
		var vr domain.ValidationResult
		if err := json.Unmarshal([]byte(results.String), &vr); err != nil {
			return in, err
		}
		in.TestResults = &vr
	}
	var err error
	if in.CreatedAt, err = parseTime(createdAt); err != nil {
		return in, err
	}
	in.UpdatedAt, err = parseTime(updatedAt)
	return in, err
}

func integrationArgs(in domain.Integration) (cfg string, results any, err error) {
	conf := in.Configuration
	if conf == nil {
		conf = map[string]any{}
	}
	if cfg, err = marshalJSON(conf); err != nil {
		return "", nil, err
	}
	if in.TestResults != nil {
		s, err := marshalJSON(in.TestResults)
		if err != nil {
			return "", nil, err
		}
		results = s
	}
	return cfg, results, nil
}

func (r Repo) InsertIntegration(ctx context.Context, q DBTX, in domain.Integration) error {
	cfg, results, err := integrationArgs(in)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO integrations(`+integrationColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		in.ID, in.OnboardingID, in.Name, in.Type, cfg, in.Status, results, formatTime(in.CreatedAt), formatTime(in.UpdatedAt))
	return err
}

// UpdateIntegration persists configuration, status and test results.
func (r Repo) UpdateIntegration(ctx context.Context, q DBTX, in domain.Integration) error {
	cfg, results, err := integrationArgs(in)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE integrations SET name=?, configuration_json=?, status=?, test_results_json=?, updated_at=? WHERE id=?`,
		in.Name, cfg, in.Status, results, formatTime(in.UpdatedAt), in.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "integration", in.ID)
}

func (r Repo) GetIntegration(ctx context.Context, q DBTX, id string) (domain.Integration, error) {
	in, err := scanIntegration(q.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return in, domain.NotFound("integration", id)
	}
	return in, err
}

func (r Repo) ListIntegrations(ctx context.Context, q DBTX, onboardingID string) ([]domain.Integration, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE onboarding_id=? ORDER BY created_at, id`, onboardingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}
