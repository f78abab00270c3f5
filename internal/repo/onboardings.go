package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"onboardline/internal/domain"
)

func (r Repo) InsertCustomer(ctx context.Context, q DBTX, c domain.Customer) error {
	_, err := q.ExecContext(ctx, `INSERT INTO customers(id,name,size,contact_email,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, c.Size, nullable(c.ContactEmail), formatTime(c.CreatedAt))
	return err
}

func (r Repo) GetCustomer(ctx context.Context, q DBTX, id string) (domain.Customer, error) {
	var (
		c         domain.Customer
		email     sql.NullString
		createdAt string
	)
	err := q.QueryRowContext(ctx, `SELECT id,name,size,contact_email,created_at FROM customers WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Size, &email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.NotFound("customer", id)
	}
	if err != nil {
		return c, err
	}
	c.ContactEmail = email.String
	c.CreatedAt, err = parseTime(createdAt)
	return c, err
}

const onboardingColumns = `id,customer_id,status,go_live_date,created_at,updated_at`

func scanOnboarding(row rowScanner) (domain.Onboarding, error) {
	var (
		o                    domain.Onboarding
		goLive               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &goLive, &createdAt, &updatedAt); err != nil {
		return o, err
	}
	var err error
	if o.GoLiveDate, err = parseNullTime(goLive); err != nil {
		return o, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return o, err
	}
	o.UpdatedAt, err = parseTime(updatedAt)
	return o, err
}

func (r Repo) InsertOnboarding(ctx context.Context, q DBTX, o domain.Onboarding) error {
	_, err := q.ExecContext(ctx, `INSERT INTO onboardings(`+onboardingColumns+`) VALUES (?,?,?,?,?,?)`,
		o.ID, o.CustomerID, o.Status, formatLocalTime(o.GoLiveDate), formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	return err
}

func (r Repo) GetOnboarding(ctx context.Context, q DBTX, id string) (domain.Onboarding, error) {
	o, err := scanOnboarding(q.QueryRowContext(ctx, `SELECT `+onboardingColumns+` FROM onboardings WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return o, domain.NotFound("onboarding", id)
	}
	return o, err
}

func (r Repo) UpdateOnboardingStatus(ctx context.Context, q DBTX, o domain.Onboarding) error {
	res, err := q.ExecContext(ctx, `UPDATE onboardings SET status=?, go_live_date=?, updated_at=? WHERE id=?`,
		o.Status, formatLocalTime(o.GoLiveDate), formatTime(o.UpdatedAt), o.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "onboarding", o.ID)
}

type OnboardingFilter struct {
	CustomerID string
	Status     domain.OnboardingStatus
	Limit      int
}

func (r Repo) ListOnboardings(ctx context.Context, q DBTX, f OnboardingFilter) ([]domain.Onboarding, error) {
	var (
		clauses []string
		args    []any
	)
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id=?")
		args = append(args, f.CustomerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + onboardingColumns + ` FROM onboardings ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Onboarding
	for rows.Next() {
		o, err := scanOnboarding(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
