package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"onboardline/internal/domain"
)

const taskColumns = `id,onboarding_id,title,task_type,owner_role,assigned_to,status,priority,due_date,completed_at,is_blocker,blocker_reason,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                                     domain.Task
		assignedTo, dueDate, completedAt, why sql.NullString
		createdAt, updatedAt                  string
	)
	if err := row.Scan(&t.ID, &t.OnboardingID, &t.Title, &t.TaskType, &t.OwnerRole, &assignedTo, &t.Status, &t.Priority,
		&dueDate, &completedAt, &t.IsBlocker, &why, &createdAt, &updatedAt); err != nil {
		return t, err
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	t.BlockerReason = why.String
	var err error
	if t.DueDate, err = parseNullTime(dueDate); err != nil {
		return t, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	t.UpdatedAt, err = parseTime(updatedAt)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, q DBTX, t domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OnboardingID, t.Title, t.TaskType, t.OwnerRole, nullableStringPtr(t.AssignedTo), t.Status, t.Priority,
		formatLocalTime(t.DueDate), formatLocalTime(t.CompletedAt), t.IsBlocker, nullable(t.BlockerReason),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

// UpdateTask rewrites every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, q DBTX, t domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE tasks SET title=?, owner_role=?, assigned_to=?, status=?, priority=?, due_date=?, completed_at=?, is_blocker=?, blocker_reason=?, updated_at=? WHERE id=?`,
		t.Title, t.OwnerRole, nullableStringPtr(t.AssignedTo), t.Status, t.Priority, formatLocalTime(t.DueDate),
		formatLocalTime(t.CompletedAt), t.IsBlocker, nullable(t.BlockerReason), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "task", t.ID)
}

func (r Repo) GetTask(ctx context.Context, q DBTX, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.NotFound("task", id)
	}
	return t, err
}

type TaskFilter struct {
	OnboardingID string
	Statuses     []domain.TaskStatus
	OwnerRole    domain.Role
	// OpenOnly excludes completed tasks.
	OpenOnly    bool
	BlockerOnly bool
	Limit       int
}

func (r Repo) ListTasks(ctx context.Context, q DBTX, f TaskFilter) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.OnboardingID != "" {
		clauses = append(clauses, "onboarding_id=?")
		args = append(args, f.OnboardingID)
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.OwnerRole != "" {
		clauses = append(clauses, "owner_role=?")
		args = append(args, f.OwnerRole)
	}
	if f.OpenOnly {
		clauses = append(clauses, "status<>'completed'")
	}
	if f.BlockerOnly {
		clauses = append(clauses, "is_blocker=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
