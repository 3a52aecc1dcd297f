package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/caseload/internal/types"
	"github.com/oklog/ulid/v2"
)

const liveClientOnly = `client_id IN (SELECT id FROM clients WHERE deleted_at IS NULL)`

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

// CreateAuthorization inserts an authorization under a live client.
// Status defaults to pending.
func (s *SQLiteStore) CreateAuthorization(ctx context.Context, clientID string, a types.Authorization) (string, error) {
	if err := requireLiveClient(ctx, s.db, clientID); err != nil {
		return "", err
	}
	if err := s.requireInsuranceOf(ctx, clientID, a.InsuranceID); err != nil {
		return "", err
	}

	status := a.Status
	if status == "" {
		status = types.AuthPending
	}
	id := ulid.Make().String()
	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_authorizations (
			id, client_id, insurance_id, payor_type, service_type, billing_code,
			treatment_requested, units_requested, units_used, units_per_week_authorized,
			rate_per_unit, start_date, end_date, status, auth_reference_number,
			requires_prior_auth, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, clientID, nullIfEmpty(a.InsuranceID), nullIfEmpty(string(a.PayorType)),
		nullIfEmpty(a.ServiceType), nullIfEmpty(a.BillingCode), nullIfEmpty(a.TreatmentRequested),
		nullInt(a.UnitsRequested), a.UnitsUsed, nullInt(a.UnitsPerWeekAuthorized), nullFloat(a.RatePerUnit),
		nullIfEmpty(a.StartDate), nullIfEmpty(a.EndDate), string(status), nullIfEmpty(a.AuthReferenceNumber),
		boolInt(a.RequiresPriorAuth), nullIfEmpty(a.Notes), ts, ts)
	if err != nil {
		return "", fmt.Errorf("insert authorization: %w", err)
	}
	return id, nil
}

// UpdateAuthorization replaces every field of a live authorization.
func (s *SQLiteStore) UpdateAuthorization(ctx context.Context, a types.Authorization) error {
	var clientID string
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id FROM client_authorizations
		WHERE id = ? AND deleted_at IS NULL AND `+liveClientOnly, a.ID).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAuthorizationNotFound
	}
	if err != nil {
		return fmt.Errorf("find authorization: %w", err)
	}
	if err := s.requireInsuranceOf(ctx, clientID, a.InsuranceID); err != nil {
		return err
	}

	status := a.Status
	if status == "" {
		status = types.AuthPending
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_authorizations SET
			insurance_id = ?, payor_type = ?, service_type = ?, billing_code = ?,
			treatment_requested = ?, units_requested = ?, units_used = ?,
			units_per_week_authorized = ?, rate_per_unit = ?, start_date = ?, end_date = ?,
			status = ?, auth_reference_number = ?, requires_prior_auth = ?, notes = ?,
			updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, nullIfEmpty(a.InsuranceID), nullIfEmpty(string(a.PayorType)), nullIfEmpty(a.ServiceType),
		nullIfEmpty(a.BillingCode), nullIfEmpty(a.TreatmentRequested), nullInt(a.UnitsRequested),
		a.UnitsUsed, nullInt(a.UnitsPerWeekAuthorized), nullFloat(a.RatePerUnit),
		nullIfEmpty(a.StartDate), nullIfEmpty(a.EndDate), string(status),
		nullIfEmpty(a.AuthReferenceNumber), boolInt(a.RequiresPriorAuth), nullIfEmpty(a.Notes),
		now(), a.ID)
	if err != nil {
		return fmt.Errorf("update authorization: %w", err)
	}
	return expectOneRow(result, ErrAuthorizationNotFound)
}

// DeleteAuthorization soft-deletes a live authorization. It is purged with
// the other soft-deleted records.
func (s *SQLiteStore) DeleteAuthorization(ctx context.Context, id string) error {
	ts := now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_authorizations SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND `+liveClientOnly, ts, ts, id)
	if err != nil {
		return fmt.Errorf("soft delete authorization: %w", err)
	}
	return expectOneRow(result, ErrAuthorizationNotFound)
}

func (s *SQLiteStore) requireInsuranceOf(ctx context.Context, clientID, insuranceID string) error {
	if insuranceID == "" {
		return nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM client_insurances WHERE id = ? AND client_id = ?`, insuranceID, clientID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInsuranceMismatch
	}
	if err != nil {
		return fmt.Errorf("check insurance: %w", err)
	}
	return nil
}

func listAuthorizations(ctx context.Context, q dbtx, clientID string) ([]types.Authorization, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, insurance_id, payor_type, service_type, billing_code,
			treatment_requested, units_requested, units_used, units_per_week_authorized,
			rate_per_unit, start_date, end_date, status, auth_reference_number,
			requires_prior_auth, notes, created_at
		FROM client_authorizations
		WHERE client_id = ? AND deleted_at IS NULL
		ORDER BY created_at
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query authorizations: %w", err)
	}
	defer rows.Close()

	var out []types.Authorization
	for rows.Next() {
		var a types.Authorization
		var insuranceID, payor, service, billing, treatment, start, end, ref, notes sql.NullString
		var requested, perWeek sql.NullInt64
		var rate sql.NullFloat64
		var status, createdAt string
		var priorAuth int
		if err := rows.Scan(&a.ID, &a.ClientID, &insuranceID, &payor, &service, &billing,
			&treatment, &requested, &a.UnitsUsed, &perWeek,
			&rate, &start, &end, &status, &ref,
			&priorAuth, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		a.InsuranceID = insuranceID.String
		a.PayorType = types.PayorType(payor.String)
		a.ServiceType = service.String
		a.BillingCode = billing.String
		a.TreatmentRequested = treatment.String
		if requested.Valid {
			n := int(requested.Int64)
			a.UnitsRequested = &n
		}
		if perWeek.Valid {
			n := int(perWeek.Int64)
			a.UnitsPerWeekAuthorized = &n
		}
		if rate.Valid {
			a.RatePerUnit = &rate.Float64
		}
		a.StartDate = start.String
		a.EndDate = end.String
		a.Status = types.AuthStatus(status)
		a.AuthReferenceNumber = ref.String
		a.RequiresPriorAuth = priorAuth != 0
		a.Notes = notes.String
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// taskVisible matches live tasks that either stand alone or belong to a live client.
const taskVisible = `t.deleted_at IS NULL AND (t.client_id IS NULL OR t.client_id IN (SELECT id FROM clients WHERE deleted_at IS NULL))`

// CreateTask inserts a task. A task with a ClientID must name a live client.
// Status defaults to pending.
func (s *SQLiteStore) CreateTask(ctx context.Context, task types.Task) (string, error) {
	if task.ClientID != "" {
		if err := requireLiveClient(ctx, s.db, task.ClientID); err != nil {
			return "", err
		}
	}

	status := task.Status
	if status == "" {
		status = types.TaskPending
	}
	id := ulid.Make().String()
	ts := now()
	var completedAt any
	if status == types.TaskCompleted {
		completedAt = ts
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_tasks (
			id, client_id, title, content, status, due_date, reminder_at, completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, nullIfEmpty(task.ClientID), task.Title, nullIfEmpty(task.Content), string(status),
		nullIfEmpty(task.DueDate), nullIfEmpty(task.ReminderAt), completedAt, ts, ts)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// UpdateTask replaces the editable fields of a live task. An empty status
// keeps the current one. Moving to completed stamps completed_at once;
// moving back to pending clears it. The owning client cannot change.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task types.Task) error {
	ts := now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_tasks AS t SET
			title = ?1, content = ?2, due_date = ?3, reminder_at = ?4,
			status = COALESCE(?5, status),
			completed_at = CASE COALESCE(?5, status)
				WHEN 'completed' THEN COALESCE(completed_at, ?6)
				ELSE NULL
			END,
			updated_at = ?6
		WHERE t.id = ?7 AND `+taskVisible,
		task.Title, nullIfEmpty(task.Content), nullIfEmpty(task.DueDate), nullIfEmpty(task.ReminderAt),
		nullIfEmpty(string(task.Status)), ts, task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectOneRow(result, ErrTaskNotFound)
}

// CompleteTask marks a live task completed as of now.
func (s *SQLiteStore) CompleteTask(ctx context.Context, id string) error {
	ts := now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_tasks AS t SET status = 'completed', completed_at = ?, updated_at = ?
		WHERE t.id = ? AND `+taskVisible, ts, ts, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return expectOneRow(result, ErrTaskNotFound)
}

// DeleteTask soft-deletes a live task.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	ts := now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_tasks AS t SET deleted_at = ?, updated_at = ?
		WHERE t.id = ? AND `+taskVisible, ts, ts, id)
	if err != nil {
		return fmt.Errorf("soft delete task: %w", err)
	}
	return expectOneRow(result, ErrTaskNotFound)
}

// ListTasks returns live tasks soonest due first, undated last, then newest
// first. Each task carries its client's name.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter types.TaskFilter) ([]types.Task, error) {
	return listTasks(ctx, s.db, filter)
}

func listTasks(ctx context.Context, q dbtx, filter types.TaskFilter) ([]types.Task, error) {
	where := []string{taskVisible}
	var args []any
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ClientID != "" {
		where = append(where, "t.client_id = ?")
		args = append(args, filter.ClientID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT t.id, t.client_id, t.title, t.content, t.status, t.due_date, t.reminder_at,
			t.completed_at, t.created_at, c.child_first_name, c.child_last_name
		FROM client_tasks t LEFT JOIN clients c ON c.id = t.client_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY t.due_date ASC NULLS LAST, t.created_at DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var t types.Task
		var clientID, content, due, reminder, completedAt, first, last sql.NullString
		var status, createdAt string
		if err := rows.Scan(&t.ID, &clientID, &t.Title, &content, &status, &due, &reminder,
			&completedAt, &createdAt, &first, &last); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ClientID = clientID.String
		t.Content = content.String
		t.Status = types.TaskStatus(status)
		t.DueDate = due.String
		t.ReminderAt = reminder.String
		if completedAt.Valid {
			ts := parseTime(completedAt.String)
			t.CompletedAt = &ts
		}
		t.CreatedAt = parseTime(createdAt)
		t.ClientName = strings.TrimSpace(first.String + " " + last.String)
		out = append(out, t)
	}
	return out, rows.Err()
}
