package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/caseload/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timestampFormat is fixed width so stored timestamps compare correctly as text.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// SQLiteStore represents the SQLite-backed client database.
type SQLiteStore struct {
	db *sql.DB

	snapshotting atomic.Bool
	mu           sync.RWMutex
	lastSnapshot *time.Time
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so helpers can run inside or
// outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if _, err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(timestampFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timestampFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// nullIfEmpty stores empty strings as NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetStats returns aggregate store statistics
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN deleted_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM clients
	`).Scan(&stats.ClientCount, &stats.DeletedCount)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	s.mu.RLock()
	stats.LastSnapshot = s.lastSnapshot
	s.mu.RUnlock()

	return &stats, nil
}

// CreateClient inserts a new client. An empty status defaults to inquiry.
func (s *SQLiteStore) CreateClient(ctx context.Context, fields types.ClientFields) (*types.Client, error) {
	return createClient(ctx, s.db, fields)
}

func createClient(ctx context.Context, q dbtx, fields types.ClientFields) (*types.Client, error) {
	if fields.Status == "" {
		fields.Status = types.StatusInquiry
	}
	if !fields.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	diagnosis, err := marshalDiagnosis(fields.ChildDiagnosis)
	if err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	ts := now()

	_, err = q.ExecContext(ctx, `
		INSERT INTO clients (
			id, status, inquiry_id, converted_from_inquiry, referral_source, referral_date,
			service_start_date, service_end_date, discharge_reason, funding_source,
			preferred_language, child_first_name, child_last_name, child_date_of_birth,
			child_diagnosis, child_primary_concerns, child_aba_history, child_school_name,
			child_school_district, child_grade_level, child_other_therapies,
			child_pediatrician_name, child_pediatrician_phone, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, string(fields.Status), nullIfEmpty(fields.InquiryID), boolInt(fields.InquiryID != ""),
		nullIfEmpty(fields.ReferralSource), nullIfEmpty(fields.ReferralDate),
		nullIfEmpty(fields.ServiceStartDate), nullIfEmpty(fields.ServiceEndDate),
		nullIfEmpty(fields.DischargeReason), nullIfEmpty(string(fields.FundingSource)),
		nullIfEmpty(fields.PreferredLanguage), nullIfEmpty(fields.ChildFirstName),
		nullIfEmpty(fields.ChildLastName), nullIfEmpty(fields.ChildDateOfBirth),
		diagnosis, nullIfEmpty(fields.ChildPrimaryConcerns), nullIfEmpty(fields.ChildABAHistory),
		nullIfEmpty(fields.ChildSchoolName), nullIfEmpty(fields.ChildSchoolDistrict),
		nullIfEmpty(fields.ChildGradeLevel), nullIfEmpty(fields.ChildOtherTherapies),
		nullIfEmpty(fields.ChildPediatricianName), nullIfEmpty(fields.ChildPediatricianPhone),
		nullIfEmpty(fields.Notes), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}

	created := parseTime(ts)
	return &types.Client{
		ID:                   id,
		ClientFields:         fields,
		ConvertedFromInquiry: fields.InquiryID != "",
		CreatedAt:            created,
		UpdatedAt:            created,
	}, nil
}

// UpdateClient replaces the scalar fields of a live client.
// An empty status leaves the current status unchanged.
func (s *SQLiteStore) UpdateClient(ctx context.Context, id string, fields types.ClientFields) error {
	return updateClient(ctx, s.db, id, fields)
}

func updateClient(ctx context.Context, q dbtx, id string, fields types.ClientFields) error {
	if fields.Status != "" && !fields.Status.Valid() {
		return ErrInvalidStatus
	}
	diagnosis, err := marshalDiagnosis(fields.ChildDiagnosis)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE clients SET
			status = COALESCE(?, status),
			referral_source = ?, referral_date = ?, service_start_date = ?,
			service_end_date = ?, discharge_reason = ?, funding_source = ?,
			preferred_language = ?, child_first_name = ?, child_last_name = ?,
			child_date_of_birth = ?, child_diagnosis = ?, child_primary_concerns = ?,
			child_aba_history = ?, child_school_name = ?, child_school_district = ?,
			child_grade_level = ?, child_other_therapies = ?, child_pediatrician_name = ?,
			child_pediatrician_phone = ?, notes = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		nullIfEmpty(string(fields.Status)),
		nullIfEmpty(fields.ReferralSource), nullIfEmpty(fields.ReferralDate),
		nullIfEmpty(fields.ServiceStartDate), nullIfEmpty(fields.ServiceEndDate),
		nullIfEmpty(fields.DischargeReason), nullIfEmpty(string(fields.FundingSource)),
		nullIfEmpty(fields.PreferredLanguage), nullIfEmpty(fields.ChildFirstName),
		nullIfEmpty(fields.ChildLastName), nullIfEmpty(fields.ChildDateOfBirth),
		diagnosis, nullIfEmpty(fields.ChildPrimaryConcerns), nullIfEmpty(fields.ChildABAHistory),
		nullIfEmpty(fields.ChildSchoolName), nullIfEmpty(fields.ChildSchoolDistrict),
		nullIfEmpty(fields.ChildGradeLevel), nullIfEmpty(fields.ChildOtherTherapies),
		nullIfEmpty(fields.ChildPediatricianName), nullIfEmpty(fields.ChildPediatricianPhone),
		nullIfEmpty(fields.Notes), now(), id,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return expectOneRow(result, ErrClientNotFound)
}

// UpdateClientStatus moves a live client to a new pipeline stage.
func (s *SQLiteStore) UpdateClientStatus(ctx context.Context, id string, status types.ClientStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, string(status), now(), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectOneRow(result, ErrClientNotFound)
}

// DeleteClient soft-deletes a live client. Deleting twice returns ErrClientNotFound.
func (s *SQLiteStore) DeleteClient(ctx context.Context, id string) error {
	ts := now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, ts, ts, id)
	if err != nil {
		return fmt.Errorf("soft delete client: %w", err)
	}
	return expectOneRow(result, ErrClientNotFound)
}

// purgeTables are emptied of rows soft-deleted before the cutoff. Clients go
// last; their remaining child records follow through ON DELETE CASCADE.
var purgeTables = []string{"client_tasks", "client_authorizations", "clients"}

// PurgeDeleted permanently removes records soft-deleted before the given time
// and returns how many rows were removed across all tables.
func (s *SQLiteStore) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(timestampFormat)
	var total int64
	for _, table := range purgeTables {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("purge deleted %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("get rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// GenerateSnapshot writes a consistent copy of the database to path.
// Returns ErrSnapshotInProgress if another snapshot is being written.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context, path string) error {
	if path == "" {
		return ErrSnapshotTarget
	}
	if !s.snapshotting.CompareAndSwap(false, true) {
		return ErrSnapshotInProgress
	}
	defer s.snapshotting.Store(false)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove previous snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}

	t := time.Now().UTC()
	s.mu.Lock()
	s.lastSnapshot = &t
	s.mu.Unlock()

	return nil
}

func expectOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func marshalDiagnosis(d []string) (string, error) {
	if d == nil {
		d = []string{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal diagnosis: %w", err)
	}
	return string(b), nil
}

const clientColumns = `
	id, status, inquiry_id, converted_from_inquiry, referral_source, referral_date,
	service_start_date, service_end_date, discharge_reason, funding_source,
	preferred_language, child_first_name, child_last_name, child_date_of_birth,
	child_diagnosis, child_primary_concerns, child_aba_history, child_school_name,
	child_school_district, child_grade_level, child_other_therapies,
	child_pediatrician_name, child_pediatrician_phone, notes, created_at, updated_at, deleted_at`

// scanClient scans a row selected with clientColumns.
func scanClient(scanner interface{ Scan(...any) error }) (*types.Client, error) {
	var c types.Client
	var status, diagnosis, createdAt, updatedAt string
	var converted int
	var inquiryID, referralSource, referralDate, serviceStart, serviceEnd, dischargeReason,
		funding, language, firstName, lastName, dob, concerns, history, school, district,
		grade, therapies, pediatrician, pediatricianPhone, notes, deletedAt sql.NullString

	err := scanner.Scan(
		&c.ID, &status, &inquiryID, &converted, &referralSource, &referralDate,
		&serviceStart, &serviceEnd, &dischargeReason, &funding,
		&language, &firstName, &lastName, &dob,
		&diagnosis, &concerns, &history, &school,
		&district, &grade, &therapies,
		&pediatrician, &pediatricianPhone, &notes, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = types.ClientStatus(status)
	c.InquiryID = inquiryID.String
	c.ConvertedFromInquiry = converted != 0
	c.ReferralSource = referralSource.String
	c.ReferralDate = referralDate.String
	c.ServiceStartDate = serviceStart.String
	c.ServiceEndDate = serviceEnd.String
	c.DischargeReason = dischargeReason.String
	c.FundingSource = types.FundingSource(funding.String)
	c.PreferredLanguage = language.String
	c.ChildFirstName = firstName.String
	c.ChildLastName = lastName.String
	c.ChildDateOfBirth = dob.String
	c.ChildPrimaryConcerns = concerns.String
	c.ChildABAHistory = history.String
	c.ChildSchoolName = school.String
	c.ChildSchoolDistrict = district.String
	c.ChildGradeLevel = grade.String
	c.ChildOtherTherapies = therapies.String
	c.ChildPediatricianName = pediatrician.String
	c.ChildPediatricianPhone = pediatricianPhone.String
	c.Notes = notes.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		c.DeletedAt = &t
	}

	if diagnosis != "" {
		if err := json.Unmarshal([]byte(diagnosis), &c.ChildDiagnosis); err != nil {
			return nil, fmt.Errorf("parse diagnosis JSON: %w", err)
		}
	}

	return &c, nil
}

// GetClient returns a live client with its child collections.
func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*types.ClientDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? AND deleted_at IS NULL`, id)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}

	detail := &types.ClientDetail{Client: *client}
	if detail.Guardians, err = listGuardians(ctx, s.db, []string{id}); err != nil {
		return nil, err
	}
	if detail.Locations, err = listLocations(ctx, s.db, id); err != nil {
		return nil, err
	}
	if detail.Insurances, err = listInsurances(ctx, s.db, []string{id}); err != nil {
		return nil, err
	}
	if detail.Authorizations, err = listAuthorizations(ctx, s.db, id); err != nil {
		return nil, err
	}
	if detail.Tasks, err = listTasks(ctx, s.db, types.TaskFilter{ClientID: id}); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListClients returns one page of live clients, newest first, with counts over
// every live client regardless of filter.
func (s *SQLiteStore) ListClients(ctx context.Context, filter types.ListFilter) (*types.ClientList, error) {
	counts, err := s.countByStatus(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"deleted_at IS NULL"}
	var args []any
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		where = append(where, `(child_first_name LIKE ? ESCAPE '\' OR child_last_name LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, child_first_name, child_last_name, child_date_of_birth, created_at, updated_at
		FROM clients WHERE `+whereSQL+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var items []types.ClientListItem
	for rows.Next() {
		var item types.ClientListItem
		var status, createdAt, updatedAt string
		var first, last, dob sql.NullString
		if err := rows.Scan(&item.ID, &status, &first, &last, &dob, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		item.Status = types.ClientStatus(status)
		item.ChildFirstName = first.String
		item.ChildLastName = last.String
		item.ChildDateOfBirth = dob.String
		item.CreatedAt = parseTime(createdAt)
		item.UpdatedAt = parseTime(updatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	rows.Close()

	if err := s.denormalize(ctx, items); err != nil {
		return nil, err
	}

	return &types.ClientList{Clients: items, Counts: counts, Total: total}, nil
}

func (s *SQLiteStore) countByStatus(ctx context.Context) (types.ClientCounts, error) {
	counts := types.NewClientCounts()
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM clients WHERE deleted_at IS NULL GROUP BY status
	`)
	if err != nil {
		return counts, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scan count: %w", err)
		}
		counts.Total += n
		if _, ok := counts.ByStatus[types.ClientStatus(status)]; ok {
			counts.ByStatus[types.ClientStatus(status)] = n
		}
	}
	return counts, rows.Err()
}

// denormalize fills the primary guardian and insurance columns of each item.
// Primary is the first child flagged is_primary, else the first by sort order.
func (s *SQLiteStore) denormalize(ctx context.Context, items []types.ClientListItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	guardians, err := listGuardians(ctx, s.db, ids)
	if err != nil {
		return err
	}
	insurances, err := listInsurances(ctx, s.db, ids)
	if err != nil {
		return err
	}

	primaryGuardian := make(map[string]types.Guardian)
	for _, g := range guardians {
		if cur, ok := primaryGuardian[g.ClientID]; !ok || (g.IsPrimary && !cur.IsPrimary) {
			primaryGuardian[g.ClientID] = g
		}
	}
	primaryInsurance := make(map[string]types.Insurance)
	for _, ins := range insurances {
		if cur, ok := primaryInsurance[ins.ClientID]; !ok || (ins.IsPrimary && !cur.IsPrimary) {
			primaryInsurance[ins.ClientID] = ins
		}
	}

	for i := range items {
		if g, ok := primaryGuardian[items[i].ID]; ok {
			items[i].PrimaryGuardianName = g.Name()
			items[i].PrimaryGuardianPhone = g.Phone
			items[i].PrimaryGuardianEmail = g.Email
		}
		if ins, ok := primaryInsurance[items[i].ID]; ok {
			items[i].PrimaryInsuranceName = ins.InsuranceName
			items[i].PrimaryInsuranceMemberID = ins.MemberID
		}
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
