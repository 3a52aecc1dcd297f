package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/caseload/internal/types"
	"github.com/oklog/ulid/v2"
)

var childTables = map[types.ChildKind]string{
	types.KindGuardian:  "client_guardians",
	types.KindLocation:  "client_locations",
	types.KindInsurance: "client_insurances",
}

// CreateChild inserts a child record under a live client and returns its ID.
func (s *SQLiteStore) CreateChild(ctx context.Context, clientID string, child types.Child) (string, error) {
	return createChild(ctx, s.db, clientID, child)
}

func createChild(ctx context.Context, q dbtx, clientID string, child types.Child) (string, error) {
	if err := requireLiveClient(ctx, q, clientID); err != nil {
		return "", err
	}

	id := ulid.Make().String()
	ts := now()
	var err error

	switch c := child.(type) {
	case types.Guardian:
		_, err = q.ExecContext(ctx, `
			INSERT INTO client_guardians (
				id, client_id, first_name, last_name, relationship, phone, email, notes,
				is_primary, sort_order, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, clientID, nullIfEmpty(c.FirstName), nullIfEmpty(c.LastName),
			nullIfEmpty(string(c.Relationship)), nullIfEmpty(c.Phone), nullIfEmpty(c.Email),
			nullIfEmpty(c.Notes), boolInt(c.IsPrimary), c.SortOrder, ts, ts)
	case types.Location:
		_, err = q.ExecContext(ctx, `
			INSERT INTO client_locations (
				id, client_id, label, street_address, city, state, postal_code,
				latitude, longitude, place_id, notes, is_primary, sort_order, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, clientID, nullIfEmpty(c.Label), nullIfEmpty(c.StreetAddress), nullIfEmpty(c.City),
			nullIfEmpty(c.State), nullIfEmpty(c.PostalCode), nullFloat(c.Latitude), nullFloat(c.Longitude),
			nullIfEmpty(c.PlaceID), nullIfEmpty(c.Notes), boolInt(c.IsPrimary), c.SortOrder, ts, ts)
	case types.Insurance:
		status := c.Status
		if status == "" {
			status = types.InsurancePendingVerification
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO client_insurances (
				id, client_id, insurance_name, insurance_type, member_id, group_number, status,
				is_primary, sort_order, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, clientID, nullIfEmpty(c.InsuranceName), nullIfEmpty(string(c.InsuranceType)),
			nullIfEmpty(c.MemberID), nullIfEmpty(c.GroupNumber), string(status),
			boolInt(c.IsPrimary), c.SortOrder, ts, ts)
	default:
		return "", ErrUnknownKind
	}
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", child.Kind(), err)
	}
	return id, nil
}

// UpdateChild replaces every field of an existing child record.
// The record must belong to a live client.
func (s *SQLiteStore) UpdateChild(ctx context.Context, child types.Child) error {
	return updateChild(ctx, s.db, child)
}

func updateChild(ctx context.Context, q dbtx, child types.Child) error {
	ts := now()
	var result sql.Result
	var err error

	switch c := child.(type) {
	case types.Guardian:
		result, err = q.ExecContext(ctx, `
			UPDATE client_guardians SET
				first_name = ?, last_name = ?, relationship = ?, phone = ?, email = ?, notes = ?,
				is_primary = ?, sort_order = ?, updated_at = ?
			WHERE id = ? AND client_id IN (SELECT id FROM clients WHERE deleted_at IS NULL)
		`, nullIfEmpty(c.FirstName), nullIfEmpty(c.LastName), nullIfEmpty(string(c.Relationship)),
			nullIfEmpty(c.Phone), nullIfEmpty(c.Email), nullIfEmpty(c.Notes),
			boolInt(c.IsPrimary), c.SortOrder, ts, c.ID)
	case types.Location:
		result, err = q.ExecContext(ctx, `
			UPDATE client_locations SET
				label = ?, street_address = ?, city = ?, state = ?, postal_code = ?,
				latitude = ?, longitude = ?, place_id = ?, notes = ?,
				is_primary = ?, sort_order = ?, updated_at = ?
			WHERE id = ? AND client_id IN (SELECT id FROM clients WHERE deleted_at IS NULL)
		`, nullIfEmpty(c.Label), nullIfEmpty(c.StreetAddress), nullIfEmpty(c.City),
			nullIfEmpty(c.State), nullIfEmpty(c.PostalCode), nullFloat(c.Latitude), nullFloat(c.Longitude),
			nullIfEmpty(c.PlaceID), nullIfEmpty(c.Notes), boolInt(c.IsPrimary), c.SortOrder, ts, c.ID)
	case types.Insurance:
		status := c.Status
		if status == "" {
			status = types.InsurancePendingVerification
		}
		result, err = q.ExecContext(ctx, `
			UPDATE client_insurances SET
				insurance_name = ?, insurance_type = ?, member_id = ?, group_number = ?, status = ?,
				is_primary = ?, sort_order = ?, updated_at = ?
			WHERE id = ? AND client_id IN (SELECT id FROM clients WHERE deleted_at IS NULL)
		`, nullIfEmpty(c.InsuranceName), nullIfEmpty(string(c.InsuranceType)), nullIfEmpty(c.MemberID),
			nullIfEmpty(c.GroupNumber), string(status), boolInt(c.IsPrimary), c.SortOrder, ts, c.ID)
	default:
		return ErrUnknownKind
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", child.Kind(), err)
	}
	return expectOneRow(result, ErrNotFound)
}

// DeleteChild permanently removes a child record of a live client.
func (s *SQLiteStore) DeleteChild(ctx context.Context, kind types.ChildKind, id string) error {
	table, ok := childTables[kind]
	if !ok {
		return ErrUnknownKind
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM `+table+`
		WHERE id = ? AND client_id IN (SELECT id FROM clients WHERE deleted_at IS NULL)
	`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return expectOneRow(result, ErrNotFound)
}

func requireLiveClient(ctx context.Context, q dbtx, clientID string) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM clients WHERE id = ? AND deleted_at IS NULL`, clientID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrClientNotFound
	}
	if err != nil {
		return fmt.Errorf("check client: %w", err)
	}
	return nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// listGuardians returns guardians of the given clients in sort order.
func listGuardians(ctx context.Context, q dbtx, clientIDs []string) ([]types.Guardian, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, first_name, last_name, relationship, phone, email, notes,
			is_primary, sort_order, created_at
		FROM client_guardians WHERE client_id IN (`+placeholders(len(clientIDs))+`)
		ORDER BY sort_order, created_at
	`, idArgs(clientIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query guardians: %w", err)
	}
	defer rows.Close()

	var out []types.Guardian
	for rows.Next() {
		var g types.Guardian
		var first, last, rel, phone, email, notes sql.NullString
		var primary int
		var createdAt string
		if err := rows.Scan(&g.ID, &g.ClientID, &first, &last, &rel, &phone, &email, &notes,
			&primary, &g.SortOrder, &createdAt); err != nil {
			return nil, fmt.Errorf("scan guardian: %w", err)
		}
		g.FirstName = first.String
		g.LastName = last.String
		g.Relationship = types.GuardianRelationship(rel.String)
		g.Phone = phone.String
		g.Email = email.String
		g.Notes = notes.String
		g.IsPrimary = primary != 0
		g.CreatedAt = parseTime(createdAt)
		out = append(out, g)
	}
	return out, rows.Err()
}

func listLocations(ctx context.Context, q dbtx, clientID string) ([]types.Location, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, label, street_address, city, state, postal_code,
			latitude, longitude, place_id, notes, is_primary, sort_order, created_at
		FROM client_locations WHERE client_id = ?
		ORDER BY sort_order, created_at
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var out []types.Location
	for rows.Next() {
		var l types.Location
		var label, street, city, state, postal, placeID, notes sql.NullString
		var lat, lng sql.NullFloat64
		var primary int
		var createdAt string
		if err := rows.Scan(&l.ID, &l.ClientID, &label, &street, &city, &state, &postal,
			&lat, &lng, &placeID, &notes, &primary, &l.SortOrder, &createdAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.Label = label.String
		l.StreetAddress = street.String
		l.City = city.String
		l.State = state.String
		l.PostalCode = postal.String
		if lat.Valid {
			l.Latitude = &lat.Float64
		}
		if lng.Valid {
			l.Longitude = &lng.Float64
		}
		l.PlaceID = placeID.String
		l.Notes = notes.String
		l.IsPrimary = primary != 0
		l.CreatedAt = parseTime(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func listInsurances(ctx context.Context, q dbtx, clientIDs []string) ([]types.Insurance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, insurance_name, insurance_type, member_id, group_number, status,
			is_primary, sort_order, created_at
		FROM client_insurances WHERE client_id IN (`+placeholders(len(clientIDs))+`)
		ORDER BY sort_order, created_at
	`, idArgs(clientIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query insurances: %w", err)
	}
	defer rows.Close()

	var out []types.Insurance
	for rows.Next() {
		var ins types.Insurance
		var name, kind, member, group sql.NullString
		var status string
		var primary int
		var createdAt string
		if err := rows.Scan(&ins.ID, &ins.ClientID, &name, &kind, &member, &group, &status,
			&primary, &ins.SortOrder, &createdAt); err != nil {
			return nil, fmt.Errorf("scan insurance: %w", err)
		}
		ins.InsuranceName = name.String
		ins.InsuranceType = types.InsuranceType(kind.String)
		ins.MemberID = member.String
		ins.GroupNumber = group.String
		ins.Status = types.InsuranceStatus(status)
		ins.IsPrimary = primary != 0
		ins.CreatedAt = parseTime(createdAt)
		out = append(out, ins)
	}
	return out, rows.Err()
}

// SaveComposite writes the whole form in one transaction: the client row, then
// every meaningful child row. Rows with an ID are updated, rows without are
// created. An empty clientID creates a new client. Returns the client ID.
func (s *SQLiteStore) SaveComposite(ctx context.Context, clientID string, form types.Composite) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if clientID == "" {
		client, err := createClient(ctx, tx, form.ClientFields)
		if err != nil {
			return "", err
		}
		clientID = client.ID
	} else if err := updateClient(ctx, tx, clientID, form.ClientFields); err != nil {
		return "", err
	}

	for _, kind := range types.ChildKinds {
		for _, child := range form.Children(kind) {
			if !child.Meaningful() {
				continue
			}
			if child.ChildID() == "" {
				if _, err := createChild(ctx, tx, clientID, child); err != nil {
					return "", err
				}
				continue
			}
			if err := updateChild(ctx, tx, child); err != nil {
				return "", fmt.Errorf("%s %s: %w", kind, child.ChildID(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return clientID, nil
}
