package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Household struct {
	ID            string
	BandID        string
	Position      string
	HasPets       bool
	HasDependents bool
	Mode          string
	Planning      string
	IncomeAnchor  int64
}

type Allocation struct {
	HouseholdID  string
	Version      int64
	SessionID    string
	Outcome      string
	IncomeAnchor int64
	ConfirmedAt  string
	ExportStatus string
	ExportError  string
	ExportedAt   sql.NullString
}

type AllocationItem struct {
	HouseholdID string
	Prefix      string
	Position    int64
	Name        string
	CategoryID  string
	Percentage  float64
	Amount      int64
	IsEdited    bool
}

type AllocationSubcategory struct {
	HouseholdID string
	Prefix      string
	ID          string
	Position    int64
	Name        string
	Amount      int64
	Percentage  float64
}

const upsertHousehold = `
INSERT INTO households (id, band_id, position, has_pets, has_dependents, mode, planning, income_anchor)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    band_id = excluded.band_id,
    position = excluded.position,
    has_pets = excluded.has_pets,
    has_dependents = excluded.has_dependents,
    mode = excluded.mode,
    planning = excluded.planning,
    income_anchor = excluded.income_anchor,
    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
`

func (q *Queries) UpsertHousehold(ctx context.Context, h Household) error {
	_, err := q.db.ExecContext(ctx, upsertHousehold,
		h.ID, h.BandID, h.Position, h.HasPets, h.HasDependents, h.Mode, h.Planning, h.IncomeAnchor)
	return err
}

const getHousehold = `
SELECT id, band_id, position, has_pets, has_dependents, mode, planning, income_anchor
FROM households WHERE id = ?
`

func (q *Queries) GetHousehold(ctx context.Context, id string) (Household, error) {
	var h Household
	err := q.db.QueryRowContext(ctx, getHousehold, id).Scan(
		&h.ID, &h.BandID, &h.Position, &h.HasPets, &h.HasDependents, &h.Mode, &h.Planning, &h.IncomeAnchor)
	return h, err
}

const getAllocationVersion = `SELECT version FROM allocations WHERE household_id = ?`

func (q *Queries) GetAllocationVersion(ctx context.Context, householdID string) (int64, error) {
	var v int64
	err := q.db.QueryRowContext(ctx, getAllocationVersion, householdID).Scan(&v)
	return v, err
}

const upsertAllocation = `
INSERT INTO allocations (household_id, version, session_id, outcome, income_anchor, confirmed_at, export_status, export_error, exported_at)
VALUES (?, ?, ?, ?, ?, ?, 'pending', '', NULL)
ON CONFLICT(household_id) DO UPDATE SET
    version = excluded.version,
    session_id = excluded.session_id,
    outcome = excluded.outcome,
    income_anchor = excluded.income_anchor,
    confirmed_at = excluded.confirmed_at,
    export_status = 'pending',
    export_error = '',
    exported_at = NULL
`

func (q *Queries) UpsertAllocation(ctx context.Context, a Allocation) error {
	_, err := q.db.ExecContext(ctx, upsertAllocation,
		a.HouseholdID, a.Version, a.SessionID, a.Outcome, a.IncomeAnchor, a.ConfirmedAt)
	return err
}

const deleteAllocationSubcategories = `DELETE FROM allocation_subcategories WHERE household_id = ?`

func (q *Queries) DeleteAllocationSubcategories(ctx context.Context, householdID string) error {
	_, err := q.db.ExecContext(ctx, deleteAllocationSubcategories, householdID)
	return err
}

const deleteAllocationItems = `DELETE FROM allocation_items WHERE household_id = ?`

func (q *Queries) DeleteAllocationItems(ctx context.Context, householdID string) error {
	_, err := q.db.ExecContext(ctx, deleteAllocationItems, householdID)
	return err
}

const insertAllocationItem = `
INSERT INTO allocation_items (household_id, prefix, position, name, category_id, percentage, amount, is_edited)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertAllocationItem(ctx context.Context, it AllocationItem) error {
	_, err := q.db.ExecContext(ctx, insertAllocationItem,
		it.HouseholdID, it.Prefix, it.Position, it.Name, it.CategoryID, it.Percentage, it.Amount, it.IsEdited)
	return err
}

const insertAllocationSubcategory = `
INSERT INTO allocation_subcategories (household_id, prefix, id, position, name, amount, percentage)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertAllocationSubcategory(ctx context.Context, s AllocationSubcategory) error {
	_, err := q.db.ExecContext(ctx, insertAllocationSubcategory,
		s.HouseholdID, s.Prefix, s.ID, s.Position, s.Name, s.Amount, s.Percentage)
	return err
}

const getAllocation = `
SELECT household_id, version, session_id, outcome, income_anchor, confirmed_at, export_status, export_error, exported_at
FROM allocations WHERE household_id = ?
`

func (q *Queries) GetAllocation(ctx context.Context, householdID string) (Allocation, error) {
	var a Allocation
	err := q.db.QueryRowContext(ctx, getAllocation, householdID).Scan(
		&a.HouseholdID, &a.Version, &a.SessionID, &a.Outcome, &a.IncomeAnchor,
		&a.ConfirmedAt, &a.ExportStatus, &a.ExportError, &a.ExportedAt)
	return a, err
}

const listAllocationItems = `
SELECT household_id, prefix, position, name, category_id, percentage, amount, is_edited
FROM allocation_items WHERE household_id = ? ORDER BY position
`

func (q *Queries) ListAllocationItems(ctx context.Context, householdID string) ([]AllocationItem, error) {
	rows, err := q.db.QueryContext(ctx, listAllocationItems, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AllocationItem
	for rows.Next() {
		var it AllocationItem
		if err := rows.Scan(&it.HouseholdID, &it.Prefix, &it.Position, &it.Name,
			&it.CategoryID, &it.Percentage, &it.Amount, &it.IsEdited); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const listAllocationSubcategories = `
SELECT household_id, prefix, id, position, name, amount, percentage
FROM allocation_subcategories WHERE household_id = ? ORDER BY prefix, position
`

func (q *Queries) ListAllocationSubcategories(ctx context.Context, householdID string) ([]AllocationSubcategory, error) {
	rows, err := q.db.QueryContext(ctx, listAllocationSubcategories, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []AllocationSubcategory
	for rows.Next() {
		var s AllocationSubcategory
		if err := rows.Scan(&s.HouseholdID, &s.Prefix, &s.ID, &s.Position, &s.Name, &s.Amount, &s.Percentage); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

const listPendingExports = `
SELECT household_id, version, confirmed_at
FROM allocations WHERE export_status = 'pending'
ORDER BY confirmed_at, household_id
LIMIT ?
`

type ListPendingExportsRow struct {
	HouseholdID string
	Version     int64
	ConfirmedAt string
}

func (q *Queries) ListPendingExports(ctx context.Context, limit int64) ([]ListPendingExportsRow, error) {
	rows, err := q.db.QueryContext(ctx, listPendingExports, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListPendingExportsRow
	for rows.Next() {
		var r ListPendingExportsRow
		if err := rows.Scan(&r.HouseholdID, &r.Version, &r.ConfirmedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const markAllocationExported = `
UPDATE allocations SET export_status = 'exported', export_error = '', exported_at = ?
WHERE household_id = ? AND version = ?
`

func (q *Queries) MarkAllocationExported(ctx context.Context, householdID string, version int64, exportedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllocationExported, exportedAt, householdID, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markAllocationExportError = `
UPDATE allocations SET export_status = 'error', export_error = ?
WHERE household_id = ? AND version = ?
`

func (q *Queries) MarkAllocationExportError(ctx context.Context, householdID string, version int64, reason string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllocationExportError, reason, householdID, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
