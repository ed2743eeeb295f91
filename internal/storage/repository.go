package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"orcamento/internal/core"
	"orcamento/internal/sheets"

	_ "modernc.org/sqlite"
)

// Fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	_ sheets.ProfileStore    = (*SQLiteRepository)(nil)
	_ sheets.AllocationStore = (*SQLiteRepository)(nil)
	_ sheets.ExportQueue     = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveProfile implements sheets.ProfileStore
func (r *SQLiteRepository) SaveProfile(ctx context.Context, householdID string, p core.Profile) error {
	if err := core.ValidateHouseholdID(householdID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertHousehold(ctx, Household{
		ID:            householdID,
		BandID:        p.BandID,
		Position:      string(p.Position),
		HasPets:       p.HasPets,
		HasDependents: p.HasDependents,
		Mode:          string(p.Mode),
		Planning:      string(p.Planning),
		IncomeAnchor:  p.IncomeAnchor,
	})
	if err != nil {
		return fmt.Errorf("upsert household: %w", err)
	}

	slog.InfoContext(ctx, "Household profile saved",
		"household_id", householdID,
		"band", p.BandID,
		"position", p.Position,
		"mode", p.Mode)
	return nil
}

// LoadProfile implements sheets.ProfileStore
func (r *SQLiteRepository) LoadProfile(ctx context.Context, householdID string) (core.Profile, error) {
	h, err := r.queries.GetHousehold(ctx, householdID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", householdID, core.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get household: %w", err)
	}
	return core.Profile{
		BandID:        h.BandID,
		Position:      core.Position(h.Position),
		HasPets:       h.HasPets,
		HasDependents: h.HasDependents,
		Mode:          core.BudgetMode(h.Mode),
		Planning:      core.PlanningLevel(h.Planning),
		IncomeAnchor:  h.IncomeAnchor,
	}, nil
}

// SaveAllocation implements sheets.AllocationStore. Items and subcategories
// of the previous version are replaced in the same transaction.
func (r *SQLiteRepository) SaveAllocation(ctx context.Context, rec core.ConfirmedAllocation) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	confirmedAt := rec.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = r.now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if _, err := q.GetHousehold(ctx, rec.HouseholdID); errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("profile %s: %w", rec.HouseholdID, core.ErrNotFound)
	} else if err != nil {
		return 0, fmt.Errorf("get household: %w", err)
	}

	version, err := q.GetAllocationVersion(ctx, rec.HouseholdID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("get allocation version: %w", err)
	}
	version++

	if err := q.UpsertAllocation(ctx, Allocation{
		HouseholdID:  rec.HouseholdID,
		Version:      version,
		SessionID:    rec.SessionID,
		Outcome:      string(rec.Outcome),
		IncomeAnchor: rec.Allocation.IncomeAnchor,
		ConfirmedAt:  formatTime(confirmedAt),
	}); err != nil {
		return 0, fmt.Errorf("upsert allocation: %w", err)
	}
	if err := q.DeleteAllocationSubcategories(ctx, rec.HouseholdID); err != nil {
		return 0, fmt.Errorf("delete subcategories: %w", err)
	}
	if err := q.DeleteAllocationItems(ctx, rec.HouseholdID); err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}

	for i, it := range rec.Allocation.Items {
		if err := q.InsertAllocationItem(ctx, AllocationItem{
			HouseholdID: rec.HouseholdID,
			Prefix:      it.Prefix.String(),
			Position:    int64(i),
			Name:        it.Name,
			CategoryID:  it.CategoryID,
			Percentage:  it.Percentage,
			Amount:      it.Amount,
			IsEdited:    it.IsEdited,
		}); err != nil {
			return 0, fmt.Errorf("insert item %s: %w", it.Prefix, err)
		}
		for j, s := range it.Subcategories {
			if err := q.InsertAllocationSubcategory(ctx, AllocationSubcategory{
				HouseholdID: rec.HouseholdID,
				Prefix:      it.Prefix.String(),
				ID:          s.ID,
				Position:    int64(j),
				Name:        s.Name,
				Amount:      s.Amount,
				Percentage:  s.Percentage,
			}); err != nil {
				return 0, fmt.Errorf("insert subcategory %q: %w", s.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit allocation: %w", err)
	}

	slog.InfoContext(ctx, "Allocation saved to SQLite",
		"household_id", rec.HouseholdID,
		"version", version,
		"outcome", rec.Outcome,
		"items", len(rec.Allocation.Items))

	return version, nil
}

// LoadAllocation implements sheets.AllocationStore
func (r *SQLiteRepository) LoadAllocation(ctx context.Context, householdID string) (core.ConfirmedAllocation, error) {
	a, err := r.queries.GetAllocation(ctx, householdID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ConfirmedAllocation{}, fmt.Errorf("allocation %s: %w", householdID, core.ErrNotFound)
	}
	if err != nil {
		return core.ConfirmedAllocation{}, fmt.Errorf("get allocation: %w", err)
	}
	items, err := r.queries.ListAllocationItems(ctx, householdID)
	if err != nil {
		return core.ConfirmedAllocation{}, fmt.Errorf("list items: %w", err)
	}
	subs, err := r.queries.ListAllocationSubcategories(ctx, householdID)
	if err != nil {
		return core.ConfirmedAllocation{}, fmt.Errorf("list subcategories: %w", err)
	}
	confirmedAt, err := parseTime(a.ConfirmedAt)
	if err != nil {
		return core.ConfirmedAllocation{}, fmt.Errorf("confirmed_at: %w", err)
	}

	bySub := make(map[string][]core.SubcategoryBudget)
	for _, s := range subs {
		bySub[s.Prefix] = append(bySub[s.Prefix], core.SubcategoryBudget{
			ID:         s.ID,
			Name:       s.Name,
			Amount:     s.Amount,
			Percentage: s.Percentage,
		})
	}

	out := core.ConfirmedAllocation{
		HouseholdID:  a.HouseholdID,
		Version:      a.Version,
		SessionID:    a.SessionID,
		Outcome:      core.Outcome(a.Outcome),
		ConfirmedAt:  confirmedAt,
		ExportStatus: core.ExportStatus(a.ExportStatus),
		Allocation:   core.Allocation{IncomeAnchor: a.IncomeAnchor},
	}
	for _, it := range items {
		code, err := core.ParsePrefixCode(it.Prefix)
		if err != nil {
			return core.ConfirmedAllocation{}, fmt.Errorf("item %q: %w", it.Prefix, err)
		}
		out.Allocation.Items = append(out.Allocation.Items, core.BudgetCategoryItem{
			Prefix:        code,
			Name:          it.Name,
			CategoryID:    it.CategoryID,
			Percentage:    it.Percentage,
			Amount:        it.Amount,
			IsEdited:      it.IsEdited,
			Subcategories: bySub[it.Prefix],
		})
	}
	return out, nil
}

// PendingExports implements sheets.ExportQueue
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.PendingExport, error) {
	rows, err := r.queries.ListPendingExports(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	out := make([]core.PendingExport, 0, len(rows))
	for _, row := range rows {
		at, err := parseTime(row.ConfirmedAt)
		if err != nil {
			return nil, fmt.Errorf("confirmed_at for %s: %w", row.HouseholdID, err)
		}
		out = append(out, core.PendingExport{HouseholdID: row.HouseholdID, Version: row.Version, ConfirmedAt: at})
	}
	return out, nil
}

// MarkExported implements sheets.ExportQueue. A version that is no longer
// current is ignored.
func (r *SQLiteRepository) MarkExported(ctx context.Context, householdID string, version int64) error {
	n, err := r.queries.MarkAllocationExported(ctx, householdID, version, formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("mark allocation exported: %w", err)
	}
	if n == 0 {
		return r.superseded(ctx, householdID, version)
	}
	slog.InfoContext(ctx, "Allocation marked as exported", "household_id", householdID, "version", version)
	return nil
}

// MarkExportError implements sheets.ExportQueue
func (r *SQLiteRepository) MarkExportError(ctx context.Context, householdID string, version int64, reason string) error {
	n, err := r.queries.MarkAllocationExportError(ctx, householdID, version, reason)
	if err != nil {
		return fmt.Errorf("mark allocation export error: %w", err)
	}
	if n == 0 {
		return r.superseded(ctx, householdID, version)
	}
	slog.WarnContext(ctx, "Allocation marked with export error",
		"household_id", householdID, "version", version, "reason", reason)
	return nil
}

// superseded explains a mark that touched no row: either the household has
// no allocation, or a newer version replaced the one being marked.
func (r *SQLiteRepository) superseded(ctx context.Context, householdID string, version int64) error {
	if _, err := r.queries.GetAllocationVersion(ctx, householdID); errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("allocation %s: %w", householdID, core.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("get allocation version: %w", err)
	}
	slog.WarnContext(ctx, "Export mark skipped, version superseded",
		"household_id", householdID, "version", version)
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}
