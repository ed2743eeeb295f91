package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"orcamento/internal/core"
	"orcamento/internal/sheets"
)

var (
	_ sheets.ProfileStore       = (*Store)(nil)
	_ sheets.AllocationStore    = (*Store)(nil)
	_ sheets.ExportQueue        = (*Store)(nil)
	_ sheets.AllocationExporter = (*Exporter)(nil)
)

type entry struct {
	rec    core.ConfirmedAllocation
	reason string
}

// Store keeps profiles and allocations in process memory.
type Store struct {
	mu          sync.Mutex
	profiles    map[string]core.Profile
	allocations map[string]entry
}

func New() *Store {
	return &Store{
		profiles:    make(map[string]core.Profile),
		allocations: make(map[string]entry),
	}
}

// NewFromFiles seeds household profiles from base/seed_households.txt. Each
// line reads id,band,position,mode,planning,income[,pets][,dependents].
// Unreadable or malformed lines are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_households.txt")) {
		id, p, err := parseHousehold(line)
		if err != nil {
			continue
		}
		s.profiles[id] = p
	}
	return s
}

func (s *Store) SaveProfile(_ context.Context, householdID string, p core.Profile) error {
	if err := core.ValidateHouseholdID(householdID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[householdID] = p
	return nil
}

func (s *Store) LoadProfile(_ context.Context, householdID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[householdID]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", householdID, core.ErrNotFound)
	}
	return p, nil
}

// SaveAllocation replaces the household's allocation and queues it for export.
func (s *Store) SaveAllocation(_ context.Context, rec core.ConfirmedAllocation) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[rec.HouseholdID]; !ok {
		return 0, fmt.Errorf("profile %s: %w", rec.HouseholdID, core.ErrNotFound)
	}
	rec.Version = s.allocations[rec.HouseholdID].rec.Version + 1
	rec.Allocation = rec.Allocation.Clone()
	rec.ExportStatus = core.ExportPending
	if rec.ConfirmedAt.IsZero() {
		rec.ConfirmedAt = time.Now().UTC()
	}
	s.allocations[rec.HouseholdID] = entry{rec: rec}
	return rec.Version, nil
}

func (s *Store) LoadAllocation(_ context.Context, householdID string) (core.ConfirmedAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.allocations[householdID]
	if !ok {
		return core.ConfirmedAllocation{}, fmt.Errorf("allocation %s: %w", householdID, core.ErrNotFound)
	}
	rec := e.rec
	rec.Allocation = rec.Allocation.Clone()
	return rec, nil
}

// PendingExports returns pending allocations, oldest confirmation first.
func (s *Store) PendingExports(_ context.Context, limit int) ([]core.PendingExport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.PendingExport
	for id, e := range s.allocations {
		if e.rec.ExportStatus != core.ExportPending {
			continue
		}
		out = append(out, core.PendingExport{HouseholdID: id, Version: e.rec.Version, ConfirmedAt: e.rec.ConfirmedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConfirmedAt.Equal(out[j].ConfirmedAt) {
			return out[i].ConfirmedAt.Before(out[j].ConfirmedAt)
		}
		return out[i].HouseholdID < out[j].HouseholdID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, householdID string, version int64) error {
	return s.mark(householdID, version, core.ExportDone, "")
}

func (s *Store) MarkExportError(_ context.Context, householdID string, version int64, reason string) error {
	return s.mark(householdID, version, core.ExportFailed, reason)
}

// ExportError returns the last recorded export failure for a household.
func (s *Store) ExportError(householdID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocations[householdID].reason
}

func (s *Store) mark(householdID string, version int64, status core.ExportStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.allocations[householdID]
	if !ok {
		return fmt.Errorf("allocation %s: %w", householdID, core.ErrNotFound)
	}
	if e.rec.Version != version {
		return nil
	}
	e.rec.ExportStatus = status
	e.reason = reason
	s.allocations[householdID] = e
	return nil
}

func (s *Store) Close() error { return nil }

// Exporter records exported allocations instead of writing a spreadsheet.
type Exporter struct {
	mu       sync.Mutex
	exported map[string]core.ConfirmedAllocation
	calls    int
	err      error
}

func NewExporter() *Exporter {
	return &Exporter{exported: make(map[string]core.ConfirmedAllocation)}
}

// FailWith makes subsequent exports return err. A nil err restores success.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *Exporter) ExportAllocation(_ context.Context, rec core.ConfirmedAllocation) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	rec.Allocation = rec.Allocation.Clone()
	e.exported[rec.HouseholdID] = rec
	return fmt.Sprintf("mem:%s@v%d", rec.HouseholdID, rec.Version), nil
}

// Exported returns the last allocation exported for a household.
func (e *Exporter) Exported(householdID string) (core.ConfirmedAllocation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.exported[householdID]
	return rec, ok
}

// Calls counts export attempts, failed ones included.
func (e *Exporter) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func parseHousehold(line string) (string, core.Profile, error) {
	cols := strings.Split(line, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	if len(cols) < 6 {
		return "", core.Profile{}, fmt.Errorf("expected at least 6 columns, got %d", len(cols))
	}
	income, err := strconv.ParseInt(cols[5], 10, 64)
	if err != nil {
		return "", core.Profile{}, fmt.Errorf("income: %w", err)
	}
	p := core.Profile{
		BandID:       cols[1],
		Position:     core.Position(cols[2]),
		Mode:         core.BudgetMode(cols[3]),
		Planning:     core.PlanningLevel(cols[4]),
		IncomeAnchor: income,
	}
	for _, flag := range cols[6:] {
		switch flag {
		case "pets":
			p.HasPets = true
		case "dependents":
			p.HasDependents = true
		}
	}
	if err := core.ValidateHouseholdID(cols[0]); err != nil {
		return "", core.Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return "", core.Profile{}, err
	}
	return cols[0], p, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
