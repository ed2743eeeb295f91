package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExportStatus tracks whether a confirmed allocation reached the spreadsheet.
type ExportStatus string

const (
	ExportPending ExportStatus = "pending"
	ExportDone    ExportStatus = "exported"
	ExportFailed  ExportStatus = "error"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidHousehold = errors.New("invalid household id")
	ErrInvalidOutcome   = errors.New("invalid outcome")
	ErrDuplicateSubID   = errors.New("duplicate subcategory id")
)

// ConfirmedAllocation is a household's persisted allocation. Version grows by
// one on every confirmation.
type ConfirmedAllocation struct {
	HouseholdID  string
	Version      int64
	SessionID    string
	Outcome      Outcome
	Allocation   Allocation
	ConfirmedAt  time.Time
	ExportStatus ExportStatus
}

// PendingExport is the minimal data the exporter needs to pick up work.
type PendingExport struct {
	HouseholdID string
	Version     int64
	ConfirmedAt time.Time
}

func (o Outcome) Validate() error {
	switch o {
	case AcceptedAsIs, ManuallyAdjusted:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, string(o))
	}
}

// ValidateHouseholdID rejects blank ids.
func ValidateHouseholdID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidHousehold
	}
	return nil
}

func (c ConfirmedAllocation) Validate() error {
	if err := ValidateHouseholdID(c.HouseholdID); err != nil {
		return err
	}
	if err := c.Outcome.Validate(); err != nil {
		return err
	}
	if c.Allocation.IncomeAnchor <= 0 {
		return ErrInvalidIncome
	}
	if c.Allocation.Index(Buffer) < 0 {
		return errors.New("allocation has no IF line")
	}
	ids := make(map[string]PrefixCode)
	for _, it := range c.Allocation.Items {
		for _, sub := range it.Subcategories {
			if owner, ok := ids[sub.ID]; ok {
				return fmt.Errorf("%w: %s in %s and %s", ErrDuplicateSubID, sub.ID, owner, it.Prefix)
			}
			ids[sub.ID] = it.Prefix
		}
	}
	return nil
}
