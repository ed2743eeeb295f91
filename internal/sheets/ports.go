package sheets

import (
	"context"

	"orcamento/internal/core"
)

// Ports for outbound adapters.
type (
	ProfileStore interface {
		SaveProfile(ctx context.Context, householdID string, p core.Profile) error
		LoadProfile(ctx context.Context, householdID string) (core.Profile, error)
	}

	// AllocationStore keeps one current allocation per household. Saving
	// replaces it whole and returns the new version.
	AllocationStore interface {
		SaveAllocation(ctx context.Context, rec core.ConfirmedAllocation) (version int64, err error)
		LoadAllocation(ctx context.Context, householdID string) (core.ConfirmedAllocation, error)
	}

	// ExportQueue tracks confirmed allocations not yet exported. Marks apply
	// only while version is still the household's current one.
	ExportQueue interface {
		PendingExports(ctx context.Context, limit int) ([]core.PendingExport, error)
		MarkExported(ctx context.Context, householdID string, version int64) error
		MarkExportError(ctx context.Context, householdID string, version int64, reason string) error
	}

	// AllocationExporter writes a confirmed allocation to an external sheet.
	AllocationExporter interface {
		ExportAllocation(ctx context.Context, rec core.ConfirmedAllocation) (ref string, err error)
	}
)
