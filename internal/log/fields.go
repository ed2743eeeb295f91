package log

import "fmt"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldHousehold   = "household_id"
	FieldSession     = "session_id"
	FieldVersion     = "version"
	FieldOutcome     = "outcome"
	FieldPrefix      = "prefix"
	FieldBand        = "band_id"
	FieldIncome      = "income_anchor"
	FieldReason      = "reason"
	FieldWarning     = "warning"
	FieldSheetsRef   = "sheets_ref"
	FieldDuration    = "duration_ms"
	FieldCacheHit    = "cache_hit"
	FieldIssueCount  = "issue_count"
	FieldEditCount   = "edit_count"
	FieldPendingSize = "pending"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentCLI        = "cli"
	ComponentBudget     = "budget"
	ComponentOnboarding = "onboarding"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentBackend    = "backend"
)

// Operations defines standard operation names
const (
	OpPropose  = "propose"
	OpEdit     = "edit"
	OpConfirm  = "confirm"
	OpPublish  = "publish"
	OpExport   = "export"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithAllocation adds the fields identifying a confirmed allocation version.
func (f LogFields) WithAllocation(householdID string, version int64, outcome string) LogFields {
	f[FieldHousehold] = householdID
	if version > 0 {
		f[FieldVersion] = version
	}
	if outcome != "" {
		f[FieldOutcome] = outcome
	}
	return f
}

// WithProfile adds the profile fields that select a proposal.
func (f LogFields) WithProfile(bandID string, income int64) LogFields {
	f[FieldBand] = bandID
	f[FieldIncome] = income
	return f
}

// WithPrefix adds the budget line an event concerns.
func (f LogFields) WithPrefix(code fmt.Stringer) LogFields {
	f[FieldPrefix] = code.String()
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
