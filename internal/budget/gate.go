package budget

import (
	"fmt"
	"math"

	"orcamento/internal/core"
)

// SumTolerance is how far, in percentage points, the allocation total may
// drift from 100 before confirmation is blocked.
const SumTolerance = 0.5

// IssueKind names a validation finding.
type IssueKind string

const (
	IssueSumMismatch      IssueKind = "SUM_MISMATCH"
	IssueNegativeBuffer   IssueKind = "NEGATIVE_BUFFER"
	IssueMissingBuffer    IssueKind = "MISSING_BUFFER"
	IssueSubcategoryOver  IssueKind = "SUBCATEGORY_OVER"
	IssueSubcategoryUnder IssueKind = "SUBCATEGORY_UNDER"
)

type Issue struct {
	Kind    IssueKind
	Prefix  core.PrefixCode
	Message string
}

// GateOptions tunes which findings block confirmation.
type GateOptions struct {
	// AllowSubcategoryOver downgrades SUBCATEGORY_OVER to a warning.
	AllowSubcategoryOver bool
}

// Report lists every finding. Valid is true when Errors is empty.
type Report struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// Has reports whether the report contains an error of the given kind.
func (r Report) Has(kind IssueKind) bool {
	for _, is := range r.Errors {
		if is.Kind == kind {
			return true
		}
	}
	return false
}

// Validate runs every pre-commit check. Checks are independent so all
// findings are surfaced together.
func Validate(a core.Allocation, opts GateOptions) Report {
	var r Report

	if total := a.TotalPercentage(); math.Abs(total-100) > SumTolerance {
		r.Errors = append(r.Errors, Issue{
			Kind:    IssueSumMismatch,
			Prefix:  core.Buffer,
			Message: fmt.Sprintf("allocation sums to %.3f%%", total),
		})
	}

	if it, ok := a.Item(core.Buffer); !ok {
		r.Errors = append(r.Errors, Issue{Kind: IssueMissingBuffer, Prefix: core.Buffer, Message: "allocation has no IF line"})
	} else if it.Percentage < 0 {
		r.Errors = append(r.Errors, Issue{
			Kind:    IssueNegativeBuffer,
			Prefix:  core.Buffer,
			Message: fmt.Sprintf("IF is %.3f%%", it.Percentage),
		})
	}

	for _, rec := range ReconcileAll(a) {
		switch rec.Status {
		case StatusOver:
			is := Issue{
				Kind:    IssueSubcategoryOver,
				Prefix:  rec.Prefix,
				Message: fmt.Sprintf("%s subcategories exceed the category by %d", rec.Prefix, rec.Difference),
			}
			if opts.AllowSubcategoryOver {
				r.Warnings = append(r.Warnings, is)
			} else {
				r.Errors = append(r.Errors, is)
			}
		case StatusUnder:
			r.Warnings = append(r.Warnings, Issue{
				Kind:    IssueSubcategoryUnder,
				Prefix:  rec.Prefix,
				Message: fmt.Sprintf("%s has %d not assigned to any subcategory", rec.Prefix, -rec.Difference),
			})
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}
