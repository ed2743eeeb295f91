package budget

import (
	"errors"

	"orcamento/internal/core"
)

// Reason explains why an edit was rejected. Rejections are ordinary results,
// not errors: users routinely try to over-allocate a category.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInsufficientBuffer Reason = "INSUFFICIENT_BUFFER"
	ReasonBufferNotEditable  Reason = "BUFFER_NOT_EDITABLE"
	ReasonInvalidPercentage  Reason = "INVALID_PERCENTAGE"
	ReasonNothingToReconcile Reason = "NOTHING_TO_RECONCILE"
)

var reasonMessages = map[Reason]string{
	ReasonInsufficientBuffer: "insufficient buffer: reduce another category or increase income",
	ReasonBufferNotEditable:  "the financial independence line absorbs every change and cannot be set directly",
	ReasonInvalidPercentage:  "percentage must be a number between 0 and 100",
	ReasonNothingToReconcile: "category and subcategories already agree in that direction",
}

// Message returns the short user-facing text for the reason.
func (r Reason) Message() string {
	return reasonMessages[r]
}

// EditResult is the outcome of a single edit. When Accepted is false the
// Allocation is the input allocation, untouched.
type EditResult struct {
	Allocation core.Allocation
	Accepted   bool
	Reason     Reason
}

func accept(a core.Allocation) EditResult {
	return EditResult{Allocation: a, Accepted: true}
}

func reject(a core.Allocation, r Reason) EditResult {
	return EditResult{Allocation: a, Reason: r}
}

// Hard errors signal integration bugs, never user mistakes.
var (
	ErrPrefixNotAllocated = errors.New("prefix not present in allocation")
	ErrMissingBuffer      = errors.New("allocation has no IF line")
	ErrInvalidSubcategory = errors.New("invalid subcategory")
)
