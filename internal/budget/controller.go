package budget

import (
	"fmt"
	"math"

	"orcamento/internal/core"
)

// MaxCategoryPercentage caps how much of income a single category may take in
// an editor, regardless of the buffer available.
const MaxCategoryPercentage = 50.0

// bufferEpsilon absorbs floating point noise when an edit consumes exactly the
// remaining buffer.
const bufferEpsilon = 1e-9

// ApplyPercentageChange sets target to newPercentage and funds the difference
// from IF. Only the target and IF change; the edit is rejected, leaving the
// allocation untouched, when IF would go negative.
//
// Setting a category to its current value is accepted as a no-op and does not
// mark it edited, so it never turns an accepted proposal into a manual
// adjustment.
//
// Missing target or IF lines are integration bugs and return an error.
func ApplyPercentageChange(a core.Allocation, target core.PrefixCode, newPercentage float64) (EditResult, error) {
	ti, bi, err := locate(a, target)
	if err != nil {
		return EditResult{}, err
	}
	if target == core.Buffer {
		return reject(a, ReasonBufferNotEditable), nil
	}
	if math.IsNaN(newPercentage) || math.IsInf(newPercentage, 0) || newPercentage < 0 || newPercentage > 100 {
		return reject(a, ReasonInvalidPercentage), nil
	}

	current := a.Items[ti].Percentage
	delta := newPercentage - current
	if delta == 0 {
		return accept(a), nil
	}
	newBuffer := a.Items[bi].Percentage - delta
	if newBuffer < -bufferEpsilon {
		return reject(a, ReasonInsufficientBuffer), nil
	}
	if newBuffer < 0 {
		newBuffer = 0
	}

	out := a.Clone()
	out.Items[ti] = withPercentage(out.Items[ti], newPercentage, a.IncomeAnchor)
	out.Items[ti].IsEdited = true
	out.Items[bi] = withPercentage(out.Items[bi], newBuffer, a.IncomeAnchor)
	return accept(out), nil
}

// MaxPercentage is the upper editing bound for a category: its current share
// plus everything left in IF, capped at MaxCategoryPercentage.
func MaxPercentage(a core.Allocation, code core.PrefixCode) (float64, error) {
	ti, bi, err := locate(a, code)
	if err != nil {
		return 0, err
	}
	if code == core.Buffer {
		return a.Items[bi].Percentage, nil
	}
	return math.Min(MaxCategoryPercentage, a.Items[ti].Percentage+a.Items[bi].Percentage), nil
}

func locate(a core.Allocation, code core.PrefixCode) (target, buffer int, err error) {
	buffer = a.Index(core.Buffer)
	if buffer < 0 {
		return -1, -1, ErrMissingBuffer
	}
	target = a.Index(code)
	if target < 0 {
		return -1, -1, fmt.Errorf("%w: %s", ErrPrefixNotAllocated, code)
	}
	return target, buffer, nil
}

// withPercentage re-derives amount and subcategory shares for a new percentage.
func withPercentage(it core.BudgetCategoryItem, pct float64, income int64) core.BudgetCategoryItem {
	it.Percentage = pct
	it.Amount = core.DeriveAmount(income, pct)
	refreshSubcategoryShares(&it)
	return it
}

func refreshSubcategoryShares(it *core.BudgetCategoryItem) {
	for i := range it.Subcategories {
		it.Subcategories[i].Percentage = core.PercentageOf(it.Subcategories[i].Amount, it.Amount)
	}
}
