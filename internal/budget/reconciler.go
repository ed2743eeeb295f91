package budget

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"orcamento/internal/core"
)

// ReconcileTolerance is the largest subcategory/category difference, in
// currency units, still considered balanced.
const ReconcileTolerance int64 = 1

// Status describes how a category's subcategories relate to its amount.
type Status string

const (
	StatusOK    Status = "ok"
	StatusUnder Status = "under" // subcategories sum below the category: surplus
	StatusOver  Status = "over"  // subcategories sum above the category
)

type Reconciliation struct {
	Prefix           core.PrefixCode
	Status           Status
	CategoryAmount   int64
	SubcategoryTotal int64
	Difference       int64 // SubcategoryTotal - CategoryAmount
}

// SetSubcategories replaces the subcategories of a category. Subcategories
// without an ID get a fresh UUID, and percentages of the parent are
// recomputed. IDs are unique across the whole allocation. The category amount itself is left alone: a mismatch is a
// visible state resolved through ShrinkCategoryToMatch or GrowCategoryToMatch.
func SetSubcategories(a core.Allocation, code core.PrefixCode, subs []core.SubcategoryBudget) (core.Allocation, error) {
	i := a.Index(code)
	if i < 0 {
		return a, fmt.Errorf("%w: %s", ErrPrefixNotAllocated, code)
	}

	var cleaned []core.SubcategoryBudget
	seen := make(map[string]bool, len(subs))
	taken := make(map[string]core.PrefixCode)
	for _, it := range a.Items {
		if it.Prefix == code {
			continue
		}
		for _, sub := range it.Subcategories {
			taken[sub.ID] = it.Prefix
		}
	}
	for _, s := range subs {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return a, fmt.Errorf("%w: empty name in %s", ErrInvalidSubcategory, code)
		}
		if s.Amount < 0 {
			return a, fmt.Errorf("%w: negative amount for %q", ErrInvalidSubcategory, s.Name)
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if seen[s.ID] {
			return a, fmt.Errorf("%w: duplicate id %s", ErrInvalidSubcategory, s.ID)
		}
		if owner, ok := taken[s.ID]; ok {
			return a, fmt.Errorf("%w: id %s already used in %s", ErrInvalidSubcategory, s.ID, owner)
		}
		seen[s.ID] = true
		cleaned = append(cleaned, s)
	}

	out := a.Clone()
	out.Items[i].Subcategories = cleaned
	refreshSubcategoryShares(&out.Items[i])
	return out, nil
}

// Reconcile reports the status of one category. Categories without
// subcategories are always ok.
func Reconcile(a core.Allocation, code core.PrefixCode) (Reconciliation, error) {
	it, ok := a.Item(code)
	if !ok {
		return Reconciliation{}, fmt.Errorf("%w: %s", ErrPrefixNotAllocated, code)
	}
	return reconcileItem(it), nil
}

// ReconcileAll reports every category that has subcategories, in allocation order.
func ReconcileAll(a core.Allocation) []Reconciliation {
	var out []Reconciliation
	for _, it := range a.Items {
		if len(it.Subcategories) > 0 {
			out = append(out, reconcileItem(it))
		}
	}
	return out
}

func reconcileItem(it core.BudgetCategoryItem) Reconciliation {
	r := Reconciliation{Prefix: it.Prefix, CategoryAmount: it.Amount, Status: StatusOK}
	if len(it.Subcategories) == 0 {
		return r
	}
	r.SubcategoryTotal = it.SubcategoryTotal()
	r.Difference = r.SubcategoryTotal - r.CategoryAmount
	switch {
	case r.Difference > ReconcileTolerance:
		r.Status = StatusOver
	case r.Difference < -ReconcileTolerance:
		r.Status = StatusUnder
	}
	return r
}

// ShrinkCategoryToMatch lowers an under-filled category to its subcategory
// total and returns the freed share to IF.
func ShrinkCategoryToMatch(a core.Allocation, code core.PrefixCode) (EditResult, error) {
	r, err := Reconcile(a, code)
	if err != nil {
		return EditResult{}, err
	}
	if r.Status != StatusUnder {
		return reject(a, ReasonNothingToReconcile), nil
	}
	return ApplyPercentageChange(a, code, core.PercentageOf(r.SubcategoryTotal, a.IncomeAnchor))
}

// GrowCategoryToMatch raises an over-filled category to its subcategory total,
// funded by IF. It is rejected with ReasonInsufficientBuffer when IF cannot
// cover the difference, including totals above the income itself.
func GrowCategoryToMatch(a core.Allocation, code core.PrefixCode) (EditResult, error) {
	r, err := Reconcile(a, code)
	if err != nil {
		return EditResult{}, err
	}
	if r.Status != StatusOver {
		return reject(a, ReasonNothingToReconcile), nil
	}
	ti, bi, err := locate(a, code)
	if err != nil {
		return EditResult{}, err
	}
	required := core.PercentageOf(r.SubcategoryTotal, a.IncomeAnchor)
	if required > a.Items[ti].Percentage+a.Items[bi].Percentage+bufferEpsilon {
		return reject(a, ReasonInsufficientBuffer), nil
	}
	return ApplyPercentageChange(a, code, required)
}
