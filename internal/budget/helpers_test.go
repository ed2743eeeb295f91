package budget

import (
	"math"
	"testing"

	"orcamento/internal/catalog"
	"orcamento/internal/core"
)

const invariantEpsilon = 1e-3

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return c
}

// allocationOf builds an allocation from percentages, deriving amounts.
func allocationOf(income int64, pcts map[core.PrefixCode]float64) core.Allocation {
	a := core.Allocation{IncomeAnchor: income}
	for _, code := range core.AllPrefixes() {
		pct, ok := pcts[code]
		if !ok {
			continue
		}
		a.Items = append(a.Items, core.BudgetCategoryItem{
			Prefix:     code,
			Name:       code.String(),
			Percentage: pct,
			Amount:     core.DeriveAmount(income, pct),
		})
	}
	return a
}

// bufferFixture is a 20000 income allocation with IF at 3%.
func bufferFixture() core.Allocation {
	return allocationOf(20000, map[core.PrefixCode]float64{
		core.Housing:        30,
		core.Food:           15,
		core.Transport:      10,
		core.Leisure:        10,
		core.FixedFinancial: 12,
		core.Irregular:      20,
		core.Buffer:         3,
	})
}

func percentage(t *testing.T, a core.Allocation, code core.PrefixCode) float64 {
	t.Helper()
	it, ok := a.Item(code)
	if !ok {
		t.Fatalf("%s missing from allocation", code)
	}
	return it.Percentage
}

// assertInvariants checks the properties every stable allocation must hold.
func assertInvariants(t *testing.T, a core.Allocation) {
	t.Helper()
	if total := a.TotalPercentage(); math.Abs(total-100) > invariantEpsilon {
		t.Fatalf("allocation sums to %v", total)
	}
	if pct := percentage(t, a, core.Buffer); pct < 0 {
		t.Fatalf("IF is negative: %v", pct)
	}
	for _, it := range a.Items {
		if want := core.DeriveAmount(a.IncomeAnchor, it.Percentage); it.Amount != want {
			t.Fatalf("%s amount %d, want %d", it.Prefix, it.Amount, want)
		}
	}
}
