package budget

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"orcamento/internal/catalog"
	"orcamento/internal/core"
)

func baseProfile() core.Profile {
	return core.Profile{
		BandID:       "band_15k_30k",
		Position:     core.Mid,
		Mode:         core.Balanced,
		Planning:     core.PlanningPartial,
		IncomeAnchor: 22500,
	}
}

func TestGenerateHoldsInvariantsForEveryProfile(t *testing.T) {
	c := defaultCatalog(t)
	for _, band := range c.Bands() {
		for _, pos := range []core.Position{core.Low, core.Mid, core.High} {
			for _, mode := range []core.BudgetMode{core.Conservative, core.Balanced, core.Aggressive} {
				for _, planning := range []core.PlanningLevel{core.PlanningNone, core.PlanningPartial, core.PlanningFull} {
					for _, flags := range [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
						p := core.Profile{
							BandID:        band.ID,
							Position:      pos,
							Mode:          mode,
							Planning:      planning,
							HasPets:       flags[0],
							HasDependents: flags[1],
							IncomeAnchor:  band.SubBands[1].Midpoint + 1,
						}
						name := fmt.Sprintf("%s/%s/%s/%s/pets=%v/deps=%v", band.ID, pos, mode, planning, flags[0], flags[1])
						t.Run(name, func(t *testing.T) {
							prop, err := Generate(c, p)
							if err != nil {
								t.Fatalf("Generate: %v", err)
							}
							assertInvariants(t, prop.Allocation)
							if math.Abs(prop.Shares.Sum()-1) > 1e-9 {
								t.Fatalf("shares sum to %v", prop.Shares.Sum())
							}
							for _, it := range prop.Allocation.Items {
								if !c.Prefix(it.Prefix).Budgetable {
									t.Fatalf("non-budgetable line %s emitted", it.Prefix)
								}
								if it.IsEdited {
									t.Fatalf("generated item %s marked edited", it.Prefix)
								}
							}
							if r := Validate(prop.Allocation, GateOptions{}); !r.Valid {
								t.Fatalf("generated allocation fails the gate: %+v", r.Errors)
							}
						})
					}
				}
			}
		}
	}
}

func TestGenerateExcludesInactiveConditionalLines(t *testing.T) {
	c := defaultCatalog(t)
	p := baseProfile()

	prop, err := Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, code := range []core.PrefixCode{core.Pets, core.Dependents} {
		if _, ok := prop.Allocation.Item(code); ok {
			t.Errorf("%s present without the matching household answer", code)
		}
	}

	p.HasPets = true
	prop, err = Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pct := percentage(t, prop.Allocation, core.Pets); pct <= 0 {
		t.Fatalf("PET percentage = %v, want > 0", pct)
	}
	if _, ok := prop.Allocation.Item(core.Dependents); ok {
		t.Fatalf("F present without dependents")
	}
}

func TestGenerateItemsFollowCatalogOrder(t *testing.T) {
	c := defaultCatalog(t)
	p := baseProfile()
	p.HasPets, p.HasDependents = true, true
	prop, err := Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 1; i < len(prop.Allocation.Items); i++ {
		if prop.Allocation.Items[i-1].Prefix >= prop.Allocation.Items[i].Prefix {
			t.Fatalf("items out of order: %v then %v", prop.Allocation.Items[i-1].Prefix, prop.Allocation.Items[i].Prefix)
		}
	}
	if got := prop.Allocation.Items[0]; got.Name != "Casa" || got.CategoryID != "housing" {
		t.Fatalf("catalog metadata not copied: %+v", got)
	}
}

func TestGenerateFixedFloorIsAnchorIndependent(t *testing.T) {
	c := defaultCatalog(t)
	p := baseProfile()

	prop, err := Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := 100 * float64(c.FixedFloor(p.BandID)) / 22500
	if got := percentage(t, prop.Allocation, core.FixedFinancial); math.Abs(got-want) > 1e-9 {
		t.Fatalf("DF = %v%%, want %v%%", got, want)
	}

	p.IncomeAnchor = 29000
	other, err := Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if other.Shares != prop.Shares {
		t.Fatalf("shares depend on the income anchor")
	}
	if len(prop.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", prop.Warnings)
	}
}

func TestGenerateAdjustmentsMoveTheRightLines(t *testing.T) {
	c := defaultCatalog(t)
	gen := func(mutate func(*core.Profile)) core.Shares {
		t.Helper()
		p := baseProfile()
		mutate(&p)
		prop, err := Generate(c, p)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		return prop.Shares
	}
	mid := gen(func(*core.Profile) {})
	low := gen(func(p *core.Profile) { p.Position = core.Low })
	high := gen(func(p *core.Profile) { p.Position = core.High })
	aggressive := gen(func(p *core.Profile) { p.Mode = core.Aggressive })
	conservative := gen(func(p *core.Profile) { p.Mode = core.Conservative })
	none := gen(func(p *core.Profile) { p.Planning = core.PlanningNone })
	full := gen(func(p *core.Profile) { p.Planning = core.PlanningFull })

	if low[core.Housing] <= mid[core.Housing] || low[core.Leisure] >= mid[core.Leisure] {
		t.Errorf("low sub-band should favour housing over leisure")
	}
	if high[core.Leisure] <= mid[core.Leisure] || high[core.Irregular] <= mid[core.Irregular] {
		t.Errorf("high sub-band should raise leisure and irregular")
	}
	if aggressive[core.Buffer] <= mid[core.Buffer] || conservative[core.Buffer] >= mid[core.Buffer] {
		t.Errorf("mode should move IF: aggressive=%v balanced=%v conservative=%v",
			aggressive[core.Buffer], mid[core.Buffer], conservative[core.Buffer])
	}
	if none[core.Irregular] <= mid[core.Irregular] || full[core.Buffer] <= mid[core.Buffer] {
		t.Errorf("planning level should shift between E and IF")
	}
}

func TestProportionalRedistributionFoldsIntoActiveLines(t *testing.T) {
	c := defaultCatalog(t)
	p := baseProfile()

	proportional, err := Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	toBuffer, err := (&Generator{Catalog: c, Policy: AllToBuffer}).Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if proportional.Shares[core.Housing] <= toBuffer.Shares[core.Housing] {
		t.Errorf("proportional policy should grow housing: %v vs %v",
			proportional.Shares[core.Housing], toBuffer.Shares[core.Housing])
	}
	if toBuffer.Shares[core.Buffer] <= proportional.Shares[core.Buffer] {
		t.Errorf("buffer policy should grow IF: %v vs %v",
			toBuffer.Shares[core.Buffer], proportional.Shares[core.Buffer])
	}
}

func TestPolicies(t *testing.T) {
	var s core.Shares
	s[core.Housing] = 0.3
	s[core.Buffer] = 0.6
	got := ProportionalToActive(s, 0.1, []core.PrefixCode{core.Housing, core.Buffer})
	if math.Abs(got[core.Housing]-(0.3+0.1/3)) > 1e-12 || math.Abs(got.Sum()-1) > 1e-12 {
		t.Fatalf("proportional: %v", got)
	}
	got = ProportionalToActive(s, 0.1, nil)
	if math.Abs(got[core.Buffer]-0.7) > 1e-12 {
		t.Fatalf("proportional without recipients must fall back to IF: %v", got)
	}
	if _, ok := PolicyByName("buffer"); !ok {
		t.Fatalf("buffer policy not registered")
	}
	if _, ok := PolicyByName("random"); ok {
		t.Fatalf("unexpected policy")
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	c := defaultCatalog(t)
	cases := []struct {
		name   string
		mutate func(*core.Profile)
		want   error
	}{
		{"unknown band", func(p *core.Profile) { p.BandID = "band_1m" }, catalog.ErrUnknownBand},
		{"bad position", func(p *core.Profile) { p.Position = "top" }, core.ErrInvalidPosition},
		{"bad mode", func(p *core.Profile) { p.Mode = "" }, core.ErrInvalidMode},
		{"zero income", func(p *core.Profile) { p.IncomeAnchor = 0 }, core.ErrInvalidIncome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := baseProfile()
			tc.mutate(&p)
			_, err := Generate(c, p)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := (&Generator{}).Generate(baseProfile()); err == nil {
		t.Fatalf("expected error for nil catalog")
	}
}

const clampDoc = `
version = "clamp"
planning_shift = 0.0

[[prefix]]
code = "C"
name = "Casa"
budgetable = true
[[prefix]]
code = "A"
name = "Comida"
budgetable = true
[[prefix]]
code = "T"
name = "Transporte"
budgetable = true
[[prefix]]
code = "L"
name = "Lazer"
budgetable = true
[[prefix]]
code = "F"
name = "Filhos"
budgetable = true
conditional_on = "has_dependents"
[[prefix]]
code = "PET"
name = "Pets"
budgetable = true
conditional_on = "has_pets"
[[prefix]]
code = "DF"
name = "Dívidas"
budgetable = true
[[prefix]]
code = "E"
name = "Eventuais"
budgetable = true
[[prefix]]
code = "IF"
name = "IF"
budgetable = true
[[prefix]]
code = "R"
name = "Receitas"
[[prefix]]
code = "DESC"
name = "Desconhecido"

[[band]]
id = "tight"
lower = 0
upper = 3000
fixed_floor = 1200
  [[band.sub_band]]
  id = "tight_low"
  position = "low"
  midpoint = 500
  [[band.sub_band]]
  id = "tight_mid"
  position = "mid"
  midpoint = 1500
  [[band.sub_band]]
  id = "tight_high"
  position = "high"
  midpoint = 2500

[base.tight]
C = 0.6
DF = 0.1
IF = 0.3
`

func TestGenerateClampsBufferAndWarns(t *testing.T) {
	c, err := catalog.Parse([]byte(clampDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := core.Profile{BandID: "tight", Position: core.Mid, Mode: core.Balanced, Planning: core.PlanningPartial, IncomeAnchor: 1500}

	prop, err := Generate(c, p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(prop.Warnings) != 1 || prop.Warnings[0].Kind != WarningFloorClamp {
		t.Fatalf("expected one floor clamp warning, got %+v", prop.Warnings)
	}
	assertInvariants(t, prop.Allocation)
	if buf := percentage(t, prop.Allocation, core.Buffer); buf <= 0 || buf > MinBufferShare*100 {
		t.Fatalf("IF = %v%%, want a small positive floor", buf)
	}
	if df := percentage(t, prop.Allocation, core.FixedFinancial); df <= 50 {
		t.Fatalf("DF = %v%%, expected the floor to dominate", df)
	}
}
