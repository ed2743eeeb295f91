// Package budget implements the allocation engine: the generation pipeline that
// turns a household profile into a percentage budget, the zero-sum controller
// that funds every edit from the IF buffer line, the subcategory reconciler and
// the validation gate run before an allocation is persisted.
//
// Everything here is synchronous and pure. Allocations are values: operations
// return modified copies and never touch their input.
package budget

import (
	"fmt"

	"orcamento/internal/catalog"
	"orcamento/internal/core"
)

// MinBufferShare is the share IF is clamped to when the fixed-expense floor
// would otherwise consume all of it (0.01% of income).
const MinBufferShare = 0.0001

// WarningKind classifies non-blocking generation events.
type WarningKind string

const WarningFloorClamp WarningKind = "GENERATION_FLOOR_CLAMP"

type Warning struct {
	Kind    WarningKind
	Prefix  core.PrefixCode
	Message string
}

// Proposal is a generated allocation together with the final shares and any
// warnings raised while producing it.
type Proposal struct {
	Profile    core.Profile
	Allocation core.Allocation
	Shares     core.Shares
	Warnings   []Warning
}

// Generator runs the adjustment pipeline against a catalog.
type Generator struct {
	Catalog *catalog.Catalog
	Policy  RedistributionPolicy
}

// NewGenerator returns a generator using the proportional redistribution policy.
func NewGenerator(c *catalog.Catalog) *Generator {
	return &Generator{Catalog: c, Policy: ProportionalToActive}
}

// Generate is shorthand for NewGenerator(c).Generate(p).
func Generate(c *catalog.Catalog, p core.Profile) (Proposal, error) {
	return NewGenerator(c).Generate(p)
}

// Generate produces the initial allocation for a profile. The steps run in a
// fixed order and each one leaves the shares summing to 1:
//
//  1. base shares of the income band
//  2. budget mode deltas
//  3. sub-band deltas
//  4. removal of inactive conditional lines, redistributed by g.Policy
//  5. non-monthly planning shift between E and IF
//  6. fixed financial expense floor for DF, balanced against IF
//  7. final normalization
//  8. one item per budgetable line with a positive share
func (g *Generator) Generate(p core.Profile) (Proposal, error) {
	if g.Catalog == nil {
		return Proposal{}, fmt.Errorf("generate: nil catalog")
	}
	if err := p.Validate(); err != nil {
		return Proposal{}, fmt.Errorf("generate: %w", err)
	}
	sub, err := g.Catalog.SubBand(p.BandID, p.Position)
	if err != nil {
		return Proposal{}, fmt.Errorf("generate: %w", err)
	}
	shares, err := g.Catalog.BaseShares(p.BandID)
	if err != nil {
		return Proposal{}, fmt.Errorf("generate: %w", err)
	}
	policy := g.Policy
	if policy == nil {
		policy = ProportionalToActive
	}

	var warnings []Warning

	shares = g.applyDeltas(shares, g.Catalog.ModeAdjustment(p.Mode))
	shares = g.applyDeltas(shares, g.Catalog.SubBandAdjustment(p.Position))
	shares = g.excludeInactive(shares, p, policy)
	shares = g.applyPlanning(shares, p.Planning)

	shares, w := g.applyFixedFloor(shares, p.BandID, sub)
	if w != nil {
		warnings = append(warnings, *w)
	}

	shares = normalize(shares)

	return Proposal{
		Profile:    p,
		Allocation: g.materialize(shares, p.IncomeAnchor),
		Shares:     shares,
		Warnings:   warnings,
	}, nil
}

// applyDeltas adds signed deltas to budgetable lines, floors every line at
// zero and renormalizes.
func (g *Generator) applyDeltas(shares, deltas core.Shares) core.Shares {
	for code := range shares {
		if !g.Catalog.Prefix(core.PrefixCode(code)).Budgetable {
			shares[code] = 0
			continue
		}
		shares[code] += deltas[code]
		if shares[code] < 0 {
			shares[code] = 0
		}
	}
	return normalize(shares)
}

func (g *Generator) excludeInactive(shares core.Shares, p core.Profile, policy RedistributionPolicy) core.Shares {
	var freed float64
	var recipients []core.PrefixCode
	for _, cfg := range g.Catalog.Prefixes() {
		if !cfg.ConditionalOn.Active(p) {
			freed += shares[cfg.Code]
			shares[cfg.Code] = 0
		}
	}
	if freed <= 0 {
		return shares
	}
	for _, cfg := range g.Catalog.Prefixes() {
		if cfg.Budgetable && cfg.ConditionalOn.Active(p) && shares[cfg.Code] > 0 {
			recipients = append(recipients, cfg.Code)
		}
	}
	return normalize(policy(shares, freed, recipients))
}

// applyPlanning moves the configured shift from IF to E for households that do
// not plan non-monthly expenses, and from E to IF for those that fully do.
func (g *Generator) applyPlanning(shares core.Shares, level core.PlanningLevel) core.Shares {
	shift := g.Catalog.PlanningShift
	switch level {
	case core.PlanningNone:
		moved := min(shift, shares[core.Buffer])
		shares[core.Buffer] -= moved
		shares[core.Irregular] += moved
	case core.PlanningFull:
		moved := min(shift, shares[core.Irregular])
		shares[core.Irregular] -= moved
		shares[core.Buffer] += moved
	}
	return normalize(shares)
}

// applyFixedFloor pins DF to the band's floor amount, expressed as a share of
// the sub-band midpoint so the result stays independent of the income anchor.
// Surplus goes back to IF; a shortfall is taken from IF, which is clamped at
// MinBufferShare when it cannot cover it.
func (g *Generator) applyFixedFloor(shares core.Shares, bandID string, sub core.SubBand) (core.Shares, *Warning) {
	floor := g.Catalog.FixedFloor(bandID)
	if floor <= 0 || sub.Midpoint <= 0 {
		return shares, nil
	}
	floorShare := float64(floor) / float64(sub.Midpoint)
	diff := shares[core.FixedFinancial] - floorShare
	shares[core.FixedFinancial] = floorShare
	shares[core.Buffer] += diff

	if shares[core.Buffer] >= MinBufferShare {
		return shares, nil
	}
	shortfall := MinBufferShare - shares[core.Buffer]
	shares[core.Buffer] = MinBufferShare
	msg := fmt.Sprintf("fixed financial floor of %d exceeds the available buffer; IF clamped to %.2f%% (short by %.2f%% of income)",
		floor, MinBufferShare*100, shortfall*100)
	return shares, &Warning{Kind: WarningFloorClamp, Prefix: core.Buffer, Message: msg}
}

func (g *Generator) materialize(shares core.Shares, income int64) core.Allocation {
	a := core.Allocation{IncomeAnchor: income}
	for _, cfg := range g.Catalog.Prefixes() {
		share := shares[cfg.Code]
		if !cfg.Budgetable || (share <= 0 && cfg.Code != core.Buffer) {
			continue
		}
		pct := share * 100
		a.Items = append(a.Items, core.BudgetCategoryItem{
			Prefix:     cfg.Code,
			Name:       cfg.Name,
			CategoryID: cfg.CategoryID,
			Percentage: pct,
			Amount:     core.DeriveAmount(income, pct),
		})
	}
	return a
}

func normalize(shares core.Shares) core.Shares {
	if n, ok := shares.Normalize(); ok {
		return n
	}
	return shares
}
