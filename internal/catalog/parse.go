package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"orcamento/internal/core"
)

// SumTolerance bounds how far a base table may drift from 1.0.
const SumTolerance = 1e-3

var (
	ErrInvalidCatalog = errors.New("invalid catalog")
	ErrUnknownBand    = errors.New("unknown income band")
)

type document struct {
	Version            string                        `toml:"version"`
	PlanningShift      float64                       `toml:"planning_shift"`
	Prefixes           []prefixEntry                 `toml:"prefix"`
	Bands              []bandEntry                   `toml:"band"`
	Base               map[string]map[string]float64 `toml:"base"`
	SubBandAdjustments map[string]map[string]float64 `toml:"sub_band_adjustment"`
	ModeAdjustments    map[string]map[string]float64 `toml:"mode_adjustment"`
}

type prefixEntry struct {
	Code          string `toml:"code"`
	Name          string `toml:"name"`
	CategoryID    string `toml:"category_id"`
	Budgetable    bool   `toml:"budgetable"`
	ConditionalOn string `toml:"conditional_on"`
}

type bandEntry struct {
	ID         string         `toml:"id"`
	Label      string         `toml:"label"`
	Lower      int64          `toml:"lower"`
	Upper      int64          `toml:"upper"`
	FixedFloor int64          `toml:"fixed_floor"`
	SubBands   []subBandEntry `toml:"sub_band"`
}

type subBandEntry struct {
	ID       string `toml:"id"`
	Position string `toml:"position"`
	Midpoint int64  `toml:"midpoint"`
}

var positions = [3]core.Position{core.Low, core.Mid, core.High}

// Parse decodes and validates a catalog document. Every problem found is
// reported in the returned error, not just the first one.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}

	var problems []string
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		problems = append(problems, fmt.Sprintf("unknown keys: %s", strings.Join(keys, ", ")))
	}

	c := &Catalog{
		Version:       doc.Version,
		PlanningShift: doc.PlanningShift,
		base:          make(map[string]core.Shares, len(doc.Base)),
		fixedFloors:   make(map[string]int64, len(doc.Bands)),
		subBandAdjust: make(map[core.Position]core.Shares, len(doc.SubBandAdjustments)),
		modeAdjust:    make(map[core.BudgetMode]core.Shares, len(doc.ModeAdjustments)),
	}

	problems = append(problems, c.decodePrefixes(doc.Prefixes)...)
	problems = append(problems, c.decodeBands(doc.Bands)...)

	for bandID, table := range doc.Base {
		shares, errs := decodeShares("base."+bandID, table)
		problems = append(problems, errs...)
		c.base[bandID] = shares
	}
	for key, table := range doc.SubBandAdjustments {
		pos := core.Position(key)
		if err := pos.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("sub_band_adjustment.%s: %v", key, err))
			continue
		}
		shares, errs := decodeShares("sub_band_adjustment."+key, table)
		problems = append(problems, errs...)
		c.subBandAdjust[pos] = shares
	}
	for key, table := range doc.ModeAdjustments {
		mode := core.BudgetMode(key)
		if err := mode.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("mode_adjustment.%s: %v", key, err))
			continue
		}
		shares, errs := decodeShares("mode_adjustment."+key, table)
		problems = append(problems, errs...)
		c.modeAdjust[mode] = shares
	}

	problems = append(problems, c.validate()...)
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w:\n- %s", ErrInvalidCatalog, strings.Join(problems, "\n- "))
	}
	return c, nil
}

func (c *Catalog) decodePrefixes(entries []prefixEntry) []string {
	var problems []string
	var seen [core.NumPrefixes]bool
	for _, e := range entries {
		code, err := core.ParsePrefixCode(e.Code)
		if err != nil {
			problems = append(problems, fmt.Sprintf("prefix: %v", err))
			continue
		}
		if seen[code] {
			problems = append(problems, fmt.Sprintf("prefix %s declared twice", code))
			continue
		}
		seen[code] = true
		cond := core.Condition(e.ConditionalOn)
		if err := cond.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("prefix %s: %v", code, err))
		}
		if strings.TrimSpace(e.Name) == "" {
			problems = append(problems, fmt.Sprintf("prefix %s: empty name", code))
		}
		c.prefixes[code] = core.PrefixConfig{
			Code:          code,
			Name:          e.Name,
			CategoryID:    e.CategoryID,
			Budgetable:    e.Budgetable,
			ConditionalOn: cond,
		}
	}
	for i, ok := range seen {
		if !ok {
			problems = append(problems, fmt.Sprintf("prefix %s not declared", core.PrefixCode(i)))
		}
	}
	return problems
}

func (c *Catalog) decodeBands(entries []bandEntry) []string {
	var problems []string
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			problems = append(problems, "band with empty id")
			continue
		}
		if seen[e.ID] {
			problems = append(problems, fmt.Sprintf("band %s declared twice", e.ID))
			continue
		}
		seen[e.ID] = true
		if e.Upper != 0 && e.Upper <= e.Lower {
			problems = append(problems, fmt.Sprintf("band %s: upper %d must exceed lower %d", e.ID, e.Upper, e.Lower))
		}
		if e.FixedFloor < 0 {
			problems = append(problems, fmt.Sprintf("band %s: negative fixed_floor", e.ID))
		}

		band := core.IncomeBand{ID: e.ID, Label: e.Label, Lower: e.Lower, Upper: e.Upper}
		if len(e.SubBands) != len(positions) {
			problems = append(problems, fmt.Sprintf("band %s: expected 3 sub-bands, got %d", e.ID, len(e.SubBands)))
		} else {
			for i, sb := range e.SubBands {
				pos := core.Position(sb.Position)
				if pos != positions[i] {
					problems = append(problems, fmt.Sprintf("band %s: sub-band %d must be %s, got %q", e.ID, i, positions[i], sb.Position))
				}
				want := ExpectedMidpoint(band, i)
				if math.Abs(float64(sb.Midpoint)-want) > 1 {
					problems = append(problems, fmt.Sprintf("band %s: %s midpoint %d, expected %.0f", e.ID, positions[i], sb.Midpoint, want))
				}
				band.SubBands[i] = core.SubBand{ID: sb.ID, BandID: e.ID, Position: pos, Midpoint: sb.Midpoint}
			}
		}
		c.bands = append(c.bands, band)
		c.fixedFloors[e.ID] = e.FixedFloor
	}
	sort.Slice(c.bands, func(i, j int) bool { return c.bands[i].Lower < c.bands[j].Lower })
	return problems
}

func decodeShares(where string, table map[string]float64) (core.Shares, []string) {
	var shares core.Shares
	var problems []string
	for key, v := range table {
		code, err := core.ParsePrefixCode(key)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", where, err))
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("%s.%s: not a finite number", where, key))
			continue
		}
		shares[code] = v
	}
	return shares, problems
}

func (c *Catalog) validate() []string {
	var problems []string

	buffer := c.prefixes[core.Buffer]
	if !buffer.Budgetable || buffer.ConditionalOn != core.Always {
		problems = append(problems, "prefix IF must be budgetable and unconditional")
	}
	if c.PlanningShift < 0 || c.PlanningShift >= 1 {
		problems = append(problems, fmt.Sprintf("planning_shift %v out of range [0, 1)", c.PlanningShift))
	}
	if len(c.bands) == 0 {
		problems = append(problems, "no income bands")
	}

	for _, b := range c.bands {
		shares, ok := c.base[b.ID]
		if !ok {
			problems = append(problems, fmt.Sprintf("band %s has no base table", b.ID))
			continue
		}
		if sum := shares.Sum(); math.Abs(sum-1) > SumTolerance {
			problems = append(problems, fmt.Sprintf("base.%s sums to %.4f", b.ID, sum))
		}
		for code, v := range shares {
			if v < 0 {
				problems = append(problems, fmt.Sprintf("base.%s.%s is negative", b.ID, core.PrefixCode(code)))
			}
			if v > 0 && !c.prefixes[code].Budgetable {
				problems = append(problems, fmt.Sprintf("base.%s.%s: line is not budgetable", b.ID, core.PrefixCode(code)))
			}
		}
	}
	for bandID := range c.base {
		if _, err := c.Band(bandID); err != nil {
			problems = append(problems, fmt.Sprintf("base table for undeclared band %s", bandID))
		}
	}
	return problems
}

// ExpectedMidpoint returns the centre of the i-th third of a band. The
// open-ended top band is treated as spanning [lower, 2*lower).
func ExpectedMidpoint(b core.IncomeBand, i int) float64 {
	upper := b.Upper
	if upper == 0 {
		upper = 2 * b.Lower
	}
	width := float64(upper-b.Lower) / 3
	return float64(b.Lower) + width*(float64(i)+0.5)
}
