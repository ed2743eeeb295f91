package catalog

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"orcamento/internal/core"
)

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return c
}

func TestDefaultCatalogLoads(t *testing.T) {
	c := mustDefault(t)
	if c.Version == "" {
		t.Fatalf("expected a version")
	}
	if got := len(c.Bands()); got != 4 {
		t.Fatalf("expected 4 bands, got %d", got)
	}
	for _, b := range c.Bands() {
		shares, err := c.BaseShares(b.ID)
		if err != nil {
			t.Fatalf("BaseShares(%s): %v", b.ID, err)
		}
		if math.Abs(shares.Sum()-1) > SumTolerance {
			t.Errorf("base table %s sums to %v", b.ID, shares.Sum())
		}
		for i, sb := range b.SubBands {
			if sb.BandID != b.ID {
				t.Errorf("sub-band %s has parent %s", sb.ID, sb.BandID)
			}
			if sb.Position != positions[i] {
				t.Errorf("sub-band %s at index %d has position %s", sb.ID, i, sb.Position)
			}
		}
	}
}

func TestMidBandMidpoint(t *testing.T) {
	c := mustDefault(t)
	sb, err := c.SubBand("band_15k_30k", core.Mid)
	if err != nil {
		t.Fatalf("SubBand: %v", err)
	}
	if sb.Midpoint != 22500 {
		t.Fatalf("midpoint = %d, want 22500", sb.Midpoint)
	}
}

func TestOpenEndedBandMidpoints(t *testing.T) {
	c := mustDefault(t)
	b, err := c.Band("band_30k_plus")
	if err != nil {
		t.Fatalf("Band: %v", err)
	}
	if b.Upper != 0 {
		t.Fatalf("expected unbounded top band, got upper %d", b.Upper)
	}
	want := []int64{35000, 45000, 55000}
	for i, sb := range b.SubBands {
		if sb.Midpoint != want[i] {
			t.Errorf("%s midpoint = %d, want %d", sb.Position, sb.Midpoint, want[i])
		}
	}
}

func TestPrefixTable(t *testing.T) {
	c := mustDefault(t)
	buffer := c.Prefix(core.Buffer)
	if !buffer.Budgetable || buffer.ConditionalOn != core.Always {
		t.Fatalf("IF must be budgetable and unconditional: %+v", buffer)
	}
	for _, code := range []core.PrefixCode{core.Income, core.Unclassified} {
		if c.Prefix(code).Budgetable {
			t.Errorf("%s must not be budgetable", code)
		}
	}
	if c.Prefix(core.Pets).ConditionalOn != core.WhenHasPets {
		t.Errorf("PET must depend on has_pets")
	}
	if c.Prefix(core.Dependents).ConditionalOn != core.WhenHasDependents {
		t.Errorf("F must depend on has_dependents")
	}
	if got := len(c.Prefixes()); got != int(core.NumPrefixes) {
		t.Errorf("expected %d prefixes, got %d", core.NumPrefixes, got)
	}
}

func TestSubBandAdjustmentDirections(t *testing.T) {
	c := mustDefault(t)
	low := c.SubBandAdjustment(core.Low)
	if low[core.Housing] <= 0 || low[core.Leisure] >= 0 {
		t.Errorf("low must raise C and lower L: %v", low)
	}
	high := c.SubBandAdjustment(core.High)
	if high[core.Leisure] <= 0 || high[core.Irregular] <= 0 {
		t.Errorf("high must raise L and E: %v", high)
	}
	if c.SubBandAdjustment(core.Mid).Sum() != 0 {
		t.Errorf("mid must be neutral")
	}
}

func TestLookups(t *testing.T) {
	c := mustDefault(t)
	if _, err := c.Band("band_nope"); !errors.Is(err, ErrUnknownBand) {
		t.Fatalf("expected ErrUnknownBand, got %v", err)
	}
	if _, err := c.SubBand("band_0_5k", "middle"); !errors.Is(err, core.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}

	cases := []struct {
		income int64
		want   string
	}{
		{0, "band_0_5k"},
		{4999, "band_0_5k"},
		{5000, "band_5k_15k"},
		{22500, "band_15k_30k"},
		{1_000_000, "band_30k_plus"},
	}
	for _, tc := range cases {
		b, err := c.BandFor(tc.income)
		if err != nil || b.ID != tc.want {
			t.Errorf("BandFor(%d) = %s, %v; want %s", tc.income, b.ID, err, tc.want)
		}
	}
	if c.FixedFloor("band_15k_30k") <= 0 {
		t.Errorf("expected a positive fixed floor")
	}
}

const minimalDoc = `
version = "test"
planning_shift = 0.01

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
id = "b1"
lower = 0
upper = 3000
fixed_floor = 100
  [[band.sub_band]]
  id = "b1_low"
  position = "low"
  midpoint = 500
  [[band.sub_band]]
  id = "b1_mid"
  position = "mid"
  midpoint = 1500
  [[band.sub_band]]
  id = "b1_high"
  position = "high"
  midpoint = 2500

[base.b1]
C = 0.5
IF = 0.5
`

func TestParseMinimalDocument(t *testing.T) {
	c, err := Parse([]byte(minimalDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.PlanningShift != 0.01 || c.FixedFloor("b1") != 100 {
		t.Fatalf("unexpected catalog %+v", c)
	}
	if got := c.ModeAdjustment(core.Aggressive); got.Sum() != 0 {
		t.Fatalf("missing mode table must read as zero deltas, got %v", got)
	}
}

func TestParseReportsEveryProblem(t *testing.T) {
	bad := strings.Replace(minimalDoc, "C = 0.5", "C = 0.7\nXX = 0.1", 1)
	bad = strings.Replace(bad, "midpoint = 1500", "midpoint = 1400", 1)
	bad = strings.Replace(bad, `code = "DESC"`, `code = "DESC"
color = "red"`, 1)

	_, err := Parse([]byte(bad))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
	for _, want := range []string{"sums to", "unknown prefix", "midpoint 1400", "unknown keys"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseRejectsMissingPrefix(t *testing.T) {
	doc := strings.Replace(minimalDoc, "[[prefix]]\ncode = \"DESC\"\nname = \"Desconhecido\"\n", "", 1)
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "prefix DESC not declared") {
		t.Fatalf("expected missing prefix error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte(minimalDoc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Version != "test" {
		t.Fatalf("loaded wrong document: %s", c.Version)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if def, err := Load(""); err != nil || def.Version == "test" {
		t.Fatalf("empty path must return the embedded catalog: %v", err)
	}
}
