// Package catalog holds the read-only budget reference data: income bands and
// their sub-bands, the prefix table, base percentages per band and the
// adjustment tables used by the generation pipeline.
//
// The data ships as an embedded TOML document so that business changes to the
// numbers are reviewed as data diffs. LoadFile accepts an override document with
// the same layout.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"orcamento/internal/core"
)

//go:embed catalog.toml
var defaultDocument []byte

// Catalog is immutable after load and safe for concurrent readers.
type Catalog struct {
	Version       string
	PlanningShift float64

	prefixes      [core.NumPrefixes]core.PrefixConfig
	bands         []core.IncomeBand
	base          map[string]core.Shares
	fixedFloors   map[string]int64
	subBandAdjust map[core.Position]core.Shares
	modeAdjust    map[core.BudgetMode]core.Shares
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Parse(defaultDocument)
})

// Default returns the embedded catalog. It is parsed once per process.
func Default() (*Catalog, error) {
	return loadDefault()
}

// LoadFile reads and validates a catalog document from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Load returns the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Prefix returns the configuration of a budget line.
func (c *Catalog) Prefix(code core.PrefixCode) core.PrefixConfig {
	return c.prefixes[code]
}

// Prefixes returns all budget lines in catalog order.
func (c *Catalog) Prefixes() []core.PrefixConfig {
	return append([]core.PrefixConfig(nil), c.prefixes[:]...)
}

// Bands returns the income bands ordered by lower bound.
func (c *Catalog) Bands() []core.IncomeBand {
	return append([]core.IncomeBand(nil), c.bands...)
}

// Band looks up an income band by id.
func (c *Catalog) Band(id string) (core.IncomeBand, error) {
	for _, b := range c.bands {
		if b.ID == id {
			return b, nil
		}
	}
	return core.IncomeBand{}, fmt.Errorf("%w: %q", ErrUnknownBand, id)
}

// SubBand returns the sub-band at the given position of a band.
func (c *Catalog) SubBand(bandID string, pos core.Position) (core.SubBand, error) {
	b, err := c.Band(bandID)
	if err != nil {
		return core.SubBand{}, err
	}
	if err := pos.Validate(); err != nil {
		return core.SubBand{}, err
	}
	for _, sb := range b.SubBands {
		if sb.Position == pos {
			return sb, nil
		}
	}
	return core.SubBand{}, fmt.Errorf("band %s has no %s sub-band", bandID, pos)
}

// BandFor returns the band whose interval contains income.
func (c *Catalog) BandFor(income int64) (core.IncomeBand, error) {
	for _, b := range c.bands {
		if income >= b.Lower && (b.Upper == 0 || income < b.Upper) {
			return b, nil
		}
	}
	return core.IncomeBand{}, fmt.Errorf("%w: no band contains %d", ErrUnknownBand, income)
}

// BaseShares returns the base percentage table of a band.
func (c *Catalog) BaseShares(bandID string) (core.Shares, error) {
	s, ok := c.base[bandID]
	if !ok {
		return core.Shares{}, fmt.Errorf("%w: no base table for %q", ErrUnknownBand, bandID)
	}
	return s, nil
}

// SubBandAdjustment returns the signed deltas for a sub-band position.
func (c *Catalog) SubBandAdjustment(pos core.Position) core.Shares {
	return c.subBandAdjust[pos]
}

// ModeAdjustment returns the signed deltas for a budget mode.
func (c *Catalog) ModeAdjustment(mode core.BudgetMode) core.Shares {
	return c.modeAdjust[mode]
}

// FixedFloor returns the minimum monthly amount reserved for fixed financial
// obligations in a band.
func (c *Catalog) FixedFloor(bandID string) int64 {
	return c.fixedFloors[bandID]
}
