package core

import (
	"errors"
	"fmt"
	"strings"
)

// Budget lines, in catalog order. NumPrefixes must stay last.
const (
	Housing PrefixCode = iota
	Food
	Transport
	Leisure
	Dependents
	Pets
	FixedFinancial
	Irregular
	Buffer
	Income
	Unclassified
	NumPrefixes
)

const (
	Low  Position = "low"
	Mid  Position = "mid"
	High Position = "high"
)

const (
	Conservative BudgetMode = "conservative"
	Balanced     BudgetMode = "balanced"
	Aggressive   BudgetMode = "aggressive"
)

const (
	PlanningNone    PlanningLevel = "none"
	PlanningPartial PlanningLevel = "partial"
	PlanningFull    PlanningLevel = "full"
)

const (
	Always            Condition = ""
	WhenHasPets       Condition = "has_pets"
	WhenHasDependents Condition = "has_dependents"
)

const (
	AcceptedAsIs     Outcome = "accepted_as_is"
	ManuallyAdjusted Outcome = "manually_adjusted"
)

type (
	// PrefixCode identifies a budget line. The set is closed; Shares is indexed by it.
	PrefixCode int

	// Shares holds one fraction of income per prefix code.
	Shares [NumPrefixes]float64

	Position      string
	BudgetMode    string
	PlanningLevel string
	Condition     string
	Outcome       string

	IncomeBand struct {
		ID       string
		Label    string
		Lower    int64
		Upper    int64 // 0 means unbounded
		SubBands [3]SubBand
	}

	SubBand struct {
		ID       string
		BandID   string
		Position Position
		Midpoint int64
	}

	PrefixConfig struct {
		Code          PrefixCode
		Name          string
		CategoryID    string
		Budgetable    bool
		ConditionalOn Condition
	}

	SubcategoryBudget struct {
		ID         string
		Name       string
		Amount     int64
		Percentage float64 // of the parent category amount
	}

	BudgetCategoryItem struct {
		Prefix        PrefixCode
		Name          string
		CategoryID    string
		Percentage    float64 // of income, 0-100
		Amount        int64
		IsEdited      bool
		Subcategories []SubcategoryBudget
	}

	// Allocation is the live, editable budget of a household. Operations in
	// package budget treat it as a value and return modified copies.
	Allocation struct {
		IncomeAnchor int64
		Items        []BudgetCategoryItem
	}

	// Profile carries the onboarding answers that drive generation.
	Profile struct {
		BandID        string
		Position      Position
		HasPets       bool
		HasDependents bool
		Mode          BudgetMode
		Planning      PlanningLevel
		IncomeAnchor  int64
	}
)

var prefixCodes = [NumPrefixes]string{"C", "A", "T", "L", "F", "PET", "DF", "E", "IF", "R", "DESC"}

var (
	ErrUnknownPrefix    = errors.New("unknown prefix code")
	ErrInvalidPosition  = errors.New("invalid sub-band position")
	ErrInvalidMode      = errors.New("invalid budget mode")
	ErrInvalidPlanning  = errors.New("invalid non-monthly planning level")
	ErrInvalidIncome    = errors.New("income anchor must be positive")
	ErrEmptyBand        = errors.New("empty income band")
	ErrInvalidCondition = errors.New("invalid activation condition")
)

func (p PrefixCode) String() string {
	if p < 0 || p >= NumPrefixes {
		return fmt.Sprintf("PrefixCode(%d)", int(p))
	}
	return prefixCodes[p]
}

// Valid reports whether p is one of the declared prefix codes.
func (p PrefixCode) Valid() bool {
	return p >= 0 && p < NumPrefixes
}

func (p PrefixCode) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPrefix, int(p))
	}
	return []byte(prefixCodes[p]), nil
}

func (p *PrefixCode) UnmarshalText(b []byte) error {
	code, err := ParsePrefixCode(string(b))
	if err != nil {
		return err
	}
	*p = code
	return nil
}

// ParsePrefixCode maps a short code such as "IF" or "pet" to its PrefixCode.
func ParsePrefixCode(s string) (PrefixCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, code := range prefixCodes {
		if code == s {
			return PrefixCode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPrefix, s)
}

// AllPrefixes returns every prefix code in catalog order.
func AllPrefixes() []PrefixCode {
	out := make([]PrefixCode, NumPrefixes)
	for i := range out {
		out[i] = PrefixCode(i)
	}
	return out
}

// Sum returns the total of all shares.
func (s Shares) Sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Normalize scales every share so the set sums to 1. It returns false when the
// total is not positive and the shares cannot be scaled.
func (s Shares) Normalize() (Shares, bool) {
	total := s.Sum()
	if total <= 0 {
		return s, false
	}
	for i := range s {
		s[i] /= total
	}
	return s, true
}

func (p Position) Validate() error {
	switch p {
	case Low, Mid, High:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPosition, string(p))
	}
}

func (m BudgetMode) Validate() error {
	switch m {
	case Conservative, Balanced, Aggressive:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
	}
}

func (l PlanningLevel) Validate() error {
	switch l {
	case PlanningNone, PlanningPartial, PlanningFull:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPlanning, string(l))
	}
}

func (c Condition) Validate() error {
	switch c {
	case Always, WhenHasPets, WhenHasDependents:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCondition, string(c))
	}
}

// Active reports whether a line with this condition applies to the profile.
func (c Condition) Active(p Profile) bool {
	switch c {
	case WhenHasPets:
		return p.HasPets
	case WhenHasDependents:
		return p.HasDependents
	default:
		return true
	}
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.BandID) == "" {
		return ErrEmptyBand
	}
	if err := p.Position.Validate(); err != nil {
		return err
	}
	if err := p.Mode.Validate(); err != nil {
		return err
	}
	if err := p.Planning.Validate(); err != nil {
		return err
	}
	if p.IncomeAnchor <= 0 {
		return ErrInvalidIncome
	}
	return nil
}

// Index returns the position of the item with the given prefix, or -1.
func (a Allocation) Index(code PrefixCode) int {
	for i, it := range a.Items {
		if it.Prefix == code {
			return i
		}
	}
	return -1
}

// Item returns the item with the given prefix.
func (a Allocation) Item(code PrefixCode) (BudgetCategoryItem, bool) {
	if i := a.Index(code); i >= 0 {
		return a.Items[i], true
	}
	return BudgetCategoryItem{}, false
}

// TotalPercentage sums the percentage of every item.
func (a Allocation) TotalPercentage() float64 {
	var total float64
	for _, it := range a.Items {
		total += it.Percentage
	}
	return total
}

// Clone returns a deep copy, subcategory slices included.
func (a Allocation) Clone() Allocation {
	out := Allocation{IncomeAnchor: a.IncomeAnchor, Items: make([]BudgetCategoryItem, len(a.Items))}
	for i, it := range a.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

func (it BudgetCategoryItem) Clone() BudgetCategoryItem {
	if it.Subcategories != nil {
		it.Subcategories = append([]SubcategoryBudget(nil), it.Subcategories...)
	}
	return it
}

// SubcategoryTotal sums the amounts of the item's subcategories.
func (it BudgetCategoryItem) SubcategoryTotal() int64 {
	var total int64
	for _, s := range it.Subcategories {
		total += s.Amount
	}
	return total
}
