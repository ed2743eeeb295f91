// Package onboarding drives a household from the profile wizard to a persisted
// allocation.
//
// A Session moves through wizard, acceptance, adjustment and persisted. The
// generated allocation lives only in memory until it is confirmed; it is then
// handed whole to a Saver.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"orcamento/internal/budget"
	"orcamento/internal/core"
)

type State string

const (
	StateWizard     State = "wizard"
	StateAcceptance State = "acceptance"
	StateAdjustment State = "adjustment"
	StatePersisted  State = "persisted"
)

var (
	ErrIllegalTransition = errors.New("illegal session transition")
	ErrBlocked           = errors.New("allocation has blocking issues")
	ErrNoHousehold       = errors.New("household id is required")
)

// Proposer produces the initial allocation for a profile.
type Proposer interface {
	Propose(ctx context.Context, p core.Profile) (budget.Proposal, error)
}

// Confirmation is what a session hands to its Saver.
type Confirmation struct {
	SessionID   string
	HouseholdID string
	Profile     core.Profile
	Allocation  core.Allocation
	Outcome     core.Outcome
	ConfirmedAt time.Time
}

// Saver persists a confirmed allocation.
type Saver interface {
	SaveConfirmed(ctx context.Context, c Confirmation) error
}

// Session is safe for concurrent use. Every operation runs under one lock so
// each edit sees the allocation committed by the previous one.
type Session struct {
	mu sync.Mutex

	id          string
	householdID string
	proposer    Proposer
	saver       Saver
	gate        budget.GateOptions
	now         func() time.Time

	state    State
	profile  core.Profile
	proposal budget.Proposal
	current  core.Allocation
	edits    int
}

// Option configures a Session.
type Option func(*Session)

// WithGateOptions sets the options used by Check, Accept and Confirm.
func WithGateOptions(opts budget.GateOptions) Option {
	return func(s *Session) { s.gate = opts }
}

// WithClock overrides the confirmation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithID sets the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func NewSession(householdID string, proposer Proposer, saver Saver, opts ...Option) (*Session, error) {
	if householdID == "" {
		return nil, ErrNoHousehold
	}
	if proposer == nil || saver == nil {
		return nil, errors.New("proposer and saver are required")
	}
	s := &Session{
		id:          uuid.NewString(),
		householdID: householdID,
		proposer:    proposer,
		saver:       saver,
		now:         time.Now,
		state:       StateWizard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() string          { return s.id }
func (s *Session) HouseholdID() string { return s.householdID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Allocation returns a copy of the allocation currently under review.
func (s *Session) Allocation() core.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Proposal returns the proposal generated when the wizard was submitted.
func (s *Session) Proposal() budget.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.proposal
	p.Allocation = p.Allocation.Clone()
	p.Warnings = append([]budget.Warning(nil), p.Warnings...)
	return p
}

// Edits counts accepted edits since the allocation was generated.
func (s *Session) Edits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edits
}

// Submit completes the wizard and generates the proposal.
func (s *Session) Submit(ctx context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("submit", StateWizard); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	prop, err := s.proposer.Propose(ctx, p)
	if err != nil {
		return fmt.Errorf("propose allocation: %w", err)
	}
	s.profile = p
	s.proposal = prop
	s.current = prop.Allocation.Clone()
	s.edits = 0
	s.state = StateAcceptance
	return nil
}

// Back returns to the wizard and discards the generated allocation.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("back", StateAcceptance, StateAdjustment); err != nil {
		return err
	}
	s.proposal = budget.Proposal{}
	s.current = core.Allocation{}
	s.edits = 0
	s.state = StateWizard
	return nil
}

// Adjust enters interactive editing.
func (s *Session) Adjust() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("adjust", StateAcceptance); err != nil {
		return err
	}
	s.state = StateAdjustment
	return nil
}

// Accept persists the proposal unchanged.
func (s *Session) Accept(ctx context.Context) (budget.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("accept", StateAcceptance); err != nil {
		return budget.Report{}, err
	}
	return s.persist(ctx, core.AcceptedAsIs)
}

// Confirm runs the validation gate and persists the edited allocation. The
// report is returned whether or not confirmation succeeded.
func (s *Session) Confirm(ctx context.Context) (budget.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("confirm", StateAdjustment); err != nil {
		return budget.Report{}, err
	}
	return s.persist(ctx, core.ManuallyAdjusted)
}

// Check runs the validation gate without changing state.
func (s *Session) Check() budget.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return budget.Validate(s.current, s.gate)
}

func (s *Session) persist(ctx context.Context, outcome core.Outcome) (budget.Report, error) {
	rep := budget.Validate(s.current, s.gate)
	if !rep.Valid {
		return rep, ErrBlocked
	}
	c := Confirmation{
		SessionID:   s.id,
		HouseholdID: s.householdID,
		Profile:     s.profile,
		Allocation:  s.current.Clone(),
		Outcome:     outcome,
		ConfirmedAt: s.now().UTC(),
	}
	if err := s.saver.SaveConfirmed(ctx, c); err != nil {
		return rep, fmt.Errorf("save allocation: %w", err)
	}
	s.state = StatePersisted
	return rep, nil
}

// SetPercentage edits one category, funded by IF.
func (s *Session) SetPercentage(code core.PrefixCode, pct float64) (budget.EditResult, error) {
	return s.edit("set percentage", func(a core.Allocation) (budget.EditResult, error) {
		return budget.ApplyPercentageChange(a, code, pct)
	})
}

// Shrink lowers a category to its subcategory total.
func (s *Session) Shrink(code core.PrefixCode) (budget.EditResult, error) {
	return s.edit("shrink", func(a core.Allocation) (budget.EditResult, error) {
		return budget.ShrinkCategoryToMatch(a, code)
	})
}

// Grow raises a category to its subcategory total.
func (s *Session) Grow(code core.PrefixCode) (budget.EditResult, error) {
	return s.edit("grow", func(a core.Allocation) (budget.EditResult, error) {
		return budget.GrowCategoryToMatch(a, code)
	})
}

// SetSubcategories replaces the subcategories of a category.
func (s *Session) SetSubcategories(code core.PrefixCode, subs []core.SubcategoryBudget) (core.Allocation, error) {
	res, err := s.edit("set subcategories", func(a core.Allocation) (budget.EditResult, error) {
		out, err := budget.SetSubcategories(a, code, subs)
		if err != nil {
			return budget.EditResult{}, err
		}
		return budget.EditResult{Allocation: out, Accepted: true}, nil
	})
	if err != nil {
		return core.Allocation{}, err
	}
	return res.Allocation.Clone(), nil
}

func (s *Session) edit(op string, fn func(core.Allocation) (budget.EditResult, error)) (budget.EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(op, StateAdjustment); err != nil {
		return budget.EditResult{}, err
	}
	res, err := fn(s.current)
	if err != nil {
		return budget.EditResult{}, err
	}
	if res.Accepted {
		s.current = res.Allocation
		s.edits++
	}
	res.Allocation = s.current.Clone()
	return res, nil
}

func (s *Session) expect(op string, states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, op, s.state)
}
