package onboarding

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"orcamento/internal/budget"
	"orcamento/internal/catalog"
	"orcamento/internal/core"
)

type generatorProposer struct {
	t     *testing.T
	calls int
}

func (g *generatorProposer) Propose(_ context.Context, p core.Profile) (budget.Proposal, error) {
	g.calls++
	c, err := catalog.Default()
	if err != nil {
		g.t.Fatalf("catalog.Default: %v", err)
	}
	return budget.Generate(c, p)
}

type recordingSaver struct {
	saved []Confirmation
	err   error
}

func (r *recordingSaver) SaveConfirmed(_ context.Context, c Confirmation) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, c)
	return nil
}

func profile() core.Profile {
	return core.Profile{
		BandID:       "band_15k_30k",
		Position:     core.Mid,
		Mode:         core.Balanced,
		Planning:     core.PlanningPartial,
		IncomeAnchor: 22500,
	}
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, saver *recordingSaver) (*Session, *generatorProposer) {
	t.Helper()
	prop := &generatorProposer{t: t}
	s, err := NewSession("house-1", prop, saver, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, prop
}

func pct(t *testing.T, a core.Allocation, code core.PrefixCode) float64 {
	t.Helper()
	it, ok := a.Item(code)
	if !ok {
		t.Fatalf("%s missing", code)
	}
	return it.Percentage
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := NewSession("", &generatorProposer{t: t}, &recordingSaver{}); !errors.Is(err, ErrNoHousehold) {
		t.Fatalf("expected ErrNoHousehold, got %v", err)
	}
	if _, err := NewSession("h", nil, &recordingSaver{}); err == nil {
		t.Fatalf("expected error for missing proposer")
	}
	s, err := NewSession("h", &generatorProposer{t: t}, &recordingSaver{}, WithID("fixed"))
	if err != nil || s.ID() != "fixed" || s.State() != StateWizard {
		t.Fatalf("unexpected session %v %v", s, err)
	}
}

func TestAcceptAsIs(t *testing.T) {
	saver := &recordingSaver{}
	s, _ := newSession(t, saver)
	ctx := context.Background()

	if err := s.Submit(ctx, profile()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State() != StateAcceptance {
		t.Fatalf("state = %s", s.State())
	}
	rep, err := s.Accept(ctx)
	if err != nil || !rep.Valid {
		t.Fatalf("Accept: %v %+v", err, rep)
	}
	if s.State() != StatePersisted || len(saver.saved) != 1 {
		t.Fatalf("state %s, saved %d", s.State(), len(saver.saved))
	}
	c := saver.saved[0]
	if c.Outcome != core.AcceptedAsIs || c.HouseholdID != "house-1" || c.SessionID != s.ID() || !c.ConfirmedAt.Equal(fixedNow) {
		t.Fatalf("unexpected confirmation %+v", c)
	}
	if math.Abs(c.Allocation.TotalPercentage()-100) > 1e-3 {
		t.Fatalf("saved allocation sums to %v", c.Allocation.TotalPercentage())
	}
}

func TestAdjustAndConfirm(t *testing.T) {
	saver := &recordingSaver{}
	s, _ := newSession(t, saver)
	ctx := context.Background()
	if err := s.Submit(ctx, profile()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Adjust(); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	start := s.Allocation()
	l := pct(t, start, core.Leisure)
	buf := pct(t, start, core.Buffer)

	res, err := s.SetPercentage(core.Leisure, l+5)
	if err != nil || !res.Accepted {
		t.Fatalf("SetPercentage: %+v %v", res, err)
	}
	if got := pct(t, s.Allocation(), core.Buffer); math.Abs(got-(buf-5)) > 1e-9 {
		t.Fatalf("IF = %v, want %v", got, buf-5)
	}

	res, err = s.SetPercentage(core.Leisure, 100)
	if err != nil || res.Accepted || res.Reason != budget.ReasonInsufficientBuffer {
		t.Fatalf("expected rejection, got %+v %v", res, err)
	}
	if s.Edits() != 1 {
		t.Fatalf("edits = %d, want 1", s.Edits())
	}

	rep, err := s.Confirm(ctx)
	if err != nil || !rep.Valid {
		t.Fatalf("Confirm: %v %+v", err, rep)
	}
	if got := saver.saved[0]; got.Outcome != core.ManuallyAdjusted || math.Abs(pct(t, got.Allocation, core.Leisure)-(l+5)) > 1e-9 {
		t.Fatalf("unexpected confirmation %+v", got)
	}
}

func TestConfirmBlockedBySubcategoryOver(t *testing.T) {
	saver := &recordingSaver{}
	s, _ := newSession(t, saver)
	ctx := context.Background()
	_ = s.Submit(ctx, profile())
	_ = s.Adjust()

	housing, _ := s.Allocation().Item(core.Housing)
	if _, err := s.SetSubcategories(core.Housing, []core.SubcategoryBudget{
		{Name: "rent", Amount: housing.Amount + 500},
	}); err != nil {
		t.Fatalf("SetSubcategories: %v", err)
	}

	rep, err := s.Confirm(ctx)
	if !errors.Is(err, ErrBlocked) || !rep.Has(budget.IssueSubcategoryOver) {
		t.Fatalf("expected blocked confirm, got %v %+v", err, rep)
	}
	if s.State() != StateAdjustment || len(saver.saved) != 0 {
		t.Fatalf("blocked confirm changed state")
	}

	res, err := s.Grow(core.Housing)
	if err != nil || !res.Accepted {
		t.Fatalf("Grow: %+v %v", res, err)
	}
	if _, err := s.Confirm(ctx); err != nil {
		t.Fatalf("Confirm after grow: %v", err)
	}
}

func TestSaverFailureKeepsState(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	s, _ := newSession(t, saver)
	ctx := context.Background()
	_ = s.Submit(ctx, profile())

	if _, err := s.Accept(ctx); err == nil {
		t.Fatalf("expected save error")
	}
	if s.State() != StateAcceptance {
		t.Fatalf("state = %s, want acceptance", s.State())
	}
	saver.err = nil
	if _, err := s.Accept(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestIllegalTransitions(t *testing.T) {
	s, _ := newSession(t, &recordingSaver{})
	ctx := context.Background()

	if _, err := s.SetPercentage(core.Leisure, 10); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("edit in wizard: %v", err)
	}
	if err := s.Adjust(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("adjust in wizard: %v", err)
	}
	if err := s.Back(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("back in wizard: %v", err)
	}

	_ = s.Submit(ctx, profile())
	if _, err := s.Shrink(core.Leisure); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("edit in acceptance: %v", err)
	}
	if _, err := s.Confirm(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("confirm in acceptance: %v", err)
	}
	if err := s.Submit(ctx, profile()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("submit in acceptance: %v", err)
	}

	_ = s.Adjust()
	if _, err := s.Accept(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("adjustment must not return to acceptance: %v", err)
	}
	if err := s.Adjust(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("adjust twice: %v", err)
	}

	_, _ = s.Confirm(ctx)
	if err := s.Back(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("back after persist: %v", err)
	}
}

func TestBackDiscardsAndRegenerates(t *testing.T) {
	s, prop := newSession(t, &recordingSaver{})
	ctx := context.Background()
	_ = s.Submit(ctx, profile())
	_ = s.Adjust()
	if _, err := s.SetPercentage(core.Leisure, 1); err != nil {
		t.Fatalf("SetPercentage: %v", err)
	}

	if err := s.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if s.State() != StateWizard || len(s.Allocation().Items) != 0 || s.Edits() != 0 {
		t.Fatalf("Back did not discard the allocation")
	}

	p := profile()
	p.Mode = core.Aggressive
	if err := s.Submit(ctx, p); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if prop.calls != 2 {
		t.Fatalf("expected regeneration, proposer called %d times", prop.calls)
	}
}

func TestSubmitRejectsInvalidProfile(t *testing.T) {
	s, prop := newSession(t, &recordingSaver{})
	p := profile()
	p.Position = "middle"
	if err := s.Submit(context.Background(), p); !errors.Is(err, core.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if prop.calls != 0 || s.State() != StateWizard {
		t.Fatalf("invalid profile must not reach the proposer")
	}
}

func TestConcurrentEditsAreSerialized(t *testing.T) {
	s, _ := newSession(t, &recordingSaver{})
	_ = s.Submit(context.Background(), profile())
	_ = s.Adjust()

	codes := []core.PrefixCode{core.Housing, core.Food, core.Transport, core.Leisure}
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := codes[i%len(codes)]
			_, _ = s.SetPercentage(code, float64(5+i%10))
		}(i)
	}
	wg.Wait()

	a := s.Allocation()
	if total := a.TotalPercentage(); math.Abs(total-100) > 1e-3 {
		t.Fatalf("allocation sums to %v after concurrent edits", total)
	}
	if buf := pct(t, a, core.Buffer); buf < 0 {
		t.Fatalf("IF negative: %v", buf)
	}
	if !s.Check().Valid {
		t.Fatalf("allocation invalid after concurrent edits: %+v", s.Check())
	}
}
