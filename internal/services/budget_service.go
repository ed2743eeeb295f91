package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"orcamento/internal/budget"
	"orcamento/internal/cache"
	"orcamento/internal/core"
	"orcamento/internal/log"
	"orcamento/internal/onboarding"
	"orcamento/internal/sheets"
)

var (
	_ onboarding.Proposer = (*BudgetService)(nil)
	_ onboarding.Saver    = (*BudgetService)(nil)
)

// Store is the persistence the service needs.
type Store interface {
	sheets.ProfileStore
	sheets.AllocationStore
}

// Publisher announces confirmed allocations to the export worker.
type Publisher interface {
	PublishAllocationConfirmed(ctx context.Context, householdID string, version int64, outcome string) error
}

// BudgetService proposes allocations and persists confirmed ones. A confirmed
// allocation is stored first; publishing is best effort because the worker
// also picks up pending exports on its own schedule.
type BudgetService struct {
	generator *budget.Generator
	store     Store
	publisher Publisher
	gate      budget.GateOptions
	logger    *log.Logger

	proposals cache.Cache[budget.Proposal]
	cleaner   *cache.Manager
}

type Option func(*BudgetService)

// WithPublisher sets the publisher. Without one confirmations are only stored.
func WithPublisher(p Publisher) Option {
	return func(s *BudgetService) { s.publisher = p }
}

func WithGateOptions(opts budget.GateOptions) Option {
	return func(s *BudgetService) { s.gate = opts }
}

func WithLogger(l *log.Logger) Option {
	return func(s *BudgetService) { s.logger = l }
}

// WithProposalCache sizes the proposal cache. A size of zero disables it.
func WithProposalCache(size int, ttl time.Duration) Option {
	return func(s *BudgetService) {
		if size <= 0 {
			s.proposals = nil
			return
		}
		s.proposals = cache.NewLRUCache[budget.Proposal](size, ttl)
	}
}

func NewBudgetService(generator *budget.Generator, store Store, opts ...Option) (*BudgetService, error) {
	if generator == nil || generator.Catalog == nil {
		return nil, errors.New("budget service: generator with a catalog is required")
	}
	if store == nil {
		return nil, errors.New("budget service: store is required")
	}
	s := &BudgetService{
		generator: generator,
		store:     store,
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentBudget),
		proposals: cache.NewLRUCache[budget.Proposal](128, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	if lru, ok := s.proposals.(cache.Cleaner); ok {
		s.cleaner = cache.NewManager()
		s.cleaner.Register(lru)
		s.cleaner.StartCleanup(time.Minute)
	}
	return s, nil
}

// Propose generates the allocation for a profile. Proposals depend only on the
// profile and the catalog, so identical profiles share a cached result.
func (s *BudgetService) Propose(ctx context.Context, p core.Profile) (budget.Proposal, error) {
	key := profileKey(p)
	if s.proposals != nil {
		if cached, ok := s.proposals.Get(key); ok {
			s.logger.DebugContext(ctx, "Proposal served from cache", log.FieldBand, p.BandID, log.FieldCacheHit, true)
			return cloneProposal(cached), nil
		}
	}

	prop, err := s.generator.Generate(p)
	if err != nil {
		return budget.Proposal{}, err
	}
	for _, w := range prop.Warnings {
		fields := log.NewFields().
			WithProfile(p.BandID, p.IncomeAnchor).
			WithPrefix(w.Prefix).
			WithOperation(log.OpPropose)
		fields[log.FieldWarning] = string(w.Kind)
		s.logger.WarnContext(ctx, w.Message, fields.ToSlice()...)
	}
	if s.proposals != nil {
		s.proposals.Set(key, cloneProposal(prop))
	}
	return prop, nil
}

// ProposeForHousehold proposes from the household's stored profile.
func (s *BudgetService) ProposeForHousehold(ctx context.Context, householdID string) (budget.Proposal, error) {
	p, err := s.store.LoadProfile(ctx, householdID)
	if err != nil {
		return budget.Proposal{}, fmt.Errorf("load profile: %w", err)
	}
	return s.Propose(ctx, p)
}

func (s *BudgetService) SaveProfile(ctx context.Context, householdID string, p core.Profile) error {
	if err := s.store.SaveProfile(ctx, householdID, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *BudgetService) LoadProfile(ctx context.Context, householdID string) (core.Profile, error) {
	return s.store.LoadProfile(ctx, householdID)
}

// NewSession starts onboarding for a household, proposing and saving
// through this service.
func (s *BudgetService) NewSession(householdID string, opts ...onboarding.Option) (*onboarding.Session, error) {
	opts = append([]onboarding.Option{onboarding.WithGateOptions(s.gate)}, opts...)
	return onboarding.NewSession(householdID, s, s, opts...)
}

// SaveConfirmed stores the profile and the confirmed allocation, then
// publishes AllocationConfirmed.
func (s *BudgetService) SaveConfirmed(ctx context.Context, c onboarding.Confirmation) error {
	if err := s.SaveProfile(ctx, c.HouseholdID, c.Profile); err != nil {
		return err
	}

	rec := core.ConfirmedAllocation{
		HouseholdID: c.HouseholdID,
		SessionID:   c.SessionID,
		Outcome:     c.Outcome,
		Allocation:  c.Allocation,
		ConfirmedAt: c.ConfirmedAt,
	}
	version, err := s.store.SaveAllocation(ctx, rec)
	if err != nil {
		return fmt.Errorf("save allocation: %w", err)
	}
	fields := log.NewFields().WithAllocation(c.HouseholdID, version, string(c.Outcome))
	s.logger.InfoContext(ctx, "Allocation confirmed", append(fields.ToSlice(), log.FieldSession, c.SessionID)...)

	if s.publisher == nil {
		s.logger.WarnContext(ctx, "No publisher configured, export waits for the worker's periodic pass", fields.ToSlice()...)
		return nil
	}
	if err := s.publisher.PublishAllocationConfirmed(ctx, c.HouseholdID, version, string(c.Outcome)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish allocation confirmed",
			fields.WithOperation(log.OpPublish).WithError(err).ToSlice()...)
	}
	return nil
}

// CurrentAllocation returns the household's persisted allocation and its gate report.
func (s *BudgetService) CurrentAllocation(ctx context.Context, householdID string) (core.ConfirmedAllocation, budget.Report, error) {
	rec, err := s.store.LoadAllocation(ctx, householdID)
	if err != nil {
		return core.ConfirmedAllocation{}, budget.Report{}, fmt.Errorf("load allocation: %w", err)
	}
	return rec, budget.Validate(rec.Allocation, s.gate), nil
}

// Close stops the cache cleanup and closes the store and publisher.
func (s *BudgetService) Close() error {
	if s.cleaner != nil {
		s.cleaner.Stop()
	}
	if lru, ok := s.proposals.(*cache.LRUCache[budget.Proposal]); ok {
		st := lru.Stats()
		s.logger.Debug("Proposal cache closed", "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions)
	}

	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close budget service: %w", errors.Join(errs...))
	}
	return nil
}

func profileKey(p core.Profile) string {
	return fmt.Sprintf("%s|%s|%s|%s|%t|%t|%d",
		p.BandID, p.Position, p.Mode, p.Planning, p.HasPets, p.HasDependents, p.IncomeAnchor)
}

func cloneProposal(p budget.Proposal) budget.Proposal {
	p.Allocation = p.Allocation.Clone()
	if p.Warnings != nil {
		p.Warnings = append([]budget.Warning(nil), p.Warnings...)
	}
	return p
}
