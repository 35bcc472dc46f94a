package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/growthlab/pkg/cache"
	"github.com/jordanlanch/growthlab/pkg/logger"
)

// Fallback reasons attached to a Resolution when the default configuration is
// served instead of a real assignment.
const (
	ReasonNoSubject       = "no_subject"
	ReasonNoExperiment    = "no_experiment"
	ReasonInactive        = "inactive"
	ReasonUnknownTestType = "unknown_test_type"
	ReasonStoreError      = "store_error"
)

// Resolution is what the assignment endpoint hands back to the rendering
// layer. When Default is true there is no assignment id and Config is the
// control configuration for the requested test type.
type Resolution struct {
	AssignmentID string        `json:"assignment_id,omitempty"`
	Variant      Variant       `json:"variant,omitempty"`
	Config       VariantConfig `json:"config"`
	Default      bool          `json:"default"`
	// Created reports whether this call persisted a new assignment, for
	// observability only.
	Created bool   `json:"-"`
	Reason  string `json:"-"`
}

// Service implements the experiment engine: deterministic assignment with
// exactly-once persistence, conversion recording and reporting aggregates.
type Service struct {
	store    Store
	resolver *Resolver
	catalog  *Catalog
	cache    *cache.Client
	cacheTTL time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewService creates the experiment service. cacheClient may be nil, in which
// case active-experiment lookups always hit the store.
func NewService(store Store, catalog *Catalog, cacheClient *cache.Client, cacheTTL time.Duration, log logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		store:    store,
		resolver: NewResolver(catalog),
		catalog:  catalog,
		cache:    cacheClient,
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
	}
}

// GetAssignment returns the subject's assignment for the active experiment
// matching (testContext, testType), creating one on first encounter. Every
// failure mode in this path degrades to the default configuration: the
// experiment layer must never break the page it is testing.
func (s *Service) GetAssignment(ctx context.Context, testContext string, testType TestType, subjectKey string) Resolution {
	if subjectKey == "" {
		// No stable key, no assignment. Anonymous visitors see control.
		return s.fallback(testType, ReasonNoSubject)
	}

	now := s.now()

	exp, err := s.findActiveExperiment(ctx, testContext, testType, now)
	if err != nil {
		if errors.Is(err, ErrExperimentNotFound) {
			return s.fallback(testType, ReasonNoExperiment)
		}
		s.log.Error("experiment lookup failed", "context", testContext, "test_type", testType, "error", err)
		return s.fallback(testType, ReasonStoreError)
	}

	// Existing assignment wins unconditionally, even if the definition was
	// edited after it was created.
	if existing, err := s.store.GetAssignment(ctx, subjectKey, exp.ID); err == nil {
		return Resolution{AssignmentID: existing.ID, Variant: existing.Variant, Config: existing.Config}
	} else if !errors.Is(err, ErrAssignmentNotFound) {
		s.log.Error("assignment lookup failed", "experiment", exp.Key, "error", err)
		return s.fallback(testType, ReasonStoreError)
	}

	variant, cfg, err := s.resolver.Resolve(exp, subjectKey, now)
	if err != nil {
		switch {
		case errors.Is(err, ErrExperimentInactive):
			return s.fallback(testType, ReasonInactive)
		case errors.Is(err, ErrUnknownTestType):
			// Configuration-time bug: the definition references a test type
			// nobody registered. Surface it to operators, serve control.
			s.log.Error("experiment references unregistered test type", "experiment", exp.Key, "test_type", exp.TestType)
			return s.fallback(testType, ReasonUnknownTestType)
		default:
			s.log.Error("variant resolution failed", "experiment", exp.Key, "error", err)
			return s.fallback(testType, ReasonStoreError)
		}
	}

	stored, created, err := s.store.CreateAssignment(ctx, &Assignment{
		ID:           uuid.NewString(),
		SubjectKey:   subjectKey,
		ExperimentID: exp.ID,
		Variant:      variant,
		Config:       cfg,
		AssignedAt:   now,
	})
	if err != nil {
		s.log.Error("assignment creation failed", "experiment", exp.Key, "error", err)
		return s.fallback(testType, ReasonStoreError)
	}

	return Resolution{AssignmentID: stored.ID, Variant: stored.Variant, Config: stored.Config, Created: created}
}

// RecordConversion attributes a user action to an assignment. Repeats are
// recorded verbatim; there is no deduplication.
func (s *Service) RecordConversion(ctx context.Context, assignmentID string, ctype ConversionType, resourceID string) error {
	if !ValidConversionType(ctype) {
		return fmt.Errorf("invalid conversion type: %s", ctype)
	}

	return s.store.CreateConversion(ctx, &ConversionEvent{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		Type:         ctype,
		ResourceID:   resourceID,
		OccurredAt:   s.now(),
	})
}

// ComputeResults aggregates assignments and conversions per variant. The
// output is descriptive only; winner selection is PickWinner's job.
func (s *Service) ComputeResults(ctx context.Context, experimentKey string) (*ExperimentResults, error) {
	exp, err := s.store.GetExperiment(ctx, experimentKey)
	if err != nil {
		return nil, err
	}

	assignments, err := s.store.ListAssignments(ctx, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	conversions, err := s.store.ListConversions(ctx, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}

	results := &ExperimentResults{
		ExperimentKey:  exp.Key,
		ExperimentName: exp.Name,
		VariantA:       VariantResult{Variant: VariantA, Conversions: make(map[ConversionType]int)},
		VariantB:       VariantResult{Variant: VariantB, Conversions: make(map[ConversionType]int)},
	}

	variantOf := make(map[string]Variant, len(assignments))
	for _, a := range assignments {
		variantOf[a.ID] = a.Variant
		if a.Variant == VariantA {
			results.VariantA.Assignments++
		} else {
			results.VariantB.Assignments++
		}
	}
	results.TotalAssignments = len(assignments)

	converted := make(map[string]bool)
	for _, ev := range conversions {
		v, ok := variantOf[ev.AssignmentID]
		if !ok {
			continue
		}
		if v == VariantA {
			results.VariantA.Conversions[ev.Type]++
		} else {
			results.VariantB.Conversions[ev.Type]++
		}
		if !converted[ev.AssignmentID] {
			converted[ev.AssignmentID] = true
			if v == VariantA {
				results.VariantA.Converters++
			} else {
				results.VariantB.Converters++
			}
		}
	}

	if results.TotalAssignments > 0 {
		total := float64(results.TotalAssignments)
		results.VariantA.Percentage = float64(results.VariantA.Assignments) / total * 100
		results.VariantB.Percentage = float64(results.VariantB.Assignments) / total * 100
	}
	if results.VariantA.Assignments > 0 {
		results.VariantA.ConversionRate = float64(results.VariantA.Converters) / float64(results.VariantA.Assignments) * 100
	}
	if results.VariantB.Assignments > 0 {
		results.VariantB.ConversionRate = float64(results.VariantB.Converters) / float64(results.VariantB.Assignments) * 100
	}

	results.Provisional = results.TotalAssignments <= MinSampleSize

	return results, nil
}

// CreateExperiment validates and persists a new definition.
func (s *Service) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	if exp.TrafficAllocation < 0 || exp.TrafficAllocation > 100 {
		return nil, fmt.Errorf("traffic allocation must be between 0 and 100, got %d", exp.TrafficAllocation)
	}
	if !ValidTestType(exp.TestType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTestType, exp.TestType)
	}

	exp.ID = uuid.NewString()
	exp.CreatedAt = s.now()
	if exp.StartDate.IsZero() {
		exp.StartDate = exp.CreatedAt
	}

	if err := s.store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	s.invalidateDefinition(ctx, exp.TestContext, exp.TestType)
	return exp, nil
}

// ListExperiments returns all definitions for the admin surface.
func (s *Service) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.store.ListExperiments(ctx)
}

// SetActive toggles an experiment. Already-persisted assignments keep their
// snapshots; only future first-time resolutions are affected.
func (s *Service) SetActive(ctx context.Context, key string, active bool) error {
	exp, err := s.store.GetExperiment(ctx, key)
	if err != nil {
		return err
	}

	if err := s.store.SetActive(ctx, key, active); err != nil {
		return err
	}

	s.invalidateDefinition(ctx, exp.TestContext, exp.TestType)
	return nil
}

// InvalidateDefinition drops the cached active-experiment lookup for a page
// context and test type. Used by the expiry job after it disables experiments.
func (s *Service) InvalidateDefinition(ctx context.Context, testContext string, testType TestType) {
	s.invalidateDefinition(ctx, testContext, testType)
}

func (s *Service) fallback(tt TestType, reason string) Resolution {
	return Resolution{Config: s.catalog.Default(tt), Default: true, Reason: reason}
}

func definitionCacheKey(testContext string, testType TestType) string {
	return fmt.Sprintf("experiment:active:%s:%s", testContext, testType)
}

// findActiveExperiment consults the redis definition cache before the store.
// Cache failures are treated as misses; the store stays authoritative.
func (s *Service) findActiveExperiment(ctx context.Context, testContext string, testType TestType, now time.Time) (*Experiment, error) {
	key := definitionCacheKey(testContext, testType)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var exp Experiment
			if err := json.Unmarshal([]byte(raw), &exp); err == nil {
				// A stale entry may outlive deactivation by up to the TTL;
				// the resolver re-checks the active flag and window.
				if exp.Active && exp.InWindow(now) {
					return &exp, nil
				}
			}
		}
	}

	exp, err := s.store.FindActiveExperiment(ctx, testContext, testType, now)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(exp); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
				s.log.Warn("failed to cache experiment definition", "key", key, "error", err)
			}
		}
	}

	return exp, nil
}

func (s *Service) invalidateDefinition(ctx context.Context, testContext string, testType TestType) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, definitionCacheKey(testContext, testType)); err != nil {
		s.log.Warn("failed to invalidate experiment definition cache", "context", testContext, "error", err)
	}
}
