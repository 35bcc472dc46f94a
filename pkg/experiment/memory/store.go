// Package memory provides an in-memory implementation of the experiment Store
// used for tests and ephemeral environments. It enforces the same composite
// uniqueness contract as the Postgres store, under a single mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jordanlanch/growthlab/pkg/experiment"
)

var _ experiment.Store = (*Store)(nil)

// Store keeps all experiment state in process memory.
type Store struct {
	mu sync.Mutex

	experiments map[string]*experiment.Experiment // by id
	keyIndex    map[string]string                 // key -> id

	assignments    map[string]*experiment.Assignment // by id
	assignmentKeys map[string]string                 // subjectKey+"\x00"+experimentID -> assignment id

	conversions []*experiment.ConversionEvent
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		experiments:    make(map[string]*experiment.Experiment),
		keyIndex:       make(map[string]string),
		assignments:    make(map[string]*experiment.Assignment),
		assignmentKeys: make(map[string]string),
	}
}

func compositeKey(subjectKey, experimentID string) string {
	return subjectKey + "\x00" + experimentID
}

func (s *Store) CreateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keyIndex[exp.Key]; exists {
		return fmt.Errorf("%w: %s", experiment.ErrExperimentExists, exp.Key)
	}

	cp := *exp
	s.experiments[cp.ID] = &cp
	s.keyIndex[cp.Key] = cp.ID
	return nil
}

func (s *Store) GetExperiment(ctx context.Context, key string) (*experiment.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.keyIndex[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", experiment.ErrExperimentNotFound, key)
	}
	cp := *s.experiments[id]
	return &cp, nil
}

func (s *Store) FindActiveExperiment(ctx context.Context, testContext string, testType experiment.TestType, now time.Time) (*experiment.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, exp := range s.experiments {
		if exp.TestContext == testContext && exp.TestType == testType && exp.Active && exp.InWindow(now) {
			cp := *exp
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: context=%s type=%s", experiment.ErrExperimentNotFound, testContext, testType)
}

func (s *Store) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*experiment.Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		cp := *exp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetActive(ctx context.Context, key string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.keyIndex[key]
	if !ok {
		return fmt.Errorf("%w: %s", experiment.ErrExperimentNotFound, key)
	}
	s.experiments[id].Active = active
	return nil
}

func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, exp := range s.experiments {
		if exp.Active && exp.EndDate != nil && now.After(*exp.EndDate) {
			exp.Active = false
			keys = append(keys, exp.Key)
		}
	}
	return keys, nil
}

func (s *Store) GetAssignment(ctx context.Context, subjectKey, experimentID string) (*experiment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.assignmentKeys[compositeKey(subjectKey, experimentID)]
	if !ok {
		return nil, experiment.ErrAssignmentNotFound
	}
	cp := *s.assignments[id]
	return &cp, nil
}

func (s *Store) GetAssignmentByID(ctx context.Context, id string) (*experiment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return nil, experiment.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

// CreateAssignment is the atomic check-and-insert. Holding the mutex across
// the lookup and the insert gives the same at-most-one guarantee the unique
// index gives the Postgres store.
func (s *Store) CreateAssignment(ctx context.Context, a *experiment.Assignment) (*experiment.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := compositeKey(a.SubjectKey, a.ExperimentID)
	if existingID, ok := s.assignmentKeys[key]; ok {
		cp := *s.assignments[existingID]
		return &cp, false, nil
	}

	cp := *a
	s.assignments[cp.ID] = &cp
	s.assignmentKeys[key] = cp.ID

	out := cp
	return &out, true, nil
}

func (s *Store) ListAssignments(ctx context.Context, experimentID string) ([]*experiment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*experiment.Assignment
	for _, a := range s.assignments {
		if a.ExperimentID == experimentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

func (s *Store) CreateConversion(ctx context.Context, ev *experiment.ConversionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[ev.AssignmentID]; !ok {
		return fmt.Errorf("%w: %s", experiment.ErrAssignmentNotFound, ev.AssignmentID)
	}

	cp := *ev
	s.conversions = append(s.conversions, &cp)
	return nil
}

func (s *Store) ListConversions(ctx context.Context, experimentID string) ([]*experiment.ConversionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAssignment := make(map[string]bool)
	for _, a := range s.assignments {
		if a.ExperimentID == experimentID {
			byAssignment[a.ID] = true
		}
	}

	var out []*experiment.ConversionEvent
	for _, ev := range s.conversions {
		if byAssignment[ev.AssignmentID] {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}
