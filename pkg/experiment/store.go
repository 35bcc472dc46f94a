package experiment

import (
	"context"
	"time"
)

// Store is the persistence boundary for experiments, assignments and
// conversions. Implementations must enforce composite uniqueness on
// (subject key, experiment id); everything else is plain reads and inserts.
type Store interface {
	// CreateExperiment inserts a new definition. Returns ErrExperimentExists
	// when the key is already taken.
	CreateExperiment(ctx context.Context, exp *Experiment) error
	// GetExperiment loads a definition by its key. Returns ErrExperimentNotFound.
	GetExperiment(ctx context.Context, key string) (*Experiment, error)
	// FindActiveExperiment returns the active definition matching a page
	// context and test type whose window contains now, or ErrExperimentNotFound.
	FindActiveExperiment(ctx context.Context, testContext string, testType TestType, now time.Time) (*Experiment, error)
	// ListExperiments returns all definitions ordered by creation time.
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	// SetActive toggles a definition's active flag. Existing assignments are
	// untouched. Returns ErrExperimentNotFound.
	SetActive(ctx context.Context, key string, active bool) error
	// DeactivateExpired disables experiments whose end date has passed and
	// returns the keys it touched.
	DeactivateExpired(ctx context.Context, now time.Time) ([]string, error)

	// GetAssignment loads the assignment for (subjectKey, experimentID), or
	// ErrAssignmentNotFound.
	GetAssignment(ctx context.Context, subjectKey, experimentID string) (*Assignment, error)
	// GetAssignmentByID loads an assignment by id, or ErrAssignmentNotFound.
	GetAssignmentByID(ctx context.Context, id string) (*Assignment, error)
	// CreateAssignment atomically inserts a. If another request won the race
	// for the same (subject, experiment), the persisted winner is returned
	// with created=false and a is discarded.
	CreateAssignment(ctx context.Context, a *Assignment) (stored *Assignment, created bool, err error)
	// ListAssignments returns all assignments for an experiment.
	ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error)

	// CreateConversion inserts a conversion event. Returns
	// ErrAssignmentNotFound when the referenced assignment does not exist.
	CreateConversion(ctx context.Context, ev *ConversionEvent) error
	// ListConversions returns all conversion events recorded against an
	// experiment's assignments.
	ListConversions(ctx context.Context, experimentID string) ([]*ConversionEvent, error)
}
