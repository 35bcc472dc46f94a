// Package postgres implements the experiment Store on Postgres via pgx.
//
// First-assignment creation leans on the unique index over
// (subject_key, experiment_id): the insert either wins or fails with a unique
// violation, in which case the winner's row is re-read and returned. No
// application-level locking; request handlers may run in parallel processes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"

	"github.com/jordanlanch/growthlab/pkg/database"
	"github.com/jordanlanch/growthlab/pkg/experiment"
)

var _ experiment.Store = (*Store)(nil)

// Store persists experiments, assignments and conversions in Postgres.
type Store struct {
	db *database.Client
}

// NewStore creates a Postgres-backed experiment store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	pgErr := new(pgconn.PgError)
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr := new(pgconn.PgError)
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

const experimentColumns = `id, key, name, description, test_type, test_context, traffic_allocation, active, start_date, end_date, created_at`

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(row scannable) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	var endDate sql.NullTime
	err := row.Scan(
		&exp.ID, &exp.Key, &exp.Name, &exp.Description, &exp.TestType, &exp.TestContext,
		&exp.TrafficAllocation, &exp.Active, &exp.StartDate, &endDate, &exp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		t := endDate.Time
		exp.EndDate = &t
	}
	return &exp, nil
}

func (s *Store) CreateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO experiments (id, key, name, description, test_type, test_context, traffic_allocation, active, start_date, end_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		exp.ID, exp.Key, exp.Name, exp.Description, exp.TestType, exp.TestContext,
		exp.TrafficAllocation, exp.Active, exp.StartDate, exp.EndDate, exp.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", experiment.ErrExperimentExists, exp.Key)
		}
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

func (s *Store) GetExperiment(ctx context.Context, key string) (*experiment.Experiment, error) {
	exp, err := scanExperiment(s.db.Pool.QueryRow(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", experiment.ErrExperimentNotFound, key)
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *Store) FindActiveExperiment(ctx context.Context, testContext string, testType experiment.TestType, now time.Time) (*experiment.Experiment, error) {
	exp, err := scanExperiment(s.db.Pool.QueryRow(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE test_context = $1 AND test_type = $2 AND active
		   AND start_date <= $3 AND (end_date IS NULL OR end_date >= $3)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		testContext, testType, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: context=%s type=%s", experiment.ErrExperimentNotFound, testContext, testType)
		}
		return nil, fmt.Errorf("failed to find active experiment: %w", err)
	}
	return exp, nil
}

func (s *Store) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []*experiment.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

func (s *Store) SetActive(ctx context.Context, key string, active bool) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE experiments SET active = $2 WHERE key = $1`, key, active)
	if err != nil {
		return fmt.Errorf("failed to set experiment active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", experiment.ErrExperimentNotFound, key)
	}
	return nil
}

func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`UPDATE experiments SET active = FALSE
		 WHERE active AND end_date IS NOT NULL AND end_date < $1
		 RETURNING key`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate expired experiments: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

const assignmentColumns = `id, subject_key, experiment_id, variant, config, assigned_at`

func scanAssignment(row scannable) (*experiment.Assignment, error) {
	var a experiment.Assignment
	var rawConfig []byte
	if err := row.Scan(&a.ID, &a.SubjectKey, &a.ExperimentID, &a.Variant, &rawConfig, &a.AssignedAt); err != nil {
		return nil, err
	}
	cfg, err := experiment.DecodeConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode assignment config: %w", err)
	}
	a.Config = cfg
	return &a, nil
}

func (s *Store) GetAssignment(ctx context.Context, subjectKey, experimentID string) (*experiment.Assignment, error) {
	a, err := scanAssignment(s.db.Pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM experiment_assignments
		 WHERE subject_key = $1 AND experiment_id = $2`,
		subjectKey, experimentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, experiment.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

func (s *Store) GetAssignmentByID(ctx context.Context, id string) (*experiment.Assignment, error) {
	a, err := scanAssignment(s.db.Pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM experiment_assignments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, experiment.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *experiment.Assignment) (*experiment.Assignment, bool, error) {
	rawConfig, err := experiment.EncodeConfig(a.Config)
	if err != nil {
		return nil, false, err
	}

	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO experiment_assignments (id, subject_key, experiment_id, variant, config, assigned_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SubjectKey, a.ExperimentID, a.Variant, rawConfig, a.AssignedAt,
	)
	if err == nil {
		return a, true, nil
	}

	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("failed to create assignment: %w", err)
	}

	// Lost the race: another request persisted this (subject, experiment)
	// first. Return the winner's row.
	existing, err := s.GetAssignment(ctx, a.SubjectKey, a.ExperimentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read assignment after conflict: %w", err)
	}
	return existing, false, nil
}

func (s *Store) ListAssignments(ctx context.Context, experimentID string) ([]*experiment.Assignment, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM experiment_assignments
		 WHERE experiment_id = $1 ORDER BY assigned_at`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []*experiment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateConversion(ctx context.Context, ev *experiment.ConversionEvent) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO conversion_events (id, assignment_id, conversion_type, resource_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.AssignmentID, ev.Type, ev.ResourceID, ev.OccurredAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", experiment.ErrAssignmentNotFound, ev.AssignmentID)
		}
		return fmt.Errorf("failed to create conversion: %w", err)
	}
	return nil
}

func (s *Store) ListConversions(ctx context.Context, experimentID string) ([]*experiment.ConversionEvent, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT c.id, c.assignment_id, c.conversion_type, c.resource_id, c.occurred_at
		 FROM conversion_events c
		 JOIN experiment_assignments a ON a.id = c.assignment_id
		 WHERE a.experiment_id = $1
		 ORDER BY c.occurred_at`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var out []*experiment.ConversionEvent
	for rows.Next() {
		var ev experiment.ConversionEvent
		if err := rows.Scan(&ev.ID, &ev.AssignmentID, &ev.Type, &ev.ResourceID, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
