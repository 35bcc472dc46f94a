package database

import (
	"context"
	"fmt"
)

// The schema is small enough to keep in-repo as idempotent DDL. The unique
// index on (subject_key, experiment_id) is the one piece of concurrency
// control the engine relies on: first assignment creation is an atomic
// check-and-insert delegated to Postgres, never an application-level lock.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		id UUID PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		test_type TEXT NOT NULL,
		test_context TEXT NOT NULL,
		traffic_allocation INT NOT NULL CHECK (traffic_allocation BETWEEN 0 AND 100),
		active BOOLEAN NOT NULL DEFAULT FALSE,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_experiments_context_type
		ON experiments (test_context, test_type) WHERE active`,
	`CREATE TABLE IF NOT EXISTS experiment_assignments (
		id UUID PRIMARY KEY,
		subject_key TEXT NOT NULL,
		experiment_id UUID NOT NULL REFERENCES experiments (id),
		variant TEXT NOT NULL,
		config JSONB NOT NULL,
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_assignment_subject_experiment UNIQUE (subject_key, experiment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversion_events (
		id UUID PRIMARY KEY,
		assignment_id UUID NOT NULL REFERENCES experiment_assignments (id),
		conversion_type TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversion_events_assignment
		ON conversion_events (assignment_id)`,
}

// Migrate applies the schema. Safe to run on every startup.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := c.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
