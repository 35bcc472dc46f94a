package experiment

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Resolver deterministically maps a subject to a variant of an experiment.
// It is a pure function over its inputs: no persistence, no randomness. Using
// a hash instead of a coin flip makes resolution idempotent, so two concurrent
// requests for a never-yet-persisted subject compute the same variant before
// either of them wins the insert.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver over an immutable catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve decides which variant a new assignment for subjectKey should receive
// and returns that variant's configuration.
func (r *Resolver) Resolve(exp *Experiment, subjectKey string, now time.Time) (Variant, VariantConfig, error) {
	if !exp.Active || !exp.InWindow(now) {
		return "", nil, fmt.Errorf("%w: %s", ErrExperimentInactive, exp.Key)
	}

	variant := bucketVariant(subjectKey, exp.Key, exp.TrafficAllocation)

	cfg, err := r.catalog.Config(exp.TestType, variant)
	if err != nil {
		return "", nil, err
	}

	return variant, cfg, nil
}

// bucketVariant hashes (subject, experiment) into a bucket in [0,100) and
// compares it against the traffic allocation. Same inputs, same variant,
// always.
func bucketVariant(subjectKey, experimentKey string, trafficAllocation int) Variant {
	hash := sha256.Sum256([]byte(subjectKey + ":" + experimentKey))
	bucket := binary.BigEndian.Uint64(hash[:8]) % 100

	if bucket < uint64(trafficAllocation) {
		return VariantA
	}
	return VariantB
}
