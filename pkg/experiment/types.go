package experiment

import (
	"errors"
	"time"
)

var (
	// ErrExperimentNotFound is returned when an experiment doesn't exist
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrExperimentInactive is returned when an experiment is disabled or outside its active window
	ErrExperimentInactive = errors.New("experiment is not active")
	// ErrUnknownTestType is returned when an experiment references a test type with no catalog entry
	ErrUnknownTestType = errors.New("unknown test type")
	// ErrAssignmentNotFound is returned when a conversion references a nonexistent assignment
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrExperimentExists is returned when creating an experiment with a key already in use
	ErrExperimentExists = errors.New("experiment key already exists")
)

// Variant identifies one of the two experiment arms.
type Variant string

const (
	// VariantA is the control arm
	VariantA Variant = "A"
	// VariantB is the treatment arm
	VariantB Variant = "B"
)

// ConversionType categorizes a recorded user action
type ConversionType string

const (
	ConversionClick   ConversionType = "click"
	ConversionRating  ConversionType = "rating"
	ConversionComment ConversionType = "comment"
)

// ValidConversionType reports whether t is one of the known conversion types.
func ValidConversionType(t ConversionType) bool {
	switch t {
	case ConversionClick, ConversionRating, ConversionComment:
		return true
	}
	return false
}

// Experiment is an A/B test definition. It is created and edited by operators
// and read-only to the assignment path.
type Experiment struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	TestType    TestType   `json:"test_type"`
	TestContext string     `json:"test_context"`
	// TrafficAllocation is the percentage of subjects directed to variant A (0-100).
	TrafficAllocation int        `json:"traffic_allocation"`
	Active            bool       `json:"active"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// InWindow reports whether now falls inside the experiment's active window.
func (e *Experiment) InWindow(now time.Time) bool {
	if now.Before(e.StartDate) {
		return false
	}
	if e.EndDate != nil && now.After(*e.EndDate) {
		return false
	}
	return true
}

// Assignment pins a subject to a variant of an experiment. At most one exists
// per (subject, experiment) and it is never rewritten: the Config snapshot keeps
// the subject's experience stable even if the definition is edited afterwards.
type Assignment struct {
	ID           string        `json:"id"`
	SubjectKey   string        `json:"subject_key"`
	ExperimentID string        `json:"experiment_id"`
	Variant      Variant       `json:"variant"`
	Config       VariantConfig `json:"config"`
	AssignedAt   time.Time     `json:"assigned_at"`
}

// ConversionEvent records a single user action attributed to an assignment.
// Repeat conversions are kept as-is; the product treats repeat engagement as
// additional signal, not noise.
type ConversionEvent struct {
	ID           string         `json:"id"`
	AssignmentID string         `json:"assignment_id"`
	Type         ConversionType `json:"conversion_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// VariantResult holds the aggregate for a single variant
type VariantResult struct {
	Variant     Variant                `json:"variant"`
	Assignments int                    `json:"assignments"`
	// Percentage is this variant's share of total assignments (0-100).
	Percentage float64 `json:"percentage"`
	// Converters counts distinct assignments with at least one conversion.
	Converters     int                    `json:"converters"`
	ConversionRate float64                `json:"conversion_rate"`
	Conversions    map[ConversionType]int `json:"conversions"`
}

// ExperimentResults holds complete descriptive statistics for an experiment.
// It is computed fresh on every call and never cached.
type ExperimentResults struct {
	ExperimentKey    string        `json:"experiment_key"`
	ExperimentName   string        `json:"experiment_name"`
	TotalAssignments int           `json:"total_assignments"`
	VariantA         VariantResult `json:"variant_a"`
	VariantB         VariantResult `json:"variant_b"`
	// Provisional is set while the sample is below the reporting threshold;
	// callers should not declare a winner from provisional results.
	Provisional bool `json:"provisional"`
}
