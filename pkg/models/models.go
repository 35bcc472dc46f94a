package models

import "time"

// ErrorResponse is the generic error envelope returned by all endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RecordConversionRequest reports a user action against an assignment
type RecordConversionRequest struct {
	AssignmentID   string `json:"assignment_id" validate:"required,uuid4"`
	ConversionType string `json:"conversion_type" validate:"required,oneof=click rating comment"`
	ResourceID     string `json:"resource_id,omitempty" validate:"omitempty,max=255"`
}

// CreateExperimentRequest defines a new A/B test
type CreateExperimentRequest struct {
	Key         string `json:"key" validate:"required,min=3,max=100"`
	Name        string `json:"name" validate:"required,min=3,max=200"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1000"`
	TestType    string `json:"test_type" validate:"required,oneof=layout cta_placement thumbnail card_style description_length"`
	TestContext string `json:"test_context" validate:"required,min=1,max=100"`
	// TrafficAllocation is the percentage of subjects directed to variant A.
	TrafficAllocation int        `json:"traffic_allocation" validate:"gte=0,lte=100"`
	Active            bool       `json:"active"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
}

// SetActiveRequest toggles an experiment's active flag
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}
