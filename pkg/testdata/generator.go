// Package testdata generates realistic fixtures for tests and local seeding.
package testdata

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/growthlab/pkg/experiment"
)

// SubjectKeys returns n distinct stable subject keys. Seeded so that tests
// exercising bucketing distributions stay reproducible.
func SubjectKeys(n int, seed int64) []string {
	faker := gofakeit.New(seed)
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("user-%s-%d", faker.Username(), i)
	}
	return keys
}

// Experiment returns a plausible active experiment definition. Fields can be
// adjusted by the caller before persisting.
func Experiment(key string, testType experiment.TestType, allocation int) *experiment.Experiment {
	faker := gofakeit.New(0)
	end := time.Now().Add(30 * 24 * time.Hour)
	return &experiment.Experiment{
		Key:               key,
		Name:              faker.Sentence(3),
		Description:       faker.Sentence(8),
		TestType:          testType,
		TestContext:       "skill-page",
		TrafficAllocation: allocation,
		Active:            true,
		StartDate:         time.Now().Add(-time.Hour),
		EndDate:           &end,
	}
}
