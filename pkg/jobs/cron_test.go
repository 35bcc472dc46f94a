package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/growthlab/pkg/experiment"
	"github.com/jordanlanch/growthlab/pkg/experiment/memory"
	"github.com/jordanlanch/growthlab/pkg/testdata"
)

func TestDeactivateExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := experiment.NewService(store, experiment.DefaultCatalog(), nil, 0, nil)
	cm := NewCronManager(store, service, nil)

	expired := testdata.Experiment("ended-last-week", experiment.TestTypeLayout, 50)
	past := time.Now().Add(-7 * 24 * time.Hour)
	expired.EndDate = &past
	expired.StartDate = past.Add(-30 * 24 * time.Hour)
	_, err := service.CreateExperiment(ctx, expired)
	require.NoError(t, err)

	_, err = service.CreateExperiment(ctx, testdata.Experiment("still-running", experiment.TestTypeThumbnail, 50))
	require.NoError(t, err)

	require.NoError(t, cm.DeactivateExpired(ctx))

	ended, err := store.GetExperiment(ctx, "ended-last-week")
	require.NoError(t, err)
	assert.False(t, ended.Active)

	running, err := store.GetExperiment(ctx, "still-running")
	require.NoError(t, err)
	assert.True(t, running.Active)
}
