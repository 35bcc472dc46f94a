package jobs

import (
	"context"
	"time"

	"github.com/jordanlanch/growthlab/pkg/experiment"
	"github.com/jordanlanch/growthlab/pkg/logger"
	"github.com/robfig/cron/v3"
)

// CronManager manages scheduled maintenance jobs
type CronManager struct {
	cron    *cron.Cron
	store   experiment.Store
	service *experiment.Service
	log     logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(store experiment.Store, service *experiment.Service, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Default()
	}

	return &CronManager{
		cron:    cron.New(),
		store:   store,
		service: service,
		log:     log,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	// Hourly: flip the active flag off for experiments past their end date.
	// Assignment-time window checks remain authoritative; this just keeps the
	// definitions table honest and the admin list readable.
	_, err := cm.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := cm.DeactivateExpired(ctx); err != nil {
			cm.log.Error("expiry job failed", "error", err)
		}
	})

	return err
}

// DeactivateExpired disables experiments whose end date has passed and drops
// their cached definitions so the assignment path stops seeing them.
func (cm *CronManager) DeactivateExpired(ctx context.Context) error {
	keys, err := cm.store.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, key := range keys {
		exp, err := cm.store.GetExperiment(ctx, key)
		if err != nil {
			cm.log.Warn("deactivated experiment vanished before cache invalidation", "key", key, "error", err)
			continue
		}
		cm.service.InvalidateDefinition(ctx, exp.TestContext, exp.TestType)
		cm.log.Info("experiment deactivated past end date", "key", key)
	}

	return nil
}

// Start begins running scheduled jobs
func (cm *CronManager) Start() {
	cm.cron.Start()
	cm.log.Info("cron jobs started")
}

// Stop gracefully stops scheduled jobs
func (cm *CronManager) Stop() {
	cm.cron.Stop()
	cm.log.Info("cron jobs stopped")
}
