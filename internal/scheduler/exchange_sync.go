package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/asanchez/btcfolio/internal/sync"
)

// ExchangeSyncJob periodically downloads the account's exchange state.
// The job registry guarantees at most one run in flight, so overlapping
// schedule ticks and manual triggers degrade to a skip.
type ExchangeSyncJob struct {
	log      zerolog.Logger
	service  *sync.Service
	registry *sync.Registry
	timeout  time.Duration
}

// NewExchangeSyncJob creates the periodic sync job.
func NewExchangeSyncJob(service *sync.Service, registry *sync.Registry, log zerolog.Logger) *ExchangeSyncJob {
	return &ExchangeSyncJob{
		log:      log.With().Str("job", "exchange_sync").Logger(),
		service:  service,
		registry: registry,
		timeout:  30 * time.Minute,
	}
}

// Name returns the job name.
func (j *ExchangeSyncJob) Name() string {
	return "exchange_sync"
}

// Run executes one sync if none is in flight. A missing-credentials
// account is not an error; the job waits for the user to configure keys.
func (j *ExchangeSyncJob) Run() error {
	job, ok := j.registry.TryStart()
	if !ok {
		j.log.Warn().Msg("Sync already running, skipping cycle")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	stats, err := j.service.SyncAll(ctx)
	j.registry.Finish(job, stats, err != nil || stats.HasErrors())

	if errors.Is(err, sync.ErrNoCredentials) {
		j.log.Info().Msg("No API credentials configured, skipping sync")
		return nil
	}
	return err
}
