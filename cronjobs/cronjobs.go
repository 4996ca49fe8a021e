package cronjobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const resyncTimeout = 2 * time.Minute

// Loader reloads the canonical snapshot, returning once it is applied.
type Loader interface {
	Load(ctx context.Context) error
}

// Start schedules a snapshot resync on spec (standard 5-field cron syntax or a
// descriptor such as "@every 5m") and starts the scheduler. An empty spec
// disables scheduling and returns a nil *cron.Cron. A run still in progress
// when the next one is due causes that one to be skipped.
func Start(spec string, l Loader, logger *zap.Logger) (*cron.Cron, error) {
	log := logger.Named("cron")
	if spec == "" {
		log.Info("Snapshot resync schedule disabled")
		return nil, nil
	}

	cl := cron.PrintfLogger(zap.NewStdLog(log))
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(spec, func() {
		log.Info("CronJob: Snapshot resync running")
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		if err := l.Load(ctx); err != nil {
			log.Warn("CronJob: Snapshot resync failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling snapshot resync %q: %w", spec, err)
	}

	log.Info("Starting cron jobs", zap.String("resync", spec))
	c.Start()
	return c, nil
}
