package sessionkeys

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/AvaProtocol/ap-wallet/pkg/logger"
)

// DefaultRetention is how long an expired session stays in the store
// before the janitor reclaims it.
const DefaultRetention = 30 * 24 * time.Hour

// Janitor periodically purges long-expired sessions. Expiry itself is
// enforced at validation time; the janitor only reclaims storage for
// sessions nobody can use again, after the retention window has passed.
type Janitor struct {
	manager   *Manager
	scheduler gocron.Scheduler
	retention time.Duration
	logger    logger.Logger
}

// NewJanitor builds a janitor over one manager. retention <= 0 falls back
// to DefaultRetention. log may be nil.
func NewJanitor(manager *Manager, retention time.Duration, log logger.Logger) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Janitor{
		manager:   manager,
		scheduler: scheduler,
		retention: retention,
		logger:    logger.EnsureLogger(log),
	}, nil
}

// Start schedules the purge to run every interval and starts the
// scheduler.
func (j *Janitor) Start(interval time.Duration) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := j.manager.PurgeExpired(j.retention); err != nil {
				j.logger.Error("purging expired sessions", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	j.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for a running purge to finish.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}
