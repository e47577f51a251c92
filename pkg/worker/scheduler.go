package worker

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

// Scheduler runs periodic maintenance jobs (cache sweeps, retention
// pruning). Jobs get the same wrap-and-log treatment as pool tasks.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a stopped scheduler; call Start after registering
// jobs.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Every registers a job on a cron spec, e.g. "@every 1h" or "0 3 * * *".
func (s *Scheduler) Every(spec, name string, job Task) error {
	_, err := s.cron.AddFunc(spec, func() {
		log := logging.Component("worker")
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("job", name).Msgf("scheduled job panic: %v", r)
			}
		}()
		if err := job(context.Background()); err != nil {
			log.Error().Str("job", name).Err(err).Msg("scheduled job failed")
		}
	})
	return err
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling; running jobs complete.
func (s *Scheduler) Stop() { s.cron.Stop() }
