// Package scheduler runs the worker's periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// jobTimeout bounds a single job run.
const jobTimeout = 5 * time.Minute

// Job is one unit of scheduled work. It returns how many rows it touched.
type Job func(ctx context.Context) (int64, error)

// Scheduler wraps a seconds-precision UTC cron.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	jobs []namedJob
	log  zerolog.Logger
}

type namedJob struct {
	name string
	job  Job
}

// New returns a Scheduler. Jobs run with a context derived from ctx; cancelling it aborts
// in-flight runs.
func New(ctx context.Context, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx: ctx,
		log: log.With().Str("component", "scheduler").Logger(),
	}
}

// Add registers job under name on spec (six fields, seconds first).
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs = append(s.jobs, namedJob{name: name, job: job})
	s.log.Info().Str("job", name).Str("schedule", spec).Msg("job registered")
	return nil
}

// RunAll runs every registered job once, in registration order, outside the schedule.
func (s *Scheduler) RunAll() {
	for _, j := range s.jobs {
		s.run(j.name, j.job)
	}
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()
	start := time.Now()
	n, err := job(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", name).Int64("affected", n).Dur("took", time.Since(start)).Msg("job finished")
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
