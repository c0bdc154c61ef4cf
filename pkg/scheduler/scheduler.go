package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for scheduled jobs.
var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_job_runs_total",
		Help: "Total job executions by job name and outcome",
	}, []string{"job", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geosync_job_duration_seconds",
		Help:    "Job execution duration in seconds by job name",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})

	jobSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_job_skipped_total",
		Help: "Due triggers dropped because the job was still running",
	}, []string{"job"})
)

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is how often due times are checked.
	TickInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval: 1 * time.Second,
	}
}

// managedJob pairs a job with its mutable scheduling state.
type managedJob struct {
	job   Job
	state JobState
}

// Scheduler owns a set of recurring jobs and dispatches them from a
// single timer-driven loop. Job executions run in their own goroutines,
// so different jobs may overlap each other, but a job never overlaps
// itself: a due trigger while the job is still running is dropped.
type Scheduler struct {
	config Config
	clock  func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    []*managedJob
	started bool

	// wg tracks in-flight job executions for drain on shutdown.
	wg sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Scheduler{
		config: cfg,
		clock:  time.Now,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds a job. Must be called before Run.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Trigger == nil {
		return fmt.Errorf("job %s: trigger is required", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run function is required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("job %s: scheduler already running", job.Name)
	}
	for _, mj := range s.jobs {
		if mj.job.Name == job.Name {
			return fmt.Errorf("job %s: already registered", job.Name)
		}
	}

	s.jobs = append(s.jobs, &managedJob{
		job: job,
		state: JobState{
			Name:        job.Name,
			TriggerKind: job.Trigger.Kind(),
		},
	})
	return nil
}

// Run starts the scheduling loop and blocks until ctx is cancelled.
// In-flight job executions are drained before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.clock()
	s.prime(start)

	s.logger.Info().
		Int("jobs", len(s.jobs)).
		Dur("tick", s.config.TickInterval).
		Msg("Scheduler started")

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopping, draining jobs")
			s.wg.Wait()
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.processTick(ctx, s.clock())
		}
	}
}

// prime initializes each job's first due time.
func (s *Scheduler) prime(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	for _, mj := range s.jobs {
		mj.state.NextDue = mj.job.Trigger.First(start)
	}
}

// processTick dispatches every job that is due and not already running.
func (s *Scheduler) processTick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mj := range s.jobs {
		if mj.state.NextDue.After(now) {
			continue
		}

		if mj.state.Running {
			// Drop, don't queue: the next due time advances past now
			// so skipped fires never pile up.
			jobSkippedTotal.WithLabelValues(mj.job.Name).Inc()
			s.logger.Warn().
				Str("job", mj.job.Name).
				Time("due", mj.state.NextDue).
				Msg("Job still running, dropping trigger")
			mj.state.NextDue = mj.job.Trigger.Next(mj.state.NextDue, now)
			continue
		}

		mj.state.Running = true
		mj.state.LastRun = now
		mj.state.NextDue = mj.job.Trigger.Next(mj.state.NextDue, now)

		s.wg.Add(1)
		go s.execute(ctx, mj, now)
	}
}

// execute runs one job to completion and records its outcome.
func (s *Scheduler) execute(ctx context.Context, mj *managedJob, firedAt time.Time) {
	defer s.wg.Done()

	name := mj.job.Name
	s.logger.Info().
		Str("job", name).
		Time("fired_at", firedAt).
		Msg("Job started")

	start := time.Now()
	err := s.runSafely(ctx, mj.job)
	elapsed := time.Since(start)
	jobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	s.mu.Lock()
	mj.state.Running = false
	if err != nil {
		mj.state.LastOutcome = OutcomeFailure
		mj.state.LastError = err.Error()
	} else {
		mj.state.LastOutcome = OutcomeSuccess
		mj.state.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		jobRunsTotal.WithLabelValues(name, "failure").Inc()
		s.logger.Error().
			Err(err).
			Str("job", name).
			Dur("duration", elapsed).
			Msg("Job failed")
		return
	}

	jobRunsTotal.WithLabelValues(name, "success").Inc()
	s.logger.Info().
		Str("job", name).
		Dur("duration", elapsed).
		Msg("Job complete")
}

// runSafely invokes the job and converts a panic into a JobError so a
// broken job cannot take the process down.
func (s *Scheduler) runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &JobError{Job: job.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if runErr := job.Run(ctx); runErr != nil {
		return &JobError{Job: job.Name, Err: runErr}
	}
	return nil
}

// Snapshot returns a copy of all job states.
func (s *Scheduler) Snapshot() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]JobState, len(s.jobs))
	for i, mj := range s.jobs {
		states[i] = mj.state
	}
	return states
}
