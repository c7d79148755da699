// Package scheduler triggers a job at the top of every hour on the host clock.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lancelop89/shorts-tracker/internal/logger"
)

// Job is the work run on every tick. It receives the context passed to Start.
type Job func(ctx context.Context)

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	location *time.Location
	spec     string
	log      *logger.Logger
	now      func() time.Time
}

// WithLocation evaluates the schedule in loc instead of the host's local zone.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithSpec replaces the hourly schedule.
func WithSpec(spec string) Option {
	return func(o *options) { o.spec = spec }
}

// WithLogger sets the logger for scheduler and cron diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Scheduler runs a Job on a cron schedule. Overlapping ticks are skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	job      Job
	opts     options
	started  atomic.Bool
	ctx      context.Context
}

// New creates a scheduler for job. It does not start it.
func New(job Job, opts ...Option) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("job must not be nil")
	}
	o := options{location: time.Local, spec: HourlySpec, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	schedule, err := ParseSpec(o.spec)
	if err != nil {
		return nil, err
	}

	cl := o.log.Cron()
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		schedule: schedule,
		job:      job,
		opts:     o,
		ctx:      context.Background(),
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	return s, nil
}

func (s *Scheduler) tick() {
	s.opts.log.Info("Scheduled run starting", map[string]string{"spec": s.opts.spec})
	s.job(s.ctx)
}

// Start begins the loop. It returns false if the scheduler was already started.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		s.opts.log.Warning("Scheduler already started", nil, nil)
		return false
	}
	if ctx != nil {
		s.ctx = ctx
	}
	s.cron.Start()
	s.opts.log.Info("Scheduler started", map[string]string{
		"spec":     s.opts.spec,
		"next_run": s.Next().Format(time.RFC3339),
	})
	return true
}

// Started reports whether Start has been called.
func (s *Scheduler) Started() bool {
	return s.started.Load()
}

// Stop halts the loop. The returned context is done once any running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the next fire time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.opts.now().In(s.opts.location))
}
