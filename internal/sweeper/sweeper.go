// Package sweeper periodically removes expired grants.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSpec     = "0 0 * * *"
	DefaultTimezone = "Asia/Kolkata"

	runTimeout = time.Minute
)

// Target deletes expired grants and reports how many were removed.
type Target interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Cleaner is anything holding ephemeral state worth pruning on the same schedule,
// such as the in-memory limiter.
type Cleaner interface {
	Cleanup() int
}

// Config selects the schedule. Zero values use DefaultSpec and DefaultTimezone.
type Config struct {
	Spec     string
	Timezone string
}

// Sweeper runs the target on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	target   Target
	cleaners []Cleaner
	log      *zap.Logger
}

// New parses the schedule and registers the job. Call Start to begin.
func New(target Target, cfg Config, log *zap.Logger, cleaners ...Cleaner) (*Sweeper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("sweeper timezone %q: %w", cfg.Timezone, err)
	}

	cl := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	s := &Sweeper{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		target:   target,
		cleaners: cleaners,
		log:      log,
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("sweeper spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		// next tick retries
		s.log.Error("scheduled sweep failed", zap.Error(err))
	}
}

// RunOnce sweeps immediately and prunes registered cleaners.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, c := range s.cleaners {
		dropped += c.Cleanup()
	}
	s.log.Info("sweep complete", zap.Int64("grants", n), zap.Int("throttle_buckets", dropped))
	return n, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep, or until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next scheduled run, or the zero time before Start.
func (s *Sweeper) Next() time.Time {
	es := s.cron.Entries()
	if len(es) == 0 {
		return time.Time{}
	}
	return es[0].Next
}
