package updater

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers sync cycles on a fixed interval and/or at a fixed time
// of day. Triggers go through TryRunOnce, so a tick that lands while a cycle
// is still running is dropped, never queued behind it.
type Scheduler struct {
	c   *cron.Cron
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type SchedulerOptions struct {
	Updater *Updater
	Every   time.Duration // 0 disables the interval entry
	DailyAt string        // "HH:MM", empty disables the daily entry
	Logger  zerolog.Logger
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Updater == nil {
		return nil, fmt.Errorf("updater is required")
	}
	if opts.Every <= 0 && opts.DailyAt == "" {
		return nil, fmt.Errorf("at least one of Every or DailyAt is required")
	}

	s := &Scheduler{
		c:   cron.New(),
		log: opts.Logger,
	}
	job := func() {
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if rep, ok := opts.Updater.TryRunOnce(ctx); ok && !rep.Success {
			s.log.Warn().Str("error", rep.Error).Msg("scheduled cycle failed")
		}
	}

	if opts.Every > 0 {
		spec := fmt.Sprintf("@every %s", opts.Every)
		if _, err := s.c.AddFunc(spec, job); err != nil {
			return nil, fmt.Errorf("interval schedule: %w", err)
		}
	}
	if opts.DailyAt != "" {
		spec, err := dailySpec(opts.DailyAt)
		if err != nil {
			return nil, err
		}
		if _, err := s.c.AddFunc(spec, job); err != nil {
			return nil, fmt.Errorf("daily schedule: %w", err)
		}
	}
	return s, nil
}

// Start begins firing scheduled cycles. Cycles started before ctx is done are
// still finalized; ticks after that observe the cancelled context.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c.Start()
	s.log.Info().Int("entries", len(s.c.Entries())).Msg("scheduler started")
}

// Stop cancels pending triggers and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// Entries reports how many schedule entries are registered.
func (s *Scheduler) Entries() int { return len(s.c.Entries()) }

// dailySpec converts "HH:MM" into a standard 5-field cron expression.
func dailySpec(at string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(at), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("daily time %q: want HH:MM", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("daily time %q: bad hour", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("daily time %q: bad minute", at)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
