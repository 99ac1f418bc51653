package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"clockpoint/internal/config"
	"clockpoint/internal/metrics"
	"clockpoint/internal/models"
)

// Source lists schedules and turns an occurrence into a clock session.
type Source interface {
	ActiveSchedules(ctx context.Context) ([]models.ClockSchedule, error)
	MaterializeSchedule(ctx context.Context, s models.ClockSchedule, start, stop time.Time) (models.ClockSession, error)
}

// Claimer grants an occurrence to exactly one worker.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Scheduler struct {
	cron   *cron.Cron
	source Source
	claims Claimer
	tick   time.Duration
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

func NewScheduler(source Source, claims Claimer, cfg config.SchedulerConfig, log zerolog.Logger) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}

	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{
		cron:   c,
		source: source,
		claims: claims,
		tick:   cfg.Tick,
		loc:    loc,
		now:    time.Now,
		log:    log,
	}, nil
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every "+s.tick.String(), s.run); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the loop and returns a context done once the running tick, if
// any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tick)
	defer cancel()

	started := time.Now()
	n, err := s.Tick(ctx)
	metrics.SchedulerTickDurationSeconds.Observe(time.Since(started).Seconds())
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler tick failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("sessions", n).Msg("scheduled sessions materialized")
	}
}

// Tick materializes every schedule occurrence active now that no other
// worker has claimed. It returns the number of sessions created.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)

	schedules, err := s.source.ActiveSchedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}

	created := 0
	for _, sched := range schedules {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		start, stop, ok := ActiveWindow(sched, now)
		if !ok {
			continue
		}

		key := ClaimKey(sched.ID, start)
		won, err := s.claims.Claim(ctx, key, stop.Sub(now))
		if err != nil {
			s.log.Error().Err(err).Str("schedule_id", sched.ID).Msg("schedule claim failed")
			continue
		}
		if !won {
			continue
		}

		session, err := s.source.MaterializeSchedule(ctx, sched, start, stop)
		if err != nil {
			s.log.Error().Err(err).Str("schedule_id", sched.ID).Msg("materialize schedule failed")
			if rerr := s.claims.Release(context.WithoutCancel(ctx), key); rerr != nil {
				s.log.Warn().Err(rerr).Str("key", key).Msg("release schedule claim failed")
			}
			continue
		}
		created++
		s.log.Debug().
			Str("schedule_id", sched.ID).
			Str("session_id", session.ID).
			Time("start_at", start).
			Time("stop_at", stop).
			Msg("schedule materialized")
	}
	return created, nil
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
