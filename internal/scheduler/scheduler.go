package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"flairnode-agent/config"
	"flairnode-agent/internal/health"
	"flairnode-agent/internal/logdedup"
	"flairnode-agent/internal/service"
	"flairnode-agent/internal/sysstat"
)

type job struct {
	name     string
	schedule string
	run      func()
}

// NewScheduler registers the agent's periodic jobs. The sync job hands
// each cycle to its own goroutine because the delivery service guards
// itself against overlap; the other jobs are skipped while a previous
// run is still busy.
func NewScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	delivery service.DeliveryService,
	aggregator *health.Aggregator,
	dedup *logdedup.Manager,
	tracker *sysstat.Tracker,
) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.DowOptional | cron.Descriptor)
	logger := cronLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	_, err := c.AddFunc(cfg.Uplink.Schedule, func() {
		go delivery.RunCycle(context.Background())
	})
	if err != nil {
		log.Error().Err(err).Str("schedule", cfg.Uplink.Schedule).Msg("Failed to add cron job")
		return nil, err
	}
	log.Info().Str("schedule", cfg.Uplink.Schedule).Msg("Scheduled uplink sync job")

	for _, j := range []job{
		{"module health scan", cfg.Health.ScanSchedule, aggregator.Scan},
		{"log dedup sweep", cfg.Dedup.SweepSchedule, dedup.Sweep},
		{"system status", cfg.SystemStatus.Schedule, tracker.Publish},
	} {
		wrapped := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(j.run))
		if _, err := c.AddJob(j.schedule, wrapped); err != nil {
			log.Error().Err(err).Str("job", j.name).Str("schedule", j.schedule).Msg("Failed to add cron job")
			return nil, err
		}
		log.Info().Str("job", j.name).Str("schedule", j.schedule).Msg("Scheduled job")
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msg("Starting cron scheduler")
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping cron scheduler...")
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
				log.Info().Msg("Cron scheduler stopped gracefully.")
				return nil
			case <-ctx.Done():
				log.Error().Msg("Context cancelled while waiting for cron scheduler to stop.")
				return ctx.Err()
			}
		},
	})

	return c, nil
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
