/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/hamsternav/hamsternav/internal/config"
	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// cronLogger routes robfig/cron's internal logging into zerolog.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// startRefreshSchedule runs a full image refresh on cfg.Refresh.Schedule until
// the returned scheduler is stopped. A run still in progress when the next one
// is due causes that next run to be skipped.
func startRefreshSchedule(ctx context.Context, cfg *config.Config, database *db.DB, fetcher core.MetadataFetcher) (*cron.Cron, error) {
	cl := cronLogger{l: log.With().Str("component", "scheduler").Logger()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	opts := core.RefreshOptions{
		BatchSize:  cfg.Refresh.BatchSize,
		BatchDelay: cfg.Refresh.BatchDelay,
	}
	_, err := c.AddFunc(cfg.Refresh.Schedule, func() {
		log.Info().Str("schedule", cfg.Refresh.Schedule).Msg("Starting scheduled image refresh")
		res, err := core.RunRefresh(ctx, database, fetcher, opts)
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Int("attempted", res.Attempted).
			Int("updated", res.Updated).
			Int("unchanged", res.Unchanged).
			Int("failed", res.Failed).
			Msg("Scheduled image refresh finished")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh.schedule %q: %w", cfg.Refresh.Schedule, err)
	}

	c.Start()
	log.Info().Str("schedule", cfg.Refresh.Schedule).Msg("Refresh scheduler started")
	return c, nil
}
