package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 30 * time.Second

// cronLogger routes cron's own logging into the service logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

// newScheduler registers the presence sweeper and the daily statistics job.
// The caller starts and stops it.
func newScheduler(db *sql.DB, sweepSpec, statsSpec string) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	if _, err := c.AddFunc(sweepSpec, func() { runPresenceSweep(db) }); err != nil {
		return nil, fmt.Errorf("presence sweep schedule %q: %w", sweepSpec, err)
	}
	if _, err := c.AddFunc(statsSpec, func() { runDailyStats(db, time.Now().UTC().AddDate(0, 0, -1)) }); err != nil {
		return nil, fmt.Errorf("stats schedule %q: %w", statsSpec, err)
	}
	return c, nil
}

func runPresenceSweep(db *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := sweepStalePresence(ctx, db, presenceTTL)
	if err != nil {
		logger.Error("presence sweep failed", "err", err)
		return
	}
	if n > 0 {
		logger.Info("presence sweep", "marked_offline", n)
	}
}

func runDailyStats(db *sql.DB, day time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	stat, err := computeDailyStats(ctx, db, day)
	if err != nil {
		logger.Error("daily match statistics failed", "day", day.Format(time.DateOnly), "err", err)
		return
	}
	logger.Info("daily match statistics",
		"day", stat.Date,
		"total_matches", stat.TotalMatches,
		"successful_connections", stat.SuccessfulConnections,
		"average_compatibility_score", stat.AverageCompatibilityScore,
	)
}
