package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/predictfi/predict-go/internal/domain"
)

// TradeEventPruner deletes aged trade events after they have been archived.
type TradeEventPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves aged trade events from the database to S3 cold storage and
// prunes them from the primary table once the upload succeeds.
type Archiver struct {
	blobArchiver  domain.Archiver
	pruner        TradeEventPruner
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. pruner may be nil, in which case
// archived rows are kept in the database.
func NewArchiver(blobArchiver domain.Archiver, pruner TradeEventPruner, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		pruner:        pruner,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive run. It calculates the cutoff time based on
// retentionDays, uploads trade events older than the cutoff, and deletes them
// only after the upload succeeded.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.blobArchiver.ArchiveTradeEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trade events before %v: %w", cutoff, err)
	}

	var deleted int64
	if archived > 0 && a.pruner != nil {
		deleted, err = a.pruner.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pruning trade events before %v: %w", cutoff, err)
		}
	}

	a.logger.Info("archive run complete",
		slog.Int64("archived", archived),
		slog.Int64("deleted", deleted),
	)
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 * * *" runs every day at 3:00 AM.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is one schedule field. A nil set means "*".
type cronField map[int]bool

func (f cronField) matches(v int) bool {
	return f == nil || f[v]
}

// parseCronField parses "0", "*" or a comma list like "0,30".
func parseCronField(s string) (cronField, error) {
	if s == "*" {
		return nil, nil
	}
	set := make(cronField)
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid cron field value %q: %w", part, err)
		}
		set[v] = true
	}
	return set, nil
}

// parsedCron is a 5-field schedule: minute, hour, day of month, month,
// day of week. All fields are ANDed.
type parsedCron [5]cronField

var cronFieldNames = [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

// matchesTime reports whether t satisfies every field.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c[0].matches(t.Minute()) &&
		c[1].matches(t.Hour()) &&
		c[2].matches(t.Day()) &&
		c[3].matches(int(t.Month())) &&
		c[4].matches(int(t.Weekday()))
}

// parseCron parses a standard 5-field cron expression.
func parseCron(expr string) (parsedCron, error) {
	var c parsedCron

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return c, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	for i, raw := range fields {
		parsed, err := parseCronField(raw)
		if err != nil {
			return c, fmt.Errorf("parsing %s field: %w", cronFieldNames[i], err)
		}
		c[i] = parsed
	}
	return c, nil
}

// nextCronTime returns the first minute boundary strictly after 'after' that
// matches the expression, scanning at most one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	limit := after.Add(366 * 24 * time.Hour)
	for t := after.Truncate(time.Minute).Add(time.Minute); t.Before(limit); t = t.Add(time.Minute) {
		if cron.matchesTime(t) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
