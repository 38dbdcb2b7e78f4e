package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages all pipeline goroutines: one index loop per configured
// chain plus the cold-storage archiver.
type Orchestrator struct {
	indexers     []*Indexer
	archiver     *Archiver
	pollInterval time.Duration
	archiveCron  string
	logger       *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. archiver may be nil when
// archiving is not configured.
func NewOrchestrator(
	indexers []*Indexer,
	archiver *Archiver,
	pollInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		indexers:     indexers,
		archiver:     archiver,
		pollInterval: pollInterval,
		archiveCron:  archiveCron,
		logger:       logger,
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Int("chains", len(o.indexers)),
		slog.Duration("poll_interval", o.pollInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, ix := range o.indexers {
		g.Go(func() error {
			o.logger.Info("starting index loop", slog.Uint64("chain_id", ix.chainID))
			err := ix.RunLoop(ctx, o.pollInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("indexer chain %d: %w", ix.chainID, err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
