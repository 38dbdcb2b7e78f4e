package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictfi/predict-go/internal/pipeline"
	"github.com/predictfi/predict-go/internal/server"
	"github.com/predictfi/predict-go/internal/server/handler"
	"github.com/predictfi/predict-go/internal/server/ws"
	"github.com/predictfi/predict-go/internal/service"
)

// ServerMode runs only the HTTP + WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// IndexMode runs only the trade-event indexer and archiver.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	if !a.cfg.Indexer.Enabled {
		return fmt.Errorf("app: index mode requires indexer.enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server and, when enabled, the index pipeline.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Indexer.Enabled {
		a.startPipeline(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "indexer.enabled is false, trade history endpoints will be unavailable")
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startPipeline adds the per-chain index loops and the archiver cron to the
// errgroup.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	indexers := make([]*pipeline.Indexer, 0, len(deps.Factories))
	for chainID, fc := range deps.Factories {
		indexers = append(indexers, pipeline.NewIndexer(
			chainID,
			fc,
			deps.TradeEvents,
			deps.MarketCache,
			deps.PriceCache,
			deps.PriceBus,
			deps.Locks,
			a.logger,
		))
	}

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, deps.TradeEvents, a.cfg.Indexer.ArchiveRetentionDays, a.logger)
	}

	orch := pipeline.NewOrchestrator(
		indexers,
		archiver,
		a.cfg.Indexer.PollInterval.Duration,
		a.cfg.Indexer.ArchiveCron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer builds the service and handler stack and adds the HTTP
// server plus the WebSocket hub to the errgroup. The server is shut down
// gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	marketSvc := service.NewMarketService(deps.Factories, deps.MarketCache, a.logger)
	positionSvc := service.NewPositionService(marketSvc, deps.TradeEvents, a.logger)
	priceSvc := service.NewPriceService(marketSvc, deps.PriceCache, deps.PriceBus, a.logger)

	var hub *ws.Hub
	if deps.PriceBus != nil {
		hub = ws.NewHub(deps.PriceBus, deps.Chains.ChainIDs(), a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("ws hub: %w", err)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(deps.Chains.ChainIDs(), deps.TradeEvents != nil, a.logger),
			Markets:   handler.NewMarketHandler(marketSvc, a.logger),
			Prices:    handler.NewPriceHandler(priceSvc, a.logger),
			Positions: handler.NewPositionHandler(positionSvc, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
