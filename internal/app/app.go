// -----------------------------------------------------------------------
// App - composition root wiring storage, collectors, and orchestration
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/collectors/emailauth"
	"github.com/ternarybob/darkwatch/internal/collectors/exposure"
	"github.com/ternarybob/darkwatch/internal/collectors/infra"
	"github.com/ternarybob/darkwatch/internal/collectors/investigation"
	"github.com/ternarybob/darkwatch/internal/collectors/netsec"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/darkweb"
	"github.com/ternarybob/darkwatch/internal/graph"
	"github.com/ternarybob/darkwatch/internal/handlers"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/orchestrator"
	"github.com/ternarybob/darkwatch/internal/risk"
	"github.com/ternarybob/darkwatch/internal/storage/badger"
)

// App owns every long-lived component and wires them together. Handlers
// hang off the app so the server package stays a thin routing layer.
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage interfaces.StorageManager

	Registry     *collectors.Registry
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *orchestrator.Scheduler
	RiskEngine   *risk.Engine
	Graph        *graph.Service

	JobHandler *handlers.JobHandler
	APIHandler *handlers.APIHandler
	WSHandler  *handlers.WebSocketHandler
}

// New builds the application. The Tor health check runs here so a
// misconfigured proxy surfaces at startup, not on the first dark-web job.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	a := &App{
		Config:  config,
		Logger:  logger,
		Storage: storage,
	}

	a.Registry = collectors.NewRegistry(logger)
	a.Orchestrator = orchestrator.New(config, a.Registry, storage, logger)
	a.Scheduler = orchestrator.NewScheduler(&config.Scheduler, a.Orchestrator, logger)
	a.RiskEngine = risk.NewEngine(storage.ScoreStorage(), logger)
	a.Graph = graph.NewService(storage.GraphStorage(), logger)

	if err := a.registerCollectors(ctx); err != nil {
		storage.Close()
		return nil, err
	}

	a.JobHandler = handlers.NewJobHandler(a.Orchestrator, logger)
	a.APIHandler = handlers.NewAPIHandler(a.Orchestrator, a.RiskEngine, a.Graph, storage, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Orchestrator, &config.WebSocket, logger)

	return a, nil
}

func (a *App) registerCollectors(ctx context.Context) error {
	a.Registry.Register(exposure.NewCollector(&a.Config.Scanner, a.Logger))
	a.Registry.Register(infra.NewCollector(&a.Config.Scanner, a.Logger))
	a.Registry.Register(emailauth.NewCollector(&a.Config.Scanner, a.Logger))
	a.Registry.Register(investigation.NewCollector(&a.Config.Crawler, a.Storage.NetworkLogStorage(), a.Logger, a.Orchestrator))
	a.Registry.Register(netsec.NewCollector(a.Storage.NetworkLogStorage(), a.Logger))

	if err := darkweb.CheckTor(ctx, &a.Config.Tor, a.Logger); err != nil {
		if a.Config.Tor.Required {
			return fmt.Errorf("tor health check failed: %w", err)
		}
		a.Logger.Warn().Err(err).Msg("Tor unreachable - dark-web jobs will fail until the proxy recovers")
	}
	dw, err := darkweb.NewCollector(a.Config, a.Storage.URLStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("dark-web collector init failed: %w", err)
	}
	a.Registry.Register(dw)

	return nil
}

// Start launches the worker pool and the cron scheduler
func (a *App) Start(ctx context.Context) error {
	a.Orchestrator.Start(ctx)
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	a.Logger.Info().Msg("Application started")
	return nil
}

// Close stops background work and releases storage
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Orchestrator.Stop()
	if err := a.Storage.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}
	a.Logger.Info().Msg("Application stopped")
}
