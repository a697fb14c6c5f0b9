// Package app is the composition root: it wires every collaborator
// (store, budget, context management, tool registry, resource monitor,
// model router, agent runner, executor, event bus, API server) from a
// resolved config.Config, with no global singletons or import-time side
// effects.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vfirsov/agentflow/api"
	"github.com/vfirsov/agentflow/internal/agent"
	"github.com/vfirsov/agentflow/internal/audit"
	"github.com/vfirsov/agentflow/internal/budget"
	"github.com/vfirsov/agentflow/internal/config"
	"github.com/vfirsov/agentflow/internal/contextmgr"
	"github.com/vfirsov/agentflow/internal/decomposer"
	"github.com/vfirsov/agentflow/internal/eventbus"
	"github.com/vfirsov/agentflow/internal/executor"
	"github.com/vfirsov/agentflow/internal/resource"
	"github.com/vfirsov/agentflow/internal/router"
	"github.com/vfirsov/agentflow/internal/store"
	"github.com/vfirsov/agentflow/internal/tools"
)

// App bundles every running collaborator for the agentflowd process.
type App struct {
	cfg      *config.Config
	store    *store.Store
	executor *executor.Executor
	server   *api.Server
	monitor  *resource.Monitor
	logger   *zap.SugaredLogger
}

// Build wires every collaborator from cfg. It opens the store (applying its
// schema) and starts the resource monitor's probe loop, but does not
// start the executor tick loop or HTTP servers — call Run for that.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	audit.SetLogger(logger)

	st, err := store.Open(ctx, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	catalog := budget.NewCatalog()
	costCalc := budget.NewCostCalculatorWithCatalog(catalog, "USD")
	tokenEstimator := budget.NewTokenEstimator()
	enforcer := budget.NewEnforcer(st)

	toolRegistry := tools.NewRegistry()
	modelRouter := router.NewRouter(catalog)
	monitor := resource.NewMonitor(cfg.ResourceCheckInterval)
	monitor.Start()

	runner := agent.NewRunner(cfg.AnthropicAPIKey, toolRegistry, modelRouter, costCalc, enforcer)

	bus := eventbus.NewBus()

	exec := executor.New(executor.Deps{
		Store:           st,
		Scheduler:       decomposer.NewScheduler(),
		Enforcer:        enforcer,
		CostCalc:        costCalc,
		TokenEstimator:  tokenEstimator,
		ContextBuilder:  contextmgr.NewBuilder(),
		Compactor:       contextmgr.NewCompactor(),
		AgentRunner:     runner,
		ResourceMonitor: monitor,
		Publisher:       bus,
		Logger:          logger,
		MaxConcurrency:  cfg.MaxConcurrency,
	})

	server := api.NewServer(cfg.Addr, st, bus, enforcer, exec, logger)

	return &App{
		cfg:      cfg,
		store:    st,
		executor: exec,
		server:   server,
		monitor:  monitor,
		logger:   logger,
	}, nil
}

// Run starts the executor's tick loop and the HTTP server, and blocks until
// ctx is cancelled. On return, every started component has been shut down.
func (a *App) Run(ctx context.Context) error {
	go a.runTickLoop(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErrCh:
		if err != nil {
			a.shutdown()
			return fmt.Errorf("api server: %w", err)
		}
	}

	a.shutdown()
	return nil
}

func (a *App) runTickLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						a.logger.Errorw("tick panicked", "panic", r)
					}
				}()
				if err := a.executor.Tick(ctx); err != nil {
					a.logger.Errorw("tick failed", "error", err)
				}
			}()
		}
	}
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorw("server shutdown error", "error", err)
	}
	a.monitor.Stop()
	if err := a.store.Close(); err != nil {
		a.logger.Errorw("store close error", "error", err)
	}
	_ = a.logger.Sync()
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
