// Package di provides dependency injection wiring for the quantd service.
//
// The Container is the single source of truth for all constructed
// dependencies: databases, the event bus, stores, engine services, the job
// orchestrator and the HTTP handlers. It is created by Wire() and handed
// to cmd/server, which mounts the handlers and runs the lifecycle.
package di

import (
	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/events"
	"github.com/quantleap/quantd/internal/jobs"
	"github.com/quantleap/quantd/internal/modules/backtest"
	backtesthandlers "github.com/quantleap/quantd/internal/modules/backtest/handlers"
	"github.com/quantleap/quantd/internal/modules/indicators"
	indicatorhandlers "github.com/quantleap/quantd/internal/modules/indicators/handlers"
	"github.com/quantleap/quantd/internal/modules/marketdata"
	marketdatahandlers "github.com/quantleap/quantd/internal/modules/marketdata/handlers"
	"github.com/quantleap/quantd/internal/modules/pricing"
	pricinghandlers "github.com/quantleap/quantd/internal/modules/pricing/handlers"
	riskhandlers "github.com/quantleap/quantd/internal/modules/risk/handlers"
	signalhandlers "github.com/quantleap/quantd/internal/modules/signals/handlers"
	"github.com/quantleap/quantd/internal/scheduler"
)

// Container holds all dependencies for the application.
//
// Architecture:
//   - Databases: market (bar history), jobs (registry ledger), cache
//     (indicator sets), each with profile-specific PRAGMAs
//   - Events: bus plus the typed-emission manager wrapping it
//   - Stores and services: market data, indicators, pricing, backtest
//   - Job orchestration: durable manager, runners and the worker pool
//   - Handlers: one HTTP registrar per module plus the jobs registrar
//   - Maintenance: cron jobs handed to the scheduler by cmd/server
type Container struct {
	// Databases
	MarketDB *database.DB // Bar history and benchmark returns
	JobsDB   *database.DB // Job registry rows and result blobs
	CacheDB  *database.DB // Indicator sets keyed by symbol and bars hash

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Stores
	MarketStore *marketdata.Store
	JobStore    *jobs.Store

	// Services
	MarketDataService *marketdata.Service
	IndicatorCache    *indicators.Cache
	IndicatorService  *indicators.Service
	PricingService    *pricing.Service
	BacktestEngine    *backtest.Engine
	BacktestService   *backtest.Service

	// Job orchestration
	JobManager *jobs.Manager
	WorkerPool *jobs.Pool

	// HTTP handlers
	MarketDataHandler *marketdatahandlers.Handler
	IndicatorHandler  *indicatorhandlers.Handler
	SignalHandler     *signalhandlers.Handler
	PricingHandler    *pricinghandlers.Handler
	BacktestHandler   *backtesthandlers.Handler
	RiskHandler       *riskhandlers.Handler
	JobsHandler       *jobs.Handler

	// Maintenance jobs, scheduled by cmd/server
	RetentionJob  *scheduler.RetentionJob
	CheckpointJob *scheduler.CheckpointJob
	CacheSweepJob *scheduler.CacheSweepJob
}

// Databases returns the named database handles, keyed the way the health
// and system endpoints report them.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"market": c.MarketDB,
		"jobs":   c.JobsDB,
		"cache":  c.CacheDB,
	}
}

// Close releases every database handle. Safe to call after a partial
// wiring failure.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.MarketDB, c.JobsDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
