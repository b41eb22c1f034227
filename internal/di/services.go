package di

import (
	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/config"
	"github.com/quantleap/quantd/internal/events"
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
)

// InitializeServices builds the event bus, stores, engine services and the
// per-module HTTP handlers on top of the opened databases.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	// Events
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Market data: store doubles as the MarketDataSource for backtests
	container.MarketStore = marketdata.NewStore(container.MarketDB, cfg.RiskFreeRate, log)
	container.MarketDataService = marketdata.NewService(container.MarketStore, container.EventManager, log)

	// Indicators, cached per symbol and bars hash
	container.IndicatorCache = indicators.NewCache(container.CacheDB, cfg.CacheTTL, log)
	container.IndicatorService = indicators.NewService(container.IndicatorCache, cfg.MaxFanout, log)

	// Option pricing
	container.PricingService = pricing.NewService(cfg.MaxFanout, log)

	// Backtests
	container.BacktestEngine = backtest.NewEngine(log)
	container.BacktestService = backtest.NewService(container.BacktestEngine, container.MarketStore, log)

	// HTTP handlers
	container.MarketDataHandler = marketdatahandlers.NewHandler(container.MarketDataService, log)
	container.IndicatorHandler = indicatorhandlers.NewHandler(container.IndicatorService, log)
	container.SignalHandler = signalhandlers.NewHandler(log)
	container.PricingHandler = pricinghandlers.NewHandler(container.PricingService, log)
	container.BacktestHandler = backtesthandlers.NewHandler(log)
	container.RiskHandler = riskhandlers.NewHandler(log)

	log.Info().Msg("Services initialized")
}
