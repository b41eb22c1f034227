package di

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/config"
	"github.com/quantleap/quantd/internal/jobs"
	"github.com/quantleap/quantd/internal/modules/risk"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:          t.TempDir(),
		Port:             8090,
		Workers:          2,
		JobRetentionDays: 30,
		RiskFreeRate:     0.02,
		MaxFanout:        2,
		CacheTTL:         time.Hour,
	}
}

func TestWire_BuildsFullContainer(t *testing.T) {
	nop := zerolog.New(nil).Level(zerolog.Disabled)

	container, err := Wire(testConfig(t), nop)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.MarketDB)
	assert.NotNil(t, container.JobsDB)
	assert.NotNil(t, container.CacheDB)
	assert.Len(t, container.Databases(), 3)

	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.MarketStore)
	assert.NotNil(t, container.MarketDataService)
	assert.NotNil(t, container.IndicatorCache)
	assert.NotNil(t, container.IndicatorService)
	assert.NotNil(t, container.PricingService)
	assert.NotNil(t, container.BacktestService)

	assert.NotNil(t, container.JobManager)
	assert.NotNil(t, container.WorkerPool)
	assert.Len(t, container.JobManager.Kinds(), 4)

	assert.NotNil(t, container.MarketDataHandler)
	assert.NotNil(t, container.IndicatorHandler)
	assert.NotNil(t, container.SignalHandler)
	assert.NotNil(t, container.PricingHandler)
	assert.NotNil(t, container.BacktestHandler)
	assert.NotNil(t, container.RiskHandler)
	assert.NotNil(t, container.JobsHandler)

	assert.NotNil(t, container.RetentionJob)
	assert.NotNil(t, container.CheckpointJob)
	assert.NotNil(t, container.CacheSweepJob)
}

func TestWire_JobRoundTripThroughPool(t *testing.T) {
	nop := zerolog.New(nil).Level(zerolog.Disabled)

	container, err := Wire(testConfig(t), nop)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	container.WorkerPool.Start()
	t.Cleanup(container.WorkerPool.Stop)

	id, err := container.JobManager.Submit(jobs.KindStressTest, jobs.StressInput{
		Scenarios: []risk.StressScenario{{Name: "crash", MarketShock: -0.2}},
		Positions: []risk.StressPosition{{Symbol: "AAPL", MarketValue: 100000}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := container.JobManager.Status(id)
		return err == nil && job.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	job, err := container.JobManager.Status(id)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, job.State)

	result, err := container.JobManager.Result(id)
	require.NoError(t, err)
	stress, ok := result.(*risk.StressResult)
	require.True(t, ok)
	assert.InDelta(t, -0.2, stress.WorstCase, 1e-9)
}

func TestWire_MaintenanceJobsRunAgainstWiredStores(t *testing.T) {
	nop := zerolog.New(nil).Level(zerolog.Disabled)

	container, err := Wire(testConfig(t), nop)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NoError(t, container.RetentionJob.Run())
	assert.NoError(t, container.CheckpointJob.Run())
	assert.NoError(t, container.CacheSweepJob.Run())
}
