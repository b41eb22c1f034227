package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/jobs"
	"github.com/quantleap/quantd/internal/version"
)

// SystemStatusResponse is the payload of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string                    `json:"status"`
	Version       string                    `json:"version"`
	GoVersion     string                    `json:"go_version"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	CPUPercent    float64                   `json:"cpu_percent"`
	MemPercent    float64                   `json:"mem_percent"`
	Disk          DiskStatus                `json:"disk"`
	Workers       WorkerStatus              `json:"workers"`
	Jobs          map[string]int            `json:"jobs"`
	Databases     map[string]DatabaseStatus `json:"databases"`
}

// DiskStatus reports usage of the filesystem holding the data directory.
type DiskStatus struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// WorkerStatus reports worker pool gauges.
type WorkerStatus struct {
	PoolSize   int `json:"pool_size"`
	QueueDepth int `json:"queue_depth"`
}

// DatabaseStatus reports per-database file and page statistics.
type DatabaseStatus struct {
	SizeBytes     int64 `json:"size_bytes"`
	WALSizeBytes  int64 `json:"wal_size_bytes"`
	PageCount     int64 `json:"page_count"`
	FreelistCount int64 `json:"freelist_count"`
}

// SystemHandlers serves system introspection endpoints.
type SystemHandlers struct {
	databases map[string]*database.DB
	manager   *jobs.Manager
	workers   int
	dataDir   string
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system introspection handlers.
func NewSystemHandlers(databases map[string]*database.DB, manager *jobs.Manager, workers int, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases: databases,
		manager:   manager,
		workers:   workers,
		dataDir:   dataDir,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleSystemStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		Version:       version.Version,
		GoVersion:     runtime.Version(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		CPUPercent:    cpuPercent,
		MemPercent:    memPercent,
		Disk:          h.diskStatus(),
		Workers:       WorkerStatus{PoolSize: h.workers},
		Jobs:          make(map[string]int, len(jobs.AllStates)),
		Databases:     make(map[string]DatabaseStatus, len(h.databases)),
	}

	if h.manager != nil {
		response.Workers.QueueDepth = h.manager.QueueDepth()
		counts := h.manager.Counts()
		for _, state := range jobs.AllStates {
			response.Jobs[string(state)] = counts[state]
		}
	}

	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to collect database stats")
			continue
		}
		response.Databases[name] = DatabaseStatus{
			SizeBytes:     stats.SizeBytes,
			WALSizeBytes:  stats.WALSizeBytes,
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// diskStatus samples the filesystem holding the data directory.
func (h *SystemHandlers) diskStatus() DiskStatus {
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("path", h.dataDir).Msg("Failed to get disk usage")
		return DiskStatus{Path: h.dataDir}
	}
	const gb = 1024 * 1024 * 1024
	return DiskStatus{
		Path:        h.dataDir,
		TotalGB:     float64(usage.Total) / gb,
		FreeGB:      float64(usage.Free) / gb,
		UsedPercent: usage.UsedPercent,
	}
}

// systemStats calculates CPU and RAM usage percentages. The CPU sample
// interval is kept short so the endpoint answers quickly.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
