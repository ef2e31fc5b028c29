package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/config"
)

// SystemHandlers serves health and system status endpoints.
type SystemHandlers struct {
	cfg     *config.Config
	budget  *budget.RateBudget
	log     zerolog.Logger
	started time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(cfg *config.Config, rateBudget *budget.RateBudget, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		cfg:     cfg,
		budget:  rateBudget,
		log:     log.With().Str("component", "system_handlers").Logger(),
		started: time.Now(),
	}
}

// HandleLiveness serves GET /health: a bare liveness probe.
func (h *SystemHandlers) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHealth serves GET /api/system/health: process and host stats plus
// the remaining upstream budget.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":     "ok",
		"uptime_sec": int64(time.Since(h.started).Seconds()),
		"plan_tier":  string(h.cfg.JQuantsPlan),
		"goroutines": runtime.NumGoroutine(),
	}

	minuteLeft, dayLeft := h.budget.Remaining()
	response["budget"] = map[string]int{
		"minute_remaining": minuteLeft,
		"day_remaining":    dayLeft,
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		response["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response["memory_percent"] = memStat.UsedPercent
	}
	if diskStat, err := disk.Usage(h.cfg.DataDir); err == nil {
		response["disk_percent"] = diskStat.UsedPercent
	}

	writeJSON(w, http.StatusOK, response)
}
