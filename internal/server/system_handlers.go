package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cfholanda/investrack/internal/database"
)

// SystemHandlers serves health and status endpoints.
type SystemHandlers struct {
	log       zerolog.Logger
	appDB     *database.DB
	cacheDB   *database.DB
	startTime time.Time
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(log zerolog.Logger, appDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		appDB:     appDB,
		cacheDB:   cacheDB,
		startTime: time.Now(),
	}
}

// HandleHealth handles GET /health
// Liveness plus a quick integrity probe of both databases.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	databases := map[string]string{}
	for name, db := range map[string]*database.DB{"app": h.appDB, "client_data": h.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Error().Err(err).Str("database", name).Msg("Database check failed")
			databases[name] = "error"
			status = "degraded"
		} else {
			databases[name] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"databases": databases,
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HandleSystemStatus handles GET /api/system/status
// Adds host resource usage to the health picture.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.systemStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"cpuPercent": cpuPct,
		"memPercent": memPct,
	})
}

// systemStats returns CPU and RAM usage percentages. The short sampling
// interval keeps the endpoint fast at the cost of a noisier CPU reading.
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
