package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"memoryd/internal/breaker"
	"memoryd/internal/services"
)

const healthPingTimeout = 2 * time.Second

type HealthController struct {
	service   services.MemoryServiceInterface
	startTime time.Time
}

type healthResponse struct {
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	QueueDepth    int               `json:"queue_depth"`
	Breakers      map[string]string `json:"breakers"`
	Store         string            `json:"store"`
}

// Health answers 200 while the store is reachable, reporting "degraded" when a
// breaker is not closed, and 503 when the store ping fails.
func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        "ok",
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		QueueDepth:    hc.service.QueueDepth(),
		Breakers:      hc.service.BreakerStates(),
		Store:         "ok",
	}
	for _, state := range resp.Breakers {
		if state != breaker.StateClosed.String() {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := hc.service.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(service services.MemoryServiceInterface) *HealthController {
	return &HealthController{
		service:   service,
		startTime: time.Now(),
	}
}
