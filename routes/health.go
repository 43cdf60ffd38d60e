package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"clipflow/logger"
	"clipflow/success"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	GoVersion string    `json:"go_version"`
	Uptime    string    `json:"uptime"`
	StartTime string    `json:"start_time"`
	Store     string    `json:"store"`
}

var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports liveness and whether the ledger store answers.
// An unreachable store yields 503 so load balancers stop routing here.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   buildVersion().Version,
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		Store:     "ok",
	}

	status := http.StatusOK
	if err := success.CheckHealth(); err != nil {
		logger.Warnf("Health check failed: %v", err)
		response.Status = "unhealthy"
		response.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}
