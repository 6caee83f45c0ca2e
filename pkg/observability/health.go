package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker probes the database behind the liveness and readiness
// endpoints. The database is the only hard dependency of the service.
type HealthChecker struct {
	db *sql.DB
}

func NewHealthChecker(db *sql.DB) *HealthChecker {
	return &HealthChecker{db: db}
}

// HealthStatus is the JSON body of a readiness response.
type HealthStatus struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Database  *ProbeResult `json:"database,omitempty"`
}

// ProbeResult records one dependency probe.
type ProbeResult struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ms,omitempty"`
}

// Liveness reports that the process is up. It never touches dependencies.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness probes the database and answers 503 when it is unreachable.
// A degraded pool still counts as ready.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// Check runs every dependency probe and folds the results into an overall
// status.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if h.db != nil {
		probe := h.probeDatabase(ctx)
		status.Database = &probe
		status.Status = probe.Status
	}
	return status
}

func (h *HealthChecker) probeDatabase(ctx context.Context) ProbeResult {
	start := time.Now()

	var one int
	err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	result := ProbeResult{Status: StatusHealthy, Latency: time.Since(start)}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		return result
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		result.Status = StatusDegraded
		result.Message = "connection pool exhausted"
	}
	return result
}

// RegisterHealthRoutes mounts the probes on the health mux.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
