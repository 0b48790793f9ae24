package observability

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/classhub/pkg/httputil"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const readinessTimeout = 5 * time.Second

// DependencyStatus reports the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthStatus aggregates dependency probes into an overall status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// HealthChecker probes the registry database and the activity tracker's
// redis. Redis is a soft dependency: its loss only degrades the snapshot
// active-member counts, so a redis failure reports degraded, not unhealthy.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// Liveness always reports healthy while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness probes all dependencies; 503 only when the aggregate is unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	result := h.Check(ctx)
	code := http.StatusOK
	if result.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, result)
}

// Check probes every configured dependency and folds the results into an
// overall status: an unhealthy database is unhealthy, anything else at most
// degrades the aggregate.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	result := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	degrade := func(to string) {
		if result.Status == StatusUnhealthy {
			return
		}
		if to == StatusUnhealthy || result.Status == StatusHealthy {
			result.Status = to
		}
	}

	if h.db != nil {
		probe := h.checkDatabase(ctx)
		result.Dependencies["database"] = probe
		if probe.Status != StatusHealthy {
			degrade(probe.Status)
		}
	}

	if h.redis != nil {
		probe := h.checkRedis(ctx)
		result.Dependencies["redis"] = probe
		if probe.Status != StatusHealthy {
			degrade(StatusDegraded)
		}
	}

	return result
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	probe := DependencyStatus{Status: StatusHealthy, Timestamp: time.Now()}

	start := time.Now()
	err := h.db.PingContext(ctx)
	probe.Latency = time.Since(start)
	if err != nil {
		probe.Status = StatusUnhealthy
		probe.Message = err.Error()
		return probe
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		probe.Status = StatusUnhealthy
		probe.Message = "query failed: " + err.Error()
		return probe
	}

	pool := h.db.Stats()
	if pool.OpenConnections >= pool.MaxOpenConnections {
		probe.Status = StatusDegraded
		probe.Message = "connection pool exhausted"
	}

	return probe
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	probe := DependencyStatus{Status: StatusHealthy, Timestamp: time.Now()}

	start := time.Now()
	err := h.redis.Ping(ctx).Err()
	probe.Latency = time.Since(start)
	if err != nil {
		probe.Status = StatusUnhealthy
		probe.Message = err.Error()
	}

	return probe
}

// RegisterHealthRoutes registers health check endpoints on the ops router
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
}
