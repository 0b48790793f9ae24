package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tenancy subsystem
type Metrics struct {
	// Organization metrics
	OrganizationsTotal *prometheus.GaugeVec

	// Quota metrics
	QuotaDenialsTotal *prometheus.CounterVec
	QuotaUsageRatio   *prometheus.GaugeVec

	// Invitation metrics
	InvitationsTotal *prometheus.CounterVec

	// Provisioning metrics
	ProvisioningStepsTotal *prometheus.CounterVec
	ProvisioningRunsTotal  *prometheus.CounterVec

	// Usage snapshot metrics
	UsageSnapshotsTotal   prometheus.Counter
	UsageSnapshotDuration prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrganizationsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "classhub_organizations_total",
				Help: "Number of organizations by status",
			},
			[]string{"status"},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classhub_quota_denials_total",
				Help: "Total quota-exceeded denials by resource kind",
			},
			[]string{"kind"},
		),
		QuotaUsageRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "classhub_quota_usage_ratio",
				Help: "Current usage as a fraction of the quota ceiling",
			},
			[]string{"org", "kind"},
		),
		InvitationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classhub_invitations_total",
				Help: "Total invitation operations by outcome",
			},
			[]string{"outcome"},
		),
		ProvisioningStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classhub_provisioning_steps_total",
				Help: "Total provisioning step executions by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		ProvisioningRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classhub_provisioning_runs_total",
				Help: "Total provisioning runs by aggregate status",
			},
			[]string{"status"},
		),
		UsageSnapshotsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "classhub_usage_snapshots_total",
				Help: "Total usage snapshots appended",
			},
		),
		UsageSnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classhub_usage_snapshot_duration_seconds",
				Help:    "Duration of usage snapshot runs",
				Buckets: prometheus.DefBuckets,
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "classhub_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "classhub_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.OrganizationsTotal,
		m.QuotaDenialsTotal,
		m.QuotaUsageRatio,
		m.InvitationsTotal,
		m.ProvisioningStepsTotal,
		m.ProvisioningRunsTotal,
		m.UsageSnapshotsTotal,
		m.UsageSnapshotDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus metrics HTTP handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
