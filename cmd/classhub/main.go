// Command classhub runs the tenancy service daemon: it owns the organization
// registry database, schedules daily usage snapshots and serves the ops
// endpoints (health probes and metrics).
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/classhub/pkg/activity"
	"github.com/platinummonkey/classhub/pkg/audit"
	"github.com/platinummonkey/classhub/pkg/backup"
	"github.com/platinummonkey/classhub/pkg/config"
	"github.com/platinummonkey/classhub/pkg/notification"
	"github.com/platinummonkey/classhub/pkg/observability"
	"github.com/platinummonkey/classhub/pkg/orgs"
	"github.com/platinummonkey/classhub/pkg/provision"
	"github.com/platinummonkey/classhub/pkg/storage/postgres"
)

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	migrate := flag.Bool("migrate", true, "Run database migrations on startup")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting ClassHub tenancy service")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := observability.NewLogger(cfg.Observability.LogLevel, nil)

	// Database
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer cm.Close()

	db := cm.Primary()
	if *migrate {
		if err := orgs.RunMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Info("Database migrations applied")
	}

	// Redis (member activity tracking)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	tracker := activity.NewTracker(redisClient)

	// Audit trail
	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Tracing
	ctx := context.Background()
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// Organization service
	svc := orgs.NewPostgresService(db,
		orgs.WithActivityCounter(tracker),
		orgs.WithAuditLogger(auditLog),
		orgs.WithLogger(appLogger),
		orgs.WithMetrics(metrics),
	)

	// Provisioner wiring. SMTP when configured, in-memory recorder otherwise.
	var notifier notification.Sender = notification.NewMemorySender()
	if cfg.Email.Host != "" {
		notifier = notification.NewEmailSender(cfg.Email)
	}
	provisionOpts := []provision.Option{
		provision.WithNotifier(notifier),
		provision.WithActivityPurger(tracker),
		provision.WithAuditLogger(auditLog),
		provision.WithLogger(appLogger),
		provision.WithMetrics(metrics),
		provision.WithLoginURL(cfg.LoginURL),
	}
	if cfg.Backup.Enabled {
		s3Client, err := backup.NewS3Client(ctx, cfg.Backup.S3)
		if err != nil {
			log.Fatalf("Failed to initialize S3 client: %v", err)
		}
		exporter := backup.NewExporter(s3Client, cfg.Backup.S3.Bucket, svc)
		provisionOpts = append(provisionOpts, provision.WithExporter(exporter))
	}
	provisioner := provision.NewProvisioner(svc, provisionOpts...)

	// Daily usage snapshots
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.SnapshotSchedule, func() {
		runSnapshots(svc, metrics, log)
	})
	if err != nil {
		log.Fatalf("Failed to schedule usage snapshots: %v", err)
	}

	// Refresh org status gauges every minute
	_, err = scheduler.AddFunc("* * * * *", func() {
		updateOrgGauges(db, metrics, log)
		updatePoolGauges(cm, metrics)
	})
	if err != nil {
		log.Fatalf("Failed to schedule gauge refresh: %v", err)
	}
	scheduler.Start()
	log.Infof("Usage snapshot schedule: %s", cfg.SnapshotSchedule)

	// Ops server
	router := mux.NewRouter()
	checker := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(router, checker)
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.Handler(registry)).Methods(http.MethodGet)
	}
	registerOpsRoutes(router, provisioner, log)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var g errgroup.Group
	g.Go(func() error {
		log.Infof("Ops server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sm := observability.NewShutdownManager(appLogger, server, cfg.Server.ShutdownTimeout)
		sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			cronCtx := scheduler.Stop()
			select {
			case <-cronCtx.Done():
				return nil
			case <-shutdownCtx.Done():
				return shutdownCtx.Err()
			}
		})
		sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			return observability.ShutdownOTel(shutdownCtx, otelProviders, appLogger)
		})
		return sm.WaitForShutdown()
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Service exited with error: %v", err)
	}
	log.Info("ClassHub tenancy service stopped")
}

// runSnapshots appends a daily usage snapshot for every active organization
func runSnapshots(svc orgs.Service, metrics *observability.Metrics, log *logrus.Logger) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	organizations, err := svc.ListActiveOrganizations()
	if err != nil {
		log.Errorf("Snapshot run failed to list organizations: %v", err)
		return
	}

	thresholds := orgs.DefaultThresholds()
	snapshots := 0
	for _, org := range organizations {
		if _, err := svc.LogUsage(ctx, org.ID, orgs.LogTypeDaily); err != nil {
			log.Errorf("Snapshot failed for org %d: %v", org.ID, err)
			continue
		}
		snapshots++
		metrics.UsageSnapshotsTotal.Inc()

		if percentages, err := svc.UsagePercentages(org.ID); err == nil {
			for kind, pct := range percentages {
				metrics.QuotaUsageRatio.WithLabelValues(org.Slug, string(kind)).Set(pct)
				if level := thresholds.Level(pct); level != orgs.UsageLevelOK {
					log.Warnf("Org %s %s usage at %.0f%% (%s)", org.Slug, kind, pct*100, level)
				}
			}
		}
	}

	metrics.UsageSnapshotDuration.Observe(time.Since(start).Seconds())
	log.Infof("Usage snapshots complete: %d/%d organizations in %s", snapshots, len(organizations), time.Since(start))
}

// updateOrgGauges refreshes the organizations-by-status gauge
func updateOrgGauges(db *sql.DB, metrics *observability.Metrics, log *logrus.Logger) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM organizations WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		log.Warnf("Failed to refresh org gauges: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count float64
		if err := rows.Scan(&status, &count); err != nil {
			log.Warnf("Failed to scan org gauge row: %v", err)
			return
		}
		metrics.OrganizationsTotal.WithLabelValues(status).Set(count)
	}
}

// updatePoolGauges refreshes database connection pool gauges
func updatePoolGauges(cm *postgres.ConnectionManager, metrics *observability.Metrics) {
	stats := cm.Stats()
	metrics.DBConnectionsActive.Set(float64(stats.Primary.InUse))
	metrics.DBConnectionsIdle.Set(float64(stats.Primary.Idle))
}
