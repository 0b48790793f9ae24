// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CLASSHUB_HOST="0.0.0.0"
//	CLASSHUB_OPS_PORT="9090"
//	CLASSHUB_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	CLASSHUB_POSTGRES_URL="postgres://localhost/classhub"
//	CLASSHUB_POSTGRES_REPLICA_URLS="postgres://replica1/classhub,postgres://replica2/classhub"
//	CLASSHUB_POSTGRES_MAX_CONNS="20"
//
// Redis settings (member activity tracking):
//
//	CLASSHUB_REDIS_ADDR="localhost:6379"
//	CLASSHUB_REDIS_POOL_SIZE="10"
//
// Backup settings:
//
//	CLASSHUB_BACKUP_ENABLED="true"
//	CLASSHUB_S3_BUCKET="classhub-exports"
//	CLASSHUB_S3_REGION="us-east-1"
//
// Observability settings:
//
//	CLASSHUB_LOG_LEVEL="info"  # debug, info, warn, error
//	CLASSHUB_METRICS_ENABLED="true"
//	CLASSHUB_OTEL_ENABLED="true"
//	CLASSHUB_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
