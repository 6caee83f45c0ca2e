// Package observability provides structured logging, Prometheus metrics
// and health checks.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("server started")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordPermissionCheck("unit.edit", true)
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db)
//	status := checker.Check(ctx)
package observability
