// Package observability provides logging and metrics support for the
// ScholarVault service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Request-scoped fields travel on the context:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	ctx = observability.WithUserID(ctx, userID)
//	log := observability.LoggerFromContext(ctx, logger)
//
// # Metrics
//
//	metrics := observability.NewMetrics("scholarvault")
//	metrics.RecordEnrichment("registry_gap_filled", 1.2)
//	metrics.RecordUpstreamRequest("crossref", "200", 0.4)
//
// All metrics register with the default Prometheus registry through promauto,
// so each namespace may only be constructed once per process.
package observability
