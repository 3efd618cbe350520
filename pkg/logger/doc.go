// Package logger builds slog loggers with the output shape the platform
// expects: JSON in production, text in development, and request-scoped
// attributes (tenant id, request id) injected from context on every record.
//
// The decorated handler runs the registered ContextExtractor functions at
// log time, so call sites never pass tenant or request identifiers by hand:
//
//	log := logger.New(
//		logger.WithProduction("crewplane"),
//		logger.WithContextExtractors(tenant.LogExtractor()),
//	)
//	log.InfoContext(ctx, "plan changed", logger.PlanID("starter"))
package logger
