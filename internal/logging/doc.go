// Package logging builds the process logger.
//
// The logger is a plain *zap.Logger whose core tees a redacting stdout
// encoder with the OpenTelemetry log bridge. Levels below error are
// sampled; errors never are. Correlation fields (trace, execution, workflow
// and request ids) are attached from the context with ContextFields or
// For.
//
//	logger, err := logging.NewLogger(cfg, loggerProvider)
//	if err != nil {
//	    return err
//	}
//	defer logging.Sync(logger)
//
//	ctx = logging.WithExecution(ctx, res.ExecutionID, "simple_qa")
//	logging.For(ctx, logger).Info("step completed")
package logging
