// Package telemetry sets up the OpenTelemetry tracer and meter providers.
//
// Exporters speak OTLP over gRPC or HTTP. Provider failures never stop the
// process: the instance is marked degraded and the global no-op providers
// stay in place. NewTestTelemetry swaps in a span recorder and a manual
// metric reader for tests.
package telemetry
