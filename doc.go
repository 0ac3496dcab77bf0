// Package tracekit bootstraps OpenTelemetry distributed tracing for web
// services, exactly once per process.
//
// # Overview
//
// tracekit resolves a declarative configuration (environment variables or
// call-site options) into a concrete exporter pipeline, installs a tracer
// provider behind a process-wide manager, and attaches per-framework request
// instrumentation idempotently. Calling setup any number of times, from any
// number of goroutines, performs exactly one real initialization; tracing
// installed by unrelated code is detected and left alone.
//
// # Quick Start
//
//	tp, err := tracekit.Initialize(
//	    tracekit.WithServiceName("checkout"),
//	    tracekit.WithExporter("otlp"),
//	    tracekit.WithOTLPEndpoint("localhost:4317"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracekit.Reset()
//	_ = tp
//
// Framework adapters do the same and additionally wire request spans.
// Import only the adapter for the framework you use:
//
//	// chi
//	handle, err := chitrace.Setup(router,
//	    tracekit.WithServiceName("checkout"),
//	    tracekit.WithExcludedURLs("/health", "/metrics"),
//	)
//
//	// gin
//	handle, err := gintrace.Setup(engine, tracekit.WithServiceName("checkout"))
//
//	// net/http
//	handler, handle, err := httptrace.Setup(mux, tracekit.WithServiceName("checkout"))
//
// Repeated Setup calls with the same application object attach exactly one
// set of hooks and return the same backend handle.
//
// Outbound requests join the trace through the client transport:
//
//	client := tracekit.WrapClient(http.DefaultClient)
//	resp, err := client.Do(req) // client span + propagated trace headers
//
// # Exporters
//
// Five exporter types are supported:
//
//   - otlp: OTLP collector over gRPC or http/protobuf (recommended)
//   - jaeger: a Jaeger agent's native OTLP receiver, addressed by host/port
//   - console: spans printed to stdout, no network
//   - zipkin: a Zipkin collector
//   - multi: jaeger and otlp simultaneously
//
// # Environment Configuration
//
// Explicit options always win over the environment, which wins over
// defaults:
//
//	OTEL_SERVICE_NAME=checkout
//	OTEL_SERVICE_VERSION=1.4.2
//	OTEL_DEPLOYMENT_ENVIRONMENT=production
//	OTEL_EXPORTER_TYPE=otlp
//	OTEL_EXPORTER_OTLP_ENDPOINT=collector:4317
//	OTEL_EXPORTER_OTLP_PROTOCOL=grpc
//	OTEL_EXPORTER_OTLP_HEADERS=x-team=payments,x-tier=edge
//	OTEL_EXPORTER_JAEGER_AGENT_HOST=jaeger
//	OTEL_EXPORTER_JAEGER_AGENT_PORT=4317
//	OTEL_EXCLUDED_URLS=/health,/metrics
//
// # Coexisting With Other Tracing Setups
//
// If another component already installed an SDK tracer provider, Initialize
// wraps it instead of clobbering it: the manager reports
// IsExternallyInitialized and registers no exporters. Pass WithForceReinit
// to override deliberately.
//
// # Reconfiguring
//
// ForceReinitialize tears down the current backend and all of its exporters
// before building a new one. Instrumentation attached by the adapters reads
// the tracer through the manager per request, so it follows the new backend
// without being reattached.
package tracekit
