package tracekit

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport is an http.RoundTripper that records a client span per outbound
// request and injects the trace context into the outgoing headers, so
// downstream services join the same trace.
//
// The tracer is resolved through the manager on every request, so a forced
// reinitialization retargets existing clients without rebuilding them.
// Before initialization the transport is a passthrough.
type Transport struct {
	base    http.RoundTripper
	manager *Manager
}

// NewTransport wraps base with client-span instrumentation bound to the
// Default manager. A nil base falls back to http.DefaultTransport.
func NewTransport(base http.RoundTripper) *Transport {
	return NewTransportWithManager(base, Default())
}

// NewTransportWithManager wraps base bound to a specific manager.
func NewTransportWithManager(base http.RoundTripper, m *Manager) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, manager: m}
}

// WrapClient returns a copy of client whose transport records client spans on
// the Default manager's backend. A nil client wraps http.DefaultTransport in
// a fresh client.
func WrapClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Transport: NewTransport(nil)}
	}
	wrapped := *client
	wrapped.Transport = NewTransport(client.Transport)
	return &wrapped
}

// RoundTrip implements http.RoundTripper. The request is cloned before the
// trace headers are injected; the caller's request is never mutated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.manager.Tracer().Start(req.Context(),
		fmt.Sprintf("HTTP %s", req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(req.Method),
			semconv.HTTPURL(req.URL.String()),
			semconv.NetPeerName(req.URL.Hostname()),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))
	// Client spans treat any non-success status as an error, unlike server
	// spans where only 5xx counts.
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
