package tracekit

import "fmt"

// ConfigError reports invalid or missing tracing configuration. It is
// returned before any exporter or provider construction takes place, so a
// caller can correct the configuration and call Initialize again.
type ConfigError struct {
	// Field is the configuration field that failed validation.
	Field string
	// Value is the offending value, if any.
	Value string
	// Reason describes why the value was rejected.
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("tracekit: invalid config field %q = %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("tracekit: invalid config field %q: %s", e.Field, e.Reason)
}

// ExporterError reports a failure constructing a span exporter. Construction
// never performs network I/O, so an ExporterError always indicates invalid
// parameters (malformed endpoint, unsupported protocol), not reachability.
type ExporterError struct {
	// Exporter names the exporter type that failed to build.
	Exporter string
	// Reason describes the construction failure.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *ExporterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracekit: %s exporter: %s: %v", e.Exporter, e.Reason, e.Err)
	}
	return fmt.Sprintf("tracekit: %s exporter: %s", e.Exporter, e.Reason)
}

func (e *ExporterError) Unwrap() error { return e.Err }

// InstrumentationError reports a failure attaching request instrumentation to
// an application object. The tracer manager's state is unaffected: a
// successful Initialize survives a failed attachment.
type InstrumentationError struct {
	// Framework names the adapter that failed ("chi", "gin", "http").
	Framework string
	// Reason describes the attachment failure.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *InstrumentationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracekit: %s instrumentation: %s: %v", e.Framework, e.Reason, e.Err)
	}
	return fmt.Sprintf("tracekit: %s instrumentation: %s", e.Framework, e.Reason)
}

func (e *InstrumentationError) Unwrap() error { return e.Err }
