package tracekit

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ExporterFactory builds span exporters from a resolved configuration.
// Implementations must not mutate global state and must not perform network
// I/O: endpoint validation is static, reachability failures surface later
// when spans are flushed. The Manager owns all registration side effects.
type ExporterFactory interface {
	Build(ctx context.Context, cfg TracingConfig) ([]sdktrace.SpanExporter, error)
}

// NewExporterFactory returns the default factory covering the jaeger, otlp,
// console, zipkin and multi exporter types.
func NewExporterFactory() ExporterFactory {
	return exporterFactory{}
}

type exporterFactory struct{}

func (f exporterFactory) Build(ctx context.Context, cfg TracingConfig) ([]sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterJaeger:
		exp, err := f.buildJaeger(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return []sdktrace.SpanExporter{exp}, nil

	case ExporterOTLP:
		exp, err := f.buildOTLP(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return []sdktrace.SpanExporter{exp}, nil

	case ExporterConsole:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, &ExporterError{Exporter: "console", Reason: "construction failed", Err: err}
		}
		return []sdktrace.SpanExporter{exp}, nil

	case ExporterZipkin:
		exp, err := zipkin.New(cfg.ZipkinEndpoint)
		if err != nil {
			return nil, &ExporterError{Exporter: "zipkin", Reason: "invalid collector URL " + strconv.Quote(cfg.ZipkinEndpoint), Err: err}
		}
		return []sdktrace.SpanExporter{exp}, nil

	case ExporterMulti:
		// Jaeger and OTLP are built independently; a failure in either
		// aborts the whole build so no partial exporter set escapes.
		jaegerExp, err := f.buildJaeger(ctx, cfg)
		if err != nil {
			return nil, err
		}
		otlpExp, err := f.buildOTLP(ctx, cfg)
		if err != nil {
			shutdownExporters(ctx, []sdktrace.SpanExporter{jaegerExp})
			return nil, err
		}
		return []sdktrace.SpanExporter{jaegerExp, otlpExp}, nil

	default:
		return nil, &ExporterError{Exporter: string(cfg.Exporter), Reason: "unknown exporter type"}
	}
}

// buildJaeger constructs an OTLP gRPC exporter aimed at the Jaeger agent.
// Jaeger ingests OTLP natively and its dedicated exporter is retired
// upstream, so the agent host/port is addressed over OTLP. The gRPC client
// dials lazily; nothing blocks here.
func (exporterFactory) buildJaeger(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.JaegerHost) == "" {
		return nil, &ExporterError{Exporter: "jaeger", Reason: "agent host must not be empty"}
	}
	endpoint := net.JoinHostPort(cfg.JaegerHost, strconv.Itoa(cfg.JaegerPort))

	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	exp, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, &ExporterError{Exporter: "jaeger", Reason: "construction failed", Err: err}
	}
	return exp, nil
}

func (exporterFactory) buildOTLP(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	hostPort, scheme, err := splitEndpoint(cfg.OTLPEndpoint)
	if err != nil {
		return nil, &ExporterError{Exporter: "otlp", Reason: "malformed endpoint " + strconv.Quote(cfg.OTLPEndpoint), Err: err}
	}
	insecure := cfg.OTLPInsecure || scheme == "http"

	switch cfg.OTLPProtocol {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(hostPort)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.OTLPHeaders) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
		}
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
		if err != nil {
			return nil, &ExporterError{Exporter: "otlp", Reason: "construction failed", Err: err}
		}
		return exp, nil

	case ProtocolHTTPProtobuf:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(hostPort)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.OTLPHeaders) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, &ExporterError{Exporter: "otlp", Reason: "construction failed", Err: err}
		}
		return exp, nil

	default:
		return nil, &ExporterError{Exporter: "otlp", Reason: "unsupported protocol " + strconv.Quote(cfg.OTLPProtocol) + ", allowed values are grpc and http/protobuf"}
	}
}

// splitEndpoint normalizes an endpoint given either as host:port or as a URL
// with an http/https scheme. It returns the host:port form and the scheme,
// if one was present.
func splitEndpoint(endpoint string) (hostPort, scheme string, err error) {
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", "", err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", "", &url.Error{Op: "parse", URL: endpoint, Err: errUnsupportedScheme}
		}
		host := u.Host
		if u.Port() == "" {
			if u.Scheme == "https" {
				host = net.JoinHostPort(u.Hostname(), "443")
			} else {
				host = net.JoinHostPort(u.Hostname(), "80")
			}
		}
		return host, u.Scheme, nil
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return "", "", err
	}
	return endpoint, "", nil
}

var errUnsupportedScheme = &schemeError{}

type schemeError struct{}

func (*schemeError) Error() string { return "unsupported scheme, expected http or https" }

// shutdownExporters releases exporters that never made it into a provider.
func shutdownExporters(ctx context.Context, exporters []sdktrace.SpanExporter) {
	for _, exp := range exporters {
		_ = exp.Shutdown(ctx)
	}
}
