package tracekit

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ExporterType selects the span exporter pipeline.
type ExporterType string

const (
	// ExporterJaeger exports to a Jaeger agent. Jaeger ingests OTLP natively,
	// so the handle speaks OTLP gRPC to the configured agent host/port.
	ExporterJaeger ExporterType = "jaeger"
	// ExporterOTLP exports to an OTLP collector over gRPC or http/protobuf.
	ExporterOTLP ExporterType = "otlp"
	// ExporterConsole writes spans to stdout. Local and synchronous, no network.
	ExporterConsole ExporterType = "console"
	// ExporterMulti fans out to both the Jaeger and OTLP backends.
	ExporterMulti ExporterType = "multi"
	// ExporterZipkin exports directly to a Zipkin collector.
	ExporterZipkin ExporterType = "zipkin"
)

// SamplerType selects the sampling strategy.
type SamplerType string

const (
	// SamplerAlways samples every trace.
	SamplerAlways SamplerType = "always"
	// SamplerNever samples no traces.
	SamplerNever SamplerType = "never"
	// SamplerRatio samples a fraction of traces.
	SamplerRatio SamplerType = "ratio"
	// SamplerParentBased follows the parent span's sampling decision.
	SamplerParentBased SamplerType = "parent"
)

// OTLP transport protocols.
const (
	ProtocolGRPC         = "grpc"
	ProtocolHTTPProtobuf = "http/protobuf"
)

// Environment variables read by Resolve.
const (
	EnvServiceName        = "OTEL_SERVICE_NAME"
	EnvServiceVersion     = "OTEL_SERVICE_VERSION"
	EnvDeploymentEnv      = "OTEL_DEPLOYMENT_ENVIRONMENT"
	EnvExporterType       = "OTEL_EXPORTER_TYPE"
	EnvJaegerAgentHost    = "OTEL_EXPORTER_JAEGER_AGENT_HOST"
	EnvJaegerAgentPort    = "OTEL_EXPORTER_JAEGER_AGENT_PORT"
	EnvOTLPEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPProtocol       = "OTEL_EXPORTER_OTLP_PROTOCOL"
	EnvOTLPHeaders        = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure       = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvZipkinEndpoint     = "OTEL_EXPORTER_ZIPKIN_ENDPOINT"
	EnvSampler            = "OTEL_SAMPLER"
	EnvSampleRatio        = "OTEL_SAMPLE_RATIO"
	EnvResourceAttributes = "OTEL_RESOURCE_ATTRIBUTES"
	EnvExcludedURLs       = "OTEL_EXCLUDED_URLS"
)

// Built-in defaults.
const (
	defaultServiceVersion = "unknown"
	defaultEnvironment    = "development"
	defaultJaegerHost     = "localhost"
	defaultJaegerPort     = 4317
)

// TracingConfig is the normalized configuration record produced by Resolve.
// It is built fresh per Initialize call and treated as immutable afterwards.
type TracingConfig struct {
	// ServiceName identifies this service in traces. Required.
	ServiceName string

	// ServiceVersion tags spans with the service version.
	ServiceVersion string

	// Environment tags spans with the deployment environment.
	Environment string

	// Exporter selects the exporter pipeline.
	Exporter ExporterType

	// JaegerHost and JaegerPort locate the Jaeger agent's OTLP receiver.
	JaegerHost string
	JaegerPort int

	// OTLPEndpoint is the OTLP collector endpoint. Required for the otlp and
	// multi exporters.
	OTLPEndpoint string

	// OTLPProtocol is "grpc" or "http/protobuf".
	OTLPProtocol string

	// OTLPHeaders are sent with every export batch (e.g. authentication).
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS on the OTLP connection.
	OTLPInsecure bool

	// ZipkinEndpoint is the Zipkin collector URL. Required for zipkin.
	ZipkinEndpoint string

	// Sampler and SampleRatio control trace sampling.
	Sampler     SamplerType
	SampleRatio float64

	// ResourceAttributes are added to every span's resource.
	ResourceAttributes map[string]string

	// ExcludedURLs suppress span creation for matching request paths.
	// A path is excluded when it equals a pattern or begins with it: the
	// matching semantics are path-prefix, so "/health" also excludes
	// "/health/live". Duplicates are removed, insertion order is kept.
	ExcludedURLs []string
}

// CompatibleWith reports whether two configurations are equivalent for the
// purpose of idempotent initialization: same service identity, same exporter.
func (c TracingConfig) CompatibleWith(other TracingConfig) bool {
	return c.ServiceName == other.ServiceName && c.Exporter == other.Exporter
}

// options accumulates explicit overrides before resolution.
type options struct {
	serviceName    string
	serviceVersion string
	environment    string
	exporter       string
	jaegerHost     string
	jaegerPort     int
	otlpEndpoint   string
	otlpProtocol   string
	otlpHeaders    map[string]string
	otlpInsecure   *bool
	zipkinEndpoint string
	sampler        string
	sampleRatio    *float64
	resourceAttrs  map[string]string
	excludedURLs   []string
	forceReinit    bool
}

// Option is an explicit configuration override. Options always take
// precedence over environment variables, which take precedence over defaults.
type Option func(*options)

// WithServiceName sets the service identity.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithServiceVersion sets the service version tag.
func WithServiceVersion(version string) Option {
	return func(o *options) { o.serviceVersion = version }
}

// WithEnvironment sets the deployment environment tag.
func WithEnvironment(env string) Option {
	return func(o *options) { o.environment = env }
}

// WithExporter selects the exporter pipeline. The value is matched
// case-insensitively against the ExporterType enum. The aliases "otlp_grpc"
// and "otlp_http" select the otlp exporter with the transport baked in.
func WithExporter(exporter string) Option {
	return func(o *options) { o.exporter = exporter }
}

// WithJaegerAgent sets the Jaeger agent host and port.
func WithJaegerAgent(host string, port int) Option {
	return func(o *options) {
		o.jaegerHost = host
		o.jaegerPort = port
	}
}

// WithOTLPEndpoint sets the OTLP collector endpoint.
func WithOTLPEndpoint(endpoint string) Option {
	return func(o *options) { o.otlpEndpoint = endpoint }
}

// WithOTLPProtocol sets the OTLP transport: "grpc" or "http/protobuf".
func WithOTLPProtocol(protocol string) Option {
	return func(o *options) { o.otlpProtocol = protocol }
}

// WithOTLPHeaders sets headers sent with every OTLP export.
func WithOTLPHeaders(headers map[string]string) Option {
	return func(o *options) { o.otlpHeaders = headers }
}

// WithOTLPInsecure disables TLS on the OTLP connection.
func WithOTLPInsecure(insecure bool) Option {
	return func(o *options) { o.otlpInsecure = &insecure }
}

// WithZipkinEndpoint sets the Zipkin collector URL.
func WithZipkinEndpoint(endpoint string) Option {
	return func(o *options) { o.zipkinEndpoint = endpoint }
}

// WithSampler selects the sampling strategy.
func WithSampler(sampler SamplerType) Option {
	return func(o *options) { o.sampler = string(sampler) }
}

// WithSampleRatio sets the sampled fraction for SamplerRatio.
func WithSampleRatio(ratio float64) Option {
	return func(o *options) { o.sampleRatio = &ratio }
}

// WithResourceAttributes adds attributes to every span's resource.
func WithResourceAttributes(attrs map[string]string) Option {
	return func(o *options) { o.resourceAttrs = attrs }
}

// WithExcludedURLs adds request path patterns whose spans are suppressed.
// See TracingConfig.ExcludedURLs for the matching semantics.
func WithExcludedURLs(patterns ...string) Option {
	return func(o *options) { o.excludedURLs = append(o.excludedURLs, patterns...) }
}

// WithForceReinit tears down any existing backend before constructing a new
// one. It also overrides a provider installed by external code.
func WithForceReinit() Option {
	return func(o *options) { o.forceReinit = true }
}

func newOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LoadEnvFile loads environment variables from the given .env files without
// overriding variables that are already set. Missing files are an error.
func LoadEnvFile(paths ...string) error {
	return godotenv.Load(paths...)
}

// Resolve turns explicit overrides, the current environment and built-in
// defaults into a normalized TracingConfig. It is a pure function of its
// inputs and the environment snapshot: no global state is touched.
func Resolve(opts ...Option) (TracingConfig, error) {
	return newOptions(opts...).resolve()
}

func (o *options) resolve() (TracingConfig, error) {
	cfg := TracingConfig{
		ServiceName:    strings.TrimSpace(pick(o.serviceName, os.Getenv(EnvServiceName), "")),
		ServiceVersion: pick(o.serviceVersion, os.Getenv(EnvServiceVersion), defaultServiceVersion),
		Environment:    pick(o.environment, os.Getenv(EnvDeploymentEnv), defaultEnvironment),
	}

	if cfg.ServiceName == "" {
		return TracingConfig{}, &ConfigError{Field: "service_name", Reason: "must not be empty or whitespace"}
	}

	rawExporter := pick(o.exporter, os.Getenv(EnvExporterType), string(ExporterConsole))

	// The otlp_grpc and otlp_http aliases select the otlp exporter with the
	// transport baked in. An explicit WithOTLPProtocol still wins.
	var aliasProtocol string
	switch strings.ToLower(strings.TrimSpace(rawExporter)) {
	case "otlp_grpc":
		rawExporter, aliasProtocol = string(ExporterOTLP), ProtocolGRPC
	case "otlp_http":
		rawExporter, aliasProtocol = string(ExporterOTLP), ProtocolHTTPProtobuf
	}

	exporter, err := parseExporterType(rawExporter)
	if err != nil {
		return TracingConfig{}, err
	}
	cfg.Exporter = exporter

	cfg.JaegerHost = pick(o.jaegerHost, os.Getenv(EnvJaegerAgentHost), defaultJaegerHost)
	cfg.JaegerPort = defaultJaegerPort
	if port := os.Getenv(EnvJaegerAgentPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return TracingConfig{}, &ConfigError{Field: "jaeger_agent_port", Value: port, Reason: "must be a port number between 1 and 65535"}
		}
		cfg.JaegerPort = p
	}
	if o.jaegerPort != 0 {
		if o.jaegerPort < 0 || o.jaegerPort > 65535 {
			return TracingConfig{}, &ConfigError{Field: "jaeger_agent_port", Value: strconv.Itoa(o.jaegerPort), Reason: "must be a port number between 1 and 65535"}
		}
		cfg.JaegerPort = o.jaegerPort
	}

	cfg.OTLPEndpoint = pick(o.otlpEndpoint, os.Getenv(EnvOTLPEndpoint), "")
	cfg.OTLPProtocol = pick(o.otlpProtocol, aliasProtocol, os.Getenv(EnvOTLPProtocol), ProtocolGRPC)
	if o.otlpHeaders != nil {
		// Copied so the caller mutating its map later cannot reach into the
		// resolved config.
		cfg.OTLPHeaders = copyMap(o.otlpHeaders)
	} else {
		cfg.OTLPHeaders = parseKVList(os.Getenv(EnvOTLPHeaders))
	}
	if o.otlpInsecure != nil {
		cfg.OTLPInsecure = *o.otlpInsecure
	} else {
		cfg.OTLPInsecure = os.Getenv(EnvOTLPInsecure) == "true"
	}

	cfg.ZipkinEndpoint = pick(o.zipkinEndpoint, os.Getenv(EnvZipkinEndpoint), "")

	cfg.Sampler = SamplerType(pick(o.sampler, os.Getenv(EnvSampler), string(SamplerAlways)))
	switch cfg.Sampler {
	case SamplerAlways, SamplerNever, SamplerRatio, SamplerParentBased:
	default:
		return TracingConfig{}, &ConfigError{Field: "sampler", Value: string(cfg.Sampler), Reason: "allowed values are always, never, ratio, parent"}
	}

	cfg.SampleRatio = 1.0
	if ratio := os.Getenv(EnvSampleRatio); ratio != "" {
		r, err := strconv.ParseFloat(ratio, 64)
		if err != nil {
			return TracingConfig{}, &ConfigError{Field: "sample_ratio", Value: ratio, Reason: "must be a number between 0.0 and 1.0"}
		}
		cfg.SampleRatio = r
	}
	if o.sampleRatio != nil {
		cfg.SampleRatio = *o.sampleRatio
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return TracingConfig{}, &ConfigError{Field: "sample_ratio", Value: fmt.Sprintf("%g", cfg.SampleRatio), Reason: "must be between 0.0 and 1.0"}
	}

	cfg.ResourceAttributes = parseKVList(os.Getenv(EnvResourceAttributes))
	for k, v := range o.resourceAttrs {
		if cfg.ResourceAttributes == nil {
			cfg.ResourceAttributes = make(map[string]string)
		}
		cfg.ResourceAttributes[k] = v
	}

	var patterns []string
	if fromEnv := os.Getenv(EnvExcludedURLs); fromEnv != "" {
		for _, p := range strings.Split(fromEnv, ",") {
			patterns = append(patterns, strings.TrimSpace(p))
		}
	}
	patterns = append(patterns, o.excludedURLs...)
	cfg.ExcludedURLs = dedupe(patterns)

	// Fail fast on missing exporter parameters before any construction.
	// "multi" needs the full jaeger and otlp parameter sets, so the otlp
	// endpoint requirement applies to it as well.
	switch cfg.Exporter {
	case ExporterOTLP, ExporterMulti:
		if cfg.OTLPEndpoint == "" {
			return TracingConfig{}, &ConfigError{Field: "otlp_endpoint", Reason: "a non-empty endpoint is required for the " + string(cfg.Exporter) + " exporter (set " + EnvOTLPEndpoint + " or pass WithOTLPEndpoint)"}
		}
	case ExporterZipkin:
		if cfg.ZipkinEndpoint == "" {
			return TracingConfig{}, &ConfigError{Field: "zipkin_endpoint", Reason: "a non-empty endpoint is required for the zipkin exporter (set " + EnvZipkinEndpoint + " or pass WithZipkinEndpoint)"}
		}
	}

	return cfg, nil
}

func parseExporterType(raw string) (ExporterType, error) {
	switch ExporterType(strings.ToLower(strings.TrimSpace(raw))) {
	case ExporterJaeger:
		return ExporterJaeger, nil
	case ExporterOTLP:
		return ExporterOTLP, nil
	case ExporterConsole:
		return ExporterConsole, nil
	case ExporterMulti:
		return ExporterMulti, nil
	case ExporterZipkin:
		return ExporterZipkin, nil
	default:
		return "", &ConfigError{Field: "exporter_type", Value: raw, Reason: "allowed values are jaeger, otlp, console, multi, zipkin"}
	}
}

// parseKVList parses "key1=value1,key2=value2" into a map. Entries without
// an equals sign are ignored. Returns nil for empty input.
func parseKVList(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// dedupe removes duplicates and empty entries, keeping first-seen order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func copyMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
