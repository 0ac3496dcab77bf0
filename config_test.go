package tracekit

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// clearEnv blanks every variable Resolve reads so values from the host
// environment cannot leak into a test case.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvServiceName, EnvServiceVersion, EnvDeploymentEnv, EnvExporterType,
		EnvJaegerAgentHost, EnvJaegerAgentPort,
		EnvOTLPEndpoint, EnvOTLPProtocol, EnvOTLPHeaders, EnvOTLPInsecure,
		EnvZipkinEndpoint, EnvSampler, EnvSampleRatio,
		EnvResourceAttributes, EnvExcludedURLs,
	} {
		t.Setenv(key, "")
	}
}

func TestResolve_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Resolve(WithServiceName("svc"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if cfg.ServiceName != "svc" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "svc")
	}
	if cfg.ServiceVersion != "unknown" {
		t.Errorf("ServiceVersion = %q, want %q", cfg.ServiceVersion, "unknown")
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "development")
	}
	if cfg.Exporter != ExporterConsole {
		t.Errorf("Exporter = %q, want %q", cfg.Exporter, ExporterConsole)
	}
	if cfg.JaegerHost != "localhost" || cfg.JaegerPort != 4317 {
		t.Errorf("Jaeger agent = %s:%d, want localhost:4317", cfg.JaegerHost, cfg.JaegerPort)
	}
	if cfg.Sampler != SamplerAlways || cfg.SampleRatio != 1.0 {
		t.Errorf("Sampler = %q/%g, want always/1", cfg.Sampler, cfg.SampleRatio)
	}
	if cfg.OTLPProtocol != ProtocolGRPC {
		t.Errorf("OTLPProtocol = %q, want %q", cfg.OTLPProtocol, ProtocolGRPC)
	}
}

func TestResolve_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvServiceName, "env-svc")
	t.Setenv(EnvServiceVersion, "2.3.4")
	t.Setenv(EnvDeploymentEnv, "staging")
	t.Setenv(EnvExporterType, "jaeger")
	t.Setenv(EnvJaegerAgentHost, "jaeger.internal")
	t.Setenv(EnvJaegerAgentPort, "14317")
	t.Setenv(EnvSampler, "ratio")
	t.Setenv(EnvSampleRatio, "0.25")
	t.Setenv(EnvResourceAttributes, "team=platform,region=eu-north-1")

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if cfg.ServiceName != "env-svc" || cfg.ServiceVersion != "2.3.4" || cfg.Environment != "staging" {
		t.Errorf("identity = %q/%q/%q, want env-svc/2.3.4/staging",
			cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	}
	if cfg.Exporter != ExporterJaeger {
		t.Errorf("Exporter = %q, want jaeger", cfg.Exporter)
	}
	if cfg.JaegerHost != "jaeger.internal" || cfg.JaegerPort != 14317 {
		t.Errorf("Jaeger agent = %s:%d, want jaeger.internal:14317", cfg.JaegerHost, cfg.JaegerPort)
	}
	if cfg.Sampler != SamplerRatio || cfg.SampleRatio != 0.25 {
		t.Errorf("Sampler = %q/%g, want ratio/0.25", cfg.Sampler, cfg.SampleRatio)
	}
	want := map[string]string{"team": "platform", "region": "eu-north-1"}
	if !reflect.DeepEqual(cfg.ResourceAttributes, want) {
		t.Errorf("ResourceAttributes = %v, want %v", cfg.ResourceAttributes, want)
	}
}

func TestResolve_ExplicitOverridesBeatEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvServiceName, "from-env")
	t.Setenv(EnvExporterType, "jaeger")
	t.Setenv(EnvSampleRatio, "0.9")

	cfg, err := Resolve(
		WithServiceName("explicit"),
		WithExporter("console"),
		WithSampleRatio(0.1),
	)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if cfg.ServiceName != "explicit" {
		t.Errorf("ServiceName = %q, want the explicit override", cfg.ServiceName)
	}
	if cfg.Exporter != ExporterConsole {
		t.Errorf("Exporter = %q, want the explicit override", cfg.Exporter)
	}
	if cfg.SampleRatio != 0.1 {
		t.Errorf("SampleRatio = %g, want the explicit override", cfg.SampleRatio)
	}
}

func TestResolve_Validation(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		opts      []Option
		wantField string
		wantIn    string
	}{
		{
			name:      "missing service name",
			wantField: "service_name",
		},
		{
			name:      "whitespace service name",
			opts:      []Option{WithServiceName("   ")},
			wantField: "service_name",
		},
		{
			name:      "unknown exporter names value and allowed set",
			opts:      []Option{WithServiceName("svc"), WithExporter("statsd")},
			wantField: "exporter_type",
			wantIn:    "statsd",
		},
		{
			name:      "otlp without endpoint mentions the endpoint",
			opts:      []Option{WithServiceName("svc"), WithExporter("otlp")},
			wantField: "otlp_endpoint",
			wantIn:    "endpoint",
		},
		{
			name:      "multi without otlp endpoint",
			opts:      []Option{WithServiceName("svc"), WithExporter("multi")},
			wantField: "otlp_endpoint",
		},
		{
			name:      "zipkin without endpoint",
			opts:      []Option{WithServiceName("svc"), WithExporter("zipkin")},
			wantField: "zipkin_endpoint",
		},
		{
			name:      "malformed jaeger port",
			env:       map[string]string{EnvJaegerAgentPort: "not-a-port"},
			opts:      []Option{WithServiceName("svc")},
			wantField: "jaeger_agent_port",
		},
		{
			name:      "jaeger port out of range",
			env:       map[string]string{EnvJaegerAgentPort: "70000"},
			opts:      []Option{WithServiceName("svc")},
			wantField: "jaeger_agent_port",
		},
		{
			name:      "unknown sampler",
			env:       map[string]string{EnvSampler: "coinflip"},
			opts:      []Option{WithServiceName("svc")},
			wantField: "sampler",
		},
		{
			name:      "malformed sample ratio",
			env:       map[string]string{EnvSampleRatio: "lots"},
			opts:      []Option{WithServiceName("svc")},
			wantField: "sample_ratio",
		},
		{
			name:      "sample ratio above one",
			opts:      []Option{WithServiceName("svc"), WithSampleRatio(1.5)},
			wantField: "sample_ratio",
		},
		{
			name:      "negative sample ratio",
			opts:      []Option{WithServiceName("svc"), WithSampleRatio(-0.1)},
			wantField: "sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Resolve(tt.opts...)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Resolve() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
			if tt.wantIn != "" && !strings.Contains(cfgErr.Error(), tt.wantIn) {
				t.Errorf("error %q does not mention %q", cfgErr.Error(), tt.wantIn)
			}
		})
	}
}

func TestResolve_ExporterTypeCaseInsensitive(t *testing.T) {
	clearEnv(t)

	for _, raw := range []string{"JAEGER", "Jaeger", " jaeger "} {
		cfg, err := Resolve(WithServiceName("svc"), WithExporter(raw))
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", raw, err)
		}
		if cfg.Exporter != ExporterJaeger {
			t.Errorf("Resolve(%q).Exporter = %q, want jaeger", raw, cfg.Exporter)
		}
	}
}

func TestResolve_ProtocolForcingAliases(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		alias string
		opts  []Option
		want  string
	}{
		{alias: "otlp_grpc", want: ProtocolGRPC},
		{alias: "otlp_http", want: ProtocolHTTPProtobuf},
		{
			alias: "otlp_http",
			opts:  []Option{WithOTLPProtocol(ProtocolGRPC)},
			want:  ProtocolGRPC, // explicit protocol beats the alias
		},
	}

	for _, tt := range tests {
		opts := append([]Option{
			WithServiceName("svc"),
			WithExporter(tt.alias),
			WithOTLPEndpoint("collector:4317"),
		}, tt.opts...)

		cfg, err := Resolve(opts...)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.alias, err)
		}
		if cfg.Exporter != ExporterOTLP {
			t.Errorf("Resolve(%q).Exporter = %q, want otlp", tt.alias, cfg.Exporter)
		}
		if cfg.OTLPProtocol != tt.want {
			t.Errorf("Resolve(%q).OTLPProtocol = %q, want %q", tt.alias, cfg.OTLPProtocol, tt.want)
		}
	}
}

func TestResolve_OTLPHeadersAndInsecure(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOTLPHeaders, "x-api-key=secret, x-tenant =acme,malformed")
	t.Setenv(EnvOTLPInsecure, "true")

	cfg, err := Resolve(WithServiceName("svc"), WithExporter("otlp"), WithOTLPEndpoint("collector:4317"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := map[string]string{"x-api-key": "secret", "x-tenant": "acme"}
	if !reflect.DeepEqual(cfg.OTLPHeaders, want) {
		t.Errorf("OTLPHeaders = %v, want %v (malformed entries dropped)", cfg.OTLPHeaders, want)
	}
	if !cfg.OTLPInsecure {
		t.Error("OTLPInsecure = false, want true")
	}
}

func TestResolve_DetachesFromCallerMaps(t *testing.T) {
	clearEnv(t)

	headers := map[string]string{"x-api-key": "secret"}
	attrs := map[string]string{"team": "platform"}

	cfg, err := Resolve(
		WithServiceName("svc"),
		WithExporter("otlp"),
		WithOTLPEndpoint("collector:4317"),
		WithOTLPHeaders(headers),
		WithResourceAttributes(attrs),
	)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	headers["x-api-key"] = "tampered"
	headers["extra"] = "surprise"
	attrs["team"] = "tampered"

	if cfg.OTLPHeaders["x-api-key"] != "secret" || len(cfg.OTLPHeaders) != 1 {
		t.Errorf("OTLPHeaders = %v, caller mutations must not reach the resolved config", cfg.OTLPHeaders)
	}
	if cfg.ResourceAttributes["team"] != "platform" {
		t.Errorf("ResourceAttributes = %v, caller mutations must not reach the resolved config", cfg.ResourceAttributes)
	}
}

func TestResolve_ExcludedURLsMergedAndDeduped(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvExcludedURLs, "/health, /metrics ,/health")

	cfg, err := Resolve(
		WithServiceName("svc"),
		WithExcludedURLs("/ready", "/metrics"),
	)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"/health", "/metrics", "/ready"}
	if !reflect.DeepEqual(cfg.ExcludedURLs, want) {
		t.Errorf("ExcludedURLs = %v, want %v", cfg.ExcludedURLs, want)
	}
}

func TestTracingConfig_CompatibleWith(t *testing.T) {
	base := TracingConfig{ServiceName: "svc", Exporter: ExporterConsole}

	if !base.CompatibleWith(TracingConfig{ServiceName: "svc", Exporter: ExporterConsole, Environment: "prod"}) {
		t.Error("environment differences must not break compatibility")
	}
	if base.CompatibleWith(TracingConfig{ServiceName: "other", Exporter: ExporterConsole}) {
		t.Error("a different service name is incompatible")
	}
	if base.CompatibleWith(TracingConfig{ServiceName: "svc", Exporter: ExporterJaeger}) {
		t.Error("a different exporter is incompatible")
	}
}

func TestLoadEnvFile(t *testing.T) {
	// godotenv.Load skips variables that are already present, so the keys
	// must be genuinely unset, not blanked. t.Setenv records the originals
	// for restoration before the explicit unset.
	t.Setenv(EnvServiceName, "")
	t.Setenv(EnvExporterType, "")
	os.Unsetenv(EnvServiceName)
	os.Unsetenv(EnvExporterType)

	path := filepath.Join(t.TempDir(), ".env")
	content := EnvServiceName + "=dotenv-svc\n" + EnvExporterType + "=console\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.ServiceName != "dotenv-svc" {
		t.Errorf("ServiceName = %q, want the value from the env file", cfg.ServiceName)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("LoadEnvFile() with a missing file should error")
	}
}
