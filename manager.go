package tracekit

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// managerState is the lifecycle of a Manager.
type managerState int

const (
	// stateUninitialized: no backend handle exists.
	stateUninitialized managerState = iota
	// stateInitialized: this manager constructed and owns the backend.
	stateInitialized
	// stateExternal: a backend installed by external code was detected and
	// wrapped; this manager registered no exporters.
	stateExternal
)

// shutdownTimeout bounds how long a teardown waits for pending span exports.
const shutdownTimeout = 5 * time.Second

// Manager owns the process-wide tracer provider. All lifecycle transitions
// run under a single lock, so concurrent Initialize calls observe a
// consistent outcome and at most one backend is ever constructed.
//
// Most applications use the package-level functions, which operate on the
// Default manager. A separate Manager is only needed for tests or for
// embedding into a larger lifecycle system.
type Manager struct {
	mu      sync.RWMutex
	log     *zap.Logger
	factory ExporterFactory

	state     managerState
	activeCfg *TracingConfig
	provider  trace.TracerProvider
	owned     *sdktrace.TracerProvider
	exporters []sdktrace.SpanExporter
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger for lifecycle transitions.
// The default is a no-op logger.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithExporterFactory replaces the exporter factory. Used by tests to count
// constructions and to observe teardown.
func WithExporterFactory(factory ExporterFactory) ManagerOption {
	return func(m *Manager) {
		if factory != nil {
			m.factory = factory
		}
	}
}

// NewManager creates an uninitialized manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		log:     zap.NewNop(),
		factory: NewExporterFactory(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	defaultMu      sync.RWMutex
	defaultManager = NewManager()
)

// Default returns the process-wide manager used by the package-level
// functions and the framework adapters.
func Default() *Manager {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultManager
}

// SetDefault replaces the process-wide manager. Intended for tests that need
// an instrumented factory or logger behind the package-level API.
func SetDefault(m *Manager) {
	if m == nil {
		return
	}
	defaultMu.Lock()
	defaultManager = m
	defaultMu.Unlock()
}

// IsTracerAlreadyInitialized reports whether a real (SDK-backed) tracer
// provider is installed globally, whether by this package or by external
// code. The default global provider is a passthrough, not an SDK provider,
// so a fresh process reports false.
func IsTracerAlreadyInitialized() bool {
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	return ok
}

// Initialize resolves the manager to an initialized state and returns the
// backend handle. The whole detect/build/register sequence runs under the
// manager lock.
//
// Behavior:
//   - Already initialized, forceReinit false: the existing handle is
//     returned unchanged. No construction, no side effects. A config that
//     is incompatible with the active one (different service name or
//     exporter) is logged and otherwise ignored.
//   - Already initialized, forceReinit true: the current backend and every
//     exporter it owns are torn down synchronously, then a fresh backend is
//     constructed.
//   - Uninitialized with an SDK provider already installed globally by
//     external code: the external provider is wrapped as the handle and no
//     exporters are registered, unless forceReinit overrides it.
//   - Otherwise: exporters are built, registered with a new provider, and
//     the provider is installed globally.
//
// On a construction failure the manager keeps no partial state and the
// error propagates unmodified. A failed forceReinit that already tore down
// the old backend leaves the manager uninitialized with no tracing; that is
// degraded but consistent, and the caller may retry with a corrected config.
func (m *Manager) Initialize(ctx context.Context, cfg TracingConfig, forceReinit bool) (trace.TracerProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateUninitialized {
		if !forceReinit {
			if m.activeCfg != nil && !cfg.CompatibleWith(*m.activeCfg) {
				m.log.Warn("tracing already initialized with a different configuration, returning existing backend",
					zap.String("active_service", m.activeCfg.ServiceName),
					zap.String("requested_service", cfg.ServiceName))
			}
			return m.provider, nil
		}
		m.teardownLocked(ctx)
	}

	if !forceReinit {
		if external, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
			m.log.Warn("tracer provider already installed by external code, wrapping it instead of registering new exporters",
				zap.String("service", cfg.ServiceName))
			m.provider = external
			m.state = stateExternal
			return external, nil
		}
	}

	exporters, err := m.factory.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(buildResource(cfg)),
		sdktrace.WithSampler(buildSampler(cfg)),
	}
	for _, exp := range exporters {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exp))
	}
	provider := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	active := cfg
	m.activeCfg = &active
	m.provider = provider
	m.owned = provider
	m.exporters = exporters
	m.state = stateInitialized

	m.log.Info("tracing initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("exporter", string(cfg.Exporter)),
		zap.String("environment", cfg.Environment))

	return provider, nil
}

// teardownLocked releases the backend and exporter handles. Callers hold m.mu.
func (m *Manager) teardownLocked(ctx context.Context) {
	if m.owned != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := m.owned.Shutdown(shutdownCtx); err != nil {
			m.log.Warn("tracer provider shutdown reported an error", zap.Error(err))
		}
		cancel()
		// Restore the global to a no-op provider so that a later
		// initialization does not mistake our retired provider for an
		// externally installed one.
		otel.SetTracerProvider(noop.NewTracerProvider())
	}
	m.state = stateUninitialized
	m.activeCfg = nil
	m.provider = nil
	m.owned = nil
	m.exporters = nil
}

// Reset tears down the backend and returns the manager to the uninitialized
// state. Safe to call when never initialized. Intended for test isolation.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(ctx)
}

// IsInitialized reports whether this manager constructed and owns a backend.
// It never blocks on an in-flight construction longer than the lock handoff.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateInitialized
}

// IsExternallyInitialized reports whether the manager wrapped a provider
// installed by external code instead of constructing its own.
func (m *Manager) IsExternallyInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateExternal
}

// TracerProvider returns the backend handle, or nil when uninitialized.
func (m *Manager) TracerProvider() trace.TracerProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provider
}

// ActiveConfig returns the configuration the backend was built from.
// The second return is false when the manager did not construct the backend
// (uninitialized or externally initialized).
func (m *Manager) ActiveConfig() (TracingConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeCfg == nil {
		return TracingConfig{}, false
	}
	return *m.activeCfg, true
}

// Tracer returns a tracer bound to the current backend. Before
// initialization it falls back to the global tracer, which is a no-op in a
// fresh process. Instrumentation reads the tracer through this method on
// every request, so a force reinitialization takes effect without
// reattaching hooks.
func (m *Manager) Tracer() trace.Tracer {
	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()
	if provider == nil {
		return otel.Tracer(tracerName)
	}
	return provider.Tracer(tracerName)
}

// ForceFlush exports all pending spans immediately. A no-op when the manager
// does not own the backend.
func (m *Manager) ForceFlush(ctx context.Context) error {
	m.mu.RLock()
	owned := m.owned
	m.mu.RUnlock()
	if owned == nil {
		return nil
	}
	return owned.ForceFlush(ctx)
}

const tracerName = "github.com/jimmitjoo/tracekit"

func buildResource(cfg TracingConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func buildSampler(cfg TracingConfig) sdktrace.Sampler {
	switch cfg.Sampler {
	case SamplerNever:
		return sdktrace.NeverSample()
	case SamplerRatio:
		return sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	case SamplerParentBased:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.AlwaysSample()
	}
}

// Initialize resolves configuration from options and the environment and
// initializes the Default manager. N calls with compatible configuration
// perform exactly one construction and return the same handle.
func Initialize(opts ...Option) (trace.TracerProvider, error) {
	o := newOptions(opts...)
	cfg, err := o.resolve()
	if err != nil {
		return nil, err
	}
	return Default().Initialize(context.Background(), cfg, o.forceReinit)
}

// Bootstrap resolves configuration and initializes the Default manager,
// returning the backend handle alongside the resolved configuration and
// whether a forced reinitialization was requested. It is the entry point the
// framework adapters build on; most applications call Initialize instead.
func Bootstrap(opts ...Option) (trace.TracerProvider, TracingConfig, bool, error) {
	o := newOptions(opts...)
	cfg, err := o.resolve()
	if err != nil {
		return nil, TracingConfig{}, false, err
	}
	tp, err := Default().Initialize(context.Background(), cfg, o.forceReinit)
	if err != nil {
		return nil, TracingConfig{}, false, err
	}
	return tp, cfg, o.forceReinit, nil
}

// ForceReinitialize tears down any existing backend on the Default manager
// and constructs a fresh one from the given options.
func ForceReinitialize(opts ...Option) (trace.TracerProvider, error) {
	return Initialize(append(opts, WithForceReinit())...)
}

// IsInitialized reports whether the Default manager owns a backend.
func IsInitialized() bool {
	return Default().IsInitialized()
}

// IsExternallyInitialized reports whether the Default manager wrapped a
// provider installed by external code.
func IsExternallyInitialized() bool {
	return Default().IsExternallyInitialized()
}

// Tracer returns a tracer bound to the Default manager's backend.
func Tracer() trace.Tracer {
	return Default().Tracer()
}

// TracerProvider returns the Default manager's backend handle, or nil.
func TracerProvider() trace.TracerProvider {
	return Default().TracerProvider()
}

// Reset returns the Default manager to the uninitialized state. Test-only.
func Reset() {
	Default().Reset(context.Background())
}
