// Package gintrace attaches tracekit request tracing to gin engines, built
// on the otelgin contrib instrumentation.
package gintrace

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jimmitjoo/tracekit"
)

// attachment is the per-engine instrumentation record. The registered gin
// middleware delegates to the handler stored here, so a forced re-setup
// swaps the otelgin handler instead of registering a second one.
type attachment struct {
	mu      sync.Mutex
	handler gin.HandlerFunc
}

func (a *attachment) current() gin.HandlerFunc {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

func (a *attachment) replace(h gin.HandlerFunc) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

var (
	mu       sync.Mutex
	attached = make(map[*gin.Engine]*attachment)
)

// Setup initializes the tracing backend and attaches otelgin request
// instrumentation to the engine. Repeated calls with the same engine attach
// nothing further and return the current backend handle.
//
// With tracekit.WithForceReinit the backend is rebuilt and the engine's
// instrumentation handler is replaced in place, picking up the new backend
// and excluded-URL filter. A failed attachment (nil engine) surfaces as an
// InstrumentationError and leaves the backend initialized.
func Setup(engine *gin.Engine, opts ...tracekit.Option) (trace.TracerProvider, error) {
	if engine == nil {
		return nil, &tracekit.InstrumentationError{Framework: "gin", Reason: "engine must not be nil"}
	}

	handle, cfg, forceReinit, err := tracekit.Bootstrap(opts...)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	if rec, ok := attached[engine]; ok {
		if forceReinit {
			rec.replace(buildHandler(handle, cfg))
		}
		return handle, nil
	}

	rec := &attachment{handler: buildHandler(handle, cfg)}
	engine.Use(func(c *gin.Context) {
		rec.current()(c)
	})
	attached[engine] = rec
	return handle, nil
}

func buildHandler(handle trace.TracerProvider, cfg tracekit.TracingConfig) gin.HandlerFunc {
	excluded := cfg.ExcludedURLs
	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithTracerProvider(handle),
		otelgin.WithFilter(func(r *http.Request) bool {
			return !tracekit.PathExcluded(r.URL.Path, excluded)
		}),
	)
}

// IsAttached reports whether the engine already carries instrumentation.
func IsAttached(engine *gin.Engine) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := attached[engine]
	return ok
}

// ResetAttachments clears the instrumentation records. Test-only: existing
// engines keep their middleware, so only use it alongside fresh engines.
func ResetAttachments() {
	mu.Lock()
	attached = make(map[*gin.Engine]*attachment)
	mu.Unlock()
}
