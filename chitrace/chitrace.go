// Package chitrace attaches tracekit request tracing to go-chi routers.
package chitrace

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/jimmitjoo/tracekit"
)

// attachment is the per-router instrumentation record. The excluded-URL
// filter lives behind a lock so a forced re-setup can swap it without
// registering a second middleware.
type attachment struct {
	mu       sync.Mutex
	excluded []string
}

func (a *attachment) excludedURLs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.excluded
}

func (a *attachment) setExcluded(patterns []string) {
	a.mu.Lock()
	a.excluded = patterns
	a.mu.Unlock()
}

var (
	mu       sync.Mutex
	attached = make(map[*chi.Mux]*attachment)
)

// Setup initializes the tracing backend and attaches request instrumentation
// to the router. Repeated calls with the same router attach nothing further
// and return the current backend handle, so Setup is safe to call from
// multiple startup paths.
//
// With tracekit.WithForceReinit the backend is rebuilt and the router's
// excluded-URL filter is replaced in place; the middleware itself is never
// registered twice. Spans follow the new backend automatically because the
// middleware resolves its tracer through the manager per request.
//
// Setup must run before the router's routes are registered; chi rejects
// middleware added later, which surfaces as an InstrumentationError. The
// backend stays initialized when attachment fails.
func Setup(router *chi.Mux, opts ...tracekit.Option) (trace.TracerProvider, error) {
	if router == nil {
		return nil, &tracekit.InstrumentationError{Framework: "chi", Reason: "router must not be nil"}
	}

	handle, cfg, forceReinit, err := tracekit.Bootstrap(opts...)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	if rec, ok := attached[router]; ok {
		if forceReinit {
			rec.setExcluded(cfg.ExcludedURLs)
		}
		return handle, nil
	}

	rec := &attachment{excluded: cfg.ExcludedURLs}
	if err := attach(router, rec); err != nil {
		return nil, err
	}
	attached[router] = rec
	return handle, nil
}

// attach registers the tracing middleware. chi panics when middleware is
// added after the first route; that is translated to an error here.
func attach(router *chi.Mux, rec *attachment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &tracekit.InstrumentationError{
				Framework: "chi",
				Reason:    "middleware rejected by router",
				Err:       fmt.Errorf("%v", r),
			}
		}
	}()

	traced := tracekit.Default().Middleware()
	router.Use(func(next http.Handler) http.Handler {
		tracedNext := traced(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tracekit.PathExcluded(r.URL.Path, rec.excludedURLs()) {
				next.ServeHTTP(w, r)
				return
			}
			tracedNext.ServeHTTP(w, r)
		})
	})
	return nil
}

// IsAttached reports whether the router already carries instrumentation.
func IsAttached(router *chi.Mux) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := attached[router]
	return ok
}

// ResetAttachments clears the instrumentation records. Test-only: existing
// routers keep their middleware, so only use it alongside fresh routers.
func ResetAttachments() {
	mu.Lock()
	attached = make(map[*chi.Mux]*attachment)
	mu.Unlock()
}
