// Package httptrace attaches tracekit request tracing to plain net/http
// servers.
//
// A http.ServeMux cannot be wrapped in place, so Setup returns the traced
// handler to serve instead of the mux:
//
//	handler, _, err := httptrace.Setup(mux, tracekit.WithServiceName("svc"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(addr, handler)
package httptrace

import (
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/jimmitjoo/tracekit"
)

// attachment is the per-mux instrumentation record. It owns the wrapped
// handler handed back to the caller; the excluded-URL filter behind it is
// swappable so a forced re-setup does not produce a second wrapper.
type attachment struct {
	mu       sync.Mutex
	excluded []string
	handler  http.Handler
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
	attached = make(map[*http.ServeMux]*attachment)
)

// Setup initializes the tracing backend and wraps the mux with request
// instrumentation. Repeated calls with the same mux return the same wrapped
// handler and the current backend handle; no second wrapper is created.
//
// With tracekit.WithForceReinit the backend is rebuilt and the existing
// wrapper's excluded-URL filter is replaced; spans follow the new backend
// because the wrapper resolves its tracer through the manager per request.
func Setup(mux *http.ServeMux, opts ...tracekit.Option) (http.Handler, trace.TracerProvider, error) {
	if mux == nil {
		return nil, nil, &tracekit.InstrumentationError{Framework: "http", Reason: "mux must not be nil"}
	}

	handle, cfg, forceReinit, err := tracekit.Bootstrap(opts...)
	if err != nil {
		return nil, nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	if rec, ok := attached[mux]; ok {
		if forceReinit {
			rec.setExcluded(cfg.ExcludedURLs)
		}
		return rec.handler, handle, nil
	}

	rec := &attachment{excluded: cfg.ExcludedURLs}
	traced := tracekit.Default().Middleware()(mux)
	rec.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tracekit.PathExcluded(r.URL.Path, rec.excludedURLs()) {
			mux.ServeHTTP(w, r)
			return
		}
		traced.ServeHTTP(w, r)
	})
	attached[mux] = rec
	return rec.handler, handle, nil
}

// IsAttached reports whether the mux already carries instrumentation.
func IsAttached(mux *http.ServeMux) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := attached[mux]
	return ok
}

// ResetAttachments clears the instrumentation records. Test-only.
func ResetAttachments() {
	mu.Lock()
	attached = make(map[*http.ServeMux]*attachment)
	mu.Unlock()
}
