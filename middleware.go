package tracekit

import (
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// PathExcluded reports whether a request path matches any of the excluded
// URL patterns. Matching is by literal path prefix: the pattern "/health"
// excludes "/health" and "/health/live". Note it also excludes "/healthz";
// end the pattern with a slash to match only the subtree.
func PathExcluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// responseWriter captures the status code and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int64
	headerWritten bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap supports http.ResponseController and other wrappers.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns an http middleware that opens a server span per inbound
// request, propagating any incoming trace context. Requests whose path
// matches an excluded pattern pass through untraced.
//
// The tracer is looked up through the manager on every request, so a forced
// reinitialization retargets existing attachments without rewiring them.
func (m *Manager) Middleware(excludedURLs ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PathExcluded(r.URL.Path, excludedURLs) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			spanName := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
			ctx, span := m.Tracer().Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(serverRequestAttributes(r)...),
			)
			defer span.End()

			rw := newResponseWriter(w)
			if span.SpanContext().HasTraceID() {
				rw.Header().Set("X-Trace-ID", span.SpanContext().TraceID().String())
			}

			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(
				semconv.HTTPStatusCode(rw.statusCode),
				attribute.Int64("http.response.size", rw.bytesWritten),
			)
			if rw.statusCode >= 500 {
				span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
			}
		})
	}
}

// serverRequestAttributes returns the standard server span attributes for an
// inbound request.
func serverRequestAttributes(r *http.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPMethod(r.Method),
		semconv.HTTPScheme(requestScheme(r)),
		semconv.HTTPTarget(r.URL.Path),
		semconv.NetHostName(r.Host),
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.HTTPUserAgent(ua))
	}
	if r.ContentLength > 0 {
		attrs = append(attrs, semconv.HTTPRequestContentLength(int(r.ContentLength)))
	}
	if ip := clientIP(r); ip != "" {
		attrs = append(attrs, semconv.NetSockPeerAddr(ip))
	}
	return attrs
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}
