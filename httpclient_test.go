package tracekit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func TestTransport_RecordsClientSpanAndPropagates(t *testing.T) {
	m, factory := newTracedManager(t)

	var gotTraceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent = r.Header.Get("traceparent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransportWithManager(nil, m)}
	resp, err := client.Get(server.URL + "/orders")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotTraceparent == "" {
		t.Error("outbound request is missing the injected traceparent header")
	}

	spans := collectSpans(t, m, factory)
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}

	span := spans[0]
	if span.Name != "HTTP GET" {
		t.Errorf("span name = %q, want %q", span.Name, "HTTP GET")
	}
	if span.SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", span.SpanKind)
	}
	if span.Status.Code == codes.Error {
		t.Error("a 2xx response must not mark the client span as an error")
	}

	var gotStatus bool
	for _, attr := range span.Attributes {
		if string(attr.Key) == "http.status_code" && attr.Value.AsInt64() == http.StatusOK {
			gotStatus = true
		}
	}
	if !gotStatus {
		t.Error("client span is missing the response status code attribute")
	}
}

func TestTransport_ErrorStatusMarksSpan(t *testing.T) {
	m, factory := newTracedManager(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransportWithManager(nil, m)}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	spans := collectSpans(t, m, factory)
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Error("a 4xx response must mark the client span as an error")
	}
}

func TestTransport_TransportFailureRecorded(t *testing.T) {
	m, factory := newTracedManager(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // connection refused from here on

	client := &http.Client{Transport: NewTransportWithManager(nil, m)}
	if _, err := client.Get(url); err == nil {
		t.Fatal("Get() to a closed server should fail")
	}

	spans := collectSpans(t, m, factory)
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Error("a transport failure must mark the client span as an error")
	}
	if len(spans[0].Events) == 0 {
		t.Error("the transport error should be recorded as a span event")
	}
}

func TestTransport_DoesNotMutateCallerRequest(t *testing.T) {
	m, _ := newTracedManager(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	client := &http.Client{Transport: NewTransportWithManager(nil, m)}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if req.Header.Get("traceparent") != "" {
		t.Error("the caller's request headers must not be mutated")
	}
}

func TestWrapClient(t *testing.T) {
	resetGlobal(t)

	base := &http.Client{Timeout: 0}
	wrapped := WrapClient(base)

	if wrapped == base {
		t.Error("WrapClient must return a copy, not mutate the caller's client")
	}
	if _, ok := wrapped.Transport.(*Transport); !ok {
		t.Errorf("wrapped transport is %T, want *Transport", wrapped.Transport)
	}
	if base.Transport != nil {
		t.Error("the original client's transport must be left alone")
	}

	if fresh := WrapClient(nil); fresh == nil {
		t.Error("WrapClient(nil) should return a usable client")
	} else if _, ok := fresh.Transport.(*Transport); !ok {
		t.Errorf("fresh transport is %T, want *Transport", fresh.Transport)
	}
}
