package tracekit

import "encoding/base64"

// Vendor presets return the override set for a hosted tracing backend, ready
// to pass to Initialize or Resolve:
//
//	tp, err := tracekit.Initialize(append(
//	    tracekit.Honeycomb(apiKey, "prod-traces"),
//	    tracekit.WithServiceName("checkout"),
//	)...)

// Datadog targets the Datadog trace intake over OTLP http/protobuf.
func Datadog(apiKey, site string) []Option {
	if site == "" {
		site = "datadoghq.com"
	}
	return []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPProtocol(ProtocolHTTPProtobuf),
		WithOTLPEndpoint("https://trace.agent." + site + ":443"),
		WithOTLPHeaders(map[string]string{"DD-API-KEY": apiKey}),
	}
}

// Dynatrace targets a Dynatrace environment's OTLP ingest.
func Dynatrace(endpoint, token string) []Option {
	return []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPProtocol(ProtocolHTTPProtobuf),
		WithOTLPEndpoint(endpoint),
		WithOTLPHeaders(map[string]string{"Authorization": "Api-Token " + token}),
	}
}

// NewRelic targets the New Relic OTLP endpoint.
func NewRelic(licenseKey string) []Option {
	return []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPProtocol(ProtocolHTTPProtobuf),
		WithOTLPEndpoint("https://otlp.nr-data.net:4318"),
		WithOTLPHeaders(map[string]string{"api-key": licenseKey}),
	}
}

// Honeycomb targets the Honeycomb OTLP endpoint.
func Honeycomb(apiKey, dataset string) []Option {
	headers := map[string]string{"x-honeycomb-team": apiKey}
	if dataset != "" {
		headers["x-honeycomb-dataset"] = dataset
	}
	return []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPProtocol(ProtocolHTTPProtobuf),
		WithOTLPEndpoint("https://api.honeycomb.io:443"),
		WithOTLPHeaders(headers),
	}
}

// ElasticAPM targets an Elastic APM server's OTLP intake.
func ElasticAPM(serverURL, secretToken string) []Option {
	return []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPProtocol(ProtocolHTTPProtobuf),
		WithOTLPEndpoint(serverURL),
		WithOTLPHeaders(map[string]string{"Authorization": "Bearer " + secretToken}),
	}
}

// GrafanaCloud targets a Grafana Cloud OTLP gateway, authenticating with the
// stack's instance ID and API token.
func GrafanaCloud(endpoint, instanceID, token string) []Option {
	auth := base64.StdEncoding.EncodeToString([]byte(instanceID + ":" + token))
	return []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPProtocol(ProtocolHTTPProtobuf),
		WithOTLPEndpoint(endpoint),
		WithOTLPHeaders(map[string]string{"Authorization": "Basic " + auth}),
	}
}

// JaegerCollector targets a Jaeger collector's OTLP gRPC receiver, with
// optional basic auth.
func JaegerCollector(endpoint, username, password string) []Option {
	opts := []Option{
		WithExporter(string(ExporterOTLP)),
		WithOTLPEndpoint(endpoint),
	}
	if username != "" && password != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		opts = append(opts, WithOTLPHeaders(map[string]string{"Authorization": "Basic " + auth}))
	}
	return opts
}
