// Package observability provides the structured logger and the prediction
// metrics, exported to Prometheus and summarised by the status endpoint.
package observability
