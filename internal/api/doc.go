// Package api hosts the HTTP server, middleware, and REST handlers for the
// recipe enrichment service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs for job submission, GET /v1/jobs/{id} for polling.
//   - GET /v1/jobs/{id}/events (SSE) and /v1/jobs/{id}/ws for live status.
//   - GET /v1/runs for run history via the HistoryRepository interface.
//
// The stream endpoints bypass the request timeout because they intentionally
// hold connections open.
package api
