// Package api hosts the ops HTTP server. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the entity store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tasks and POST /v1/tasks/{task_id}/run to inspect and trigger
//     scheduled tasks.
//   - GET /v1/runs for task run history.
//   - GET /v1/entities for the canonical store, e.g. ?kind=bursary&open=true.
package api
