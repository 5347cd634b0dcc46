// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs and /v1/jobs/{id}/... for migration job control.
//   - /v1/mappings/... for mapping configuration CRUD, validation, and
//     import/export.
package api
