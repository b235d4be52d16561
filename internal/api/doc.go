// Package api hosts the read-only HTTP server for the dashboards. Notable
// routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/deals for the first-quartile listings of a city.
//   - GET /v1/cities for the cities currently covered.
package api
