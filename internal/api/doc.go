// Package api hosts the HTTP server, middleware, and REST handlers for
// feedscout. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/discover (alias /api/discover) to crawl a podroll graph.
//   - GET /album/{externalId} and /v1/albums/{externalId} to resolve albums.
//   - /v1/feeds for registry CRUD and /v1/publishers for label views.
package api
