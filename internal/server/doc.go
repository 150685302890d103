// Package server exposes the sync engine over HTTP.
//
// # Routes
//
//   - POST /sync/compare : compare two playlists and return the [models.DiffReport]
//   - POST /sync/{source}-to-{target} : run a sync and return the run with its summary
//   - GET /sync/runs : recent runs, newest first
//   - GET /sync/runs/{id} : a stored run with its operations
//   - GET /health : liveness
//   - GET /metrics : Prometheus metrics
//
// # Errors
//
// Failures are returned as {"error": "..."} with a status derived from the error taxonomy:
// invalid input 400, authorization 401, not found 404, fetch failures 502, missing services 503.
//
// # Handler Interface
//
// Handlers implement [Handler] to register their own routes on the chi router,
// so each handler encapsulates its route definitions.
package server
