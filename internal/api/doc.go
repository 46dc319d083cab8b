// Package api implements the operations HTTP server of the subsystem
// runtime.
//
// Endpoints:
//   - GET /health: liveness plus the status of each dependency check
//   - GET /metrics: Prometheus exposition
//   - GET /api/v1/places/{placeID}/executor: the cached executor of a place
//   - DELETE /api/v1/places/{placeID}/executor: evict and stop it
//   - GET /api/v1/places/{placeID}/subsystems: subsystem snapshots, loading
//     the executor if needed
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
