// package tasks implements maintenance operations over the durable stores
// and the in-memory cache.
//
// The core abstraction is MaintenanceEngine, which orchestrates expired-data
// sweeps and account unlink cleanup. Operations emit progress updates via
// channels for non-blocking status reporting to the CLI layer.
package tasks
