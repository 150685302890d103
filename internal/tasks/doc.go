// Package tasks compares and synchronizes playlists between music services with progress reporting.
//
// # Operations
//
// The [SyncEngine] interface defines two operations:
//
//  1. [SyncEngine.Compare] : read-only reconciliation
//     - Fetches the source and target playlists in parallel, under rate limiter permits
//     - Normalizes every item and pairs tracks with the confidence matcher
//     - Returns a [models.DiffReport] that partitions both playlists
//
//  2. [SyncEngine.Sync] : apply the diff to the target playlist
//     - Plans one add per track missing on the target (and one remove per extra track in mirror mode)
//     - Caps the plan at the run's batch ceiling
//     - Resolves each add against the target catalog with the [Resolver]
//     - Executes writes under a bounded worker pool with retries ([Executor])
//     - Returns a [models.SyncRun] whose operations keep planning order
//
// # Progress Reporting
//
// Both operations accept an optional channel of [ProgressUpdate].
// Sends use select with default so progress never blocks the engine.
//
// # Run History
//
// When a [RunRecorder] is configured, every finished run is saved.
// Recorder failures are logged and do not change the run result.
package tasks
