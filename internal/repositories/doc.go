// Package repositories implements SQLite persistence for sync run history.
//
// Key Implementations:
//   - [SyncRunRepository] : runs with their operations in planning order, and recent run listings
//
// Runs are written whole: saving a run replaces its stored operations, so the latest save of a
// run always reflects its final state.
package repositories
