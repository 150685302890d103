// Package models defines the domain entities shared by the plsync reconciliation engine.
//
// The package contains three groups of types:
//
// 1. Platform data: normalized, platform-neutral track and playlist views
//   - [TrackRef] : one track as read from a platform, immutable once built
//   - [PlaylistSnapshot] : the ordered track list of a playlist at fetch time
//
// 2. Comparison results
//   - [MatchPair] : a source/target pairing with a confidence score
//   - [DiffReport] : the partition of both playlists into matched, missing and ambiguous
//
// 3. Synchronization state
//   - [SyncOperation] : one planned Add or Remove against the target playlist
//   - [SyncRun] : a synchronization attempt and its state machine
package models
