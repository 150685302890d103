// package models defines the data model for the playlist sync engine
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies a music service.
type Platform string

const (
	Spotify Platform = "spotify"
	YouTube Platform = "youtube"
)

// ParsePlatform resolves a user supplied platform name.
// "ytmusic" and "youtubemusic" are accepted as aliases for [YouTube].
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spotify":
		return Spotify, nil
	case "youtube", "ytmusic", "youtubemusic":
		return YouTube, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

func (p Platform) String() string { return string(p) }

// Direction is an ordered (source, target) platform pair.
type Direction struct {
	Source Platform
	Target Platform
}

// String renders the direction as used in routes, e.g. "spotify-to-youtube".
func (d Direction) String() string {
	return fmt.Sprintf("%s-to-%s", d.Source, d.Target)
}

// MarshalText implements [encoding.TextMarshaler].
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection parses strings of the form "<source>-to-<target>".
func ParseDirection(s string) (Direction, error) {
	src, dst, ok := strings.Cut(s, "-to-")
	if !ok {
		return Direction{}, fmt.Errorf("invalid direction %q: expected <source>-to-<target>", s)
	}
	source, err := ParsePlatform(src)
	if err != nil {
		return Direction{}, err
	}
	target, err := ParsePlatform(dst)
	if err != nil {
		return Direction{}, err
	}
	if source == target {
		return Direction{}, fmt.Errorf("invalid direction %q: source and target are the same platform", s)
	}
	return Direction{Source: source, Target: target}, nil
}

// TrackRef is a platform-neutral view of a single track.
//
// PlatformID is only meaningful on [TrackRef.Platform] and is never compared across platforms.
// DurationMs of 0 means the duration is unknown.
type TrackRef struct {
	Platform   Platform `json:"platform"`
	PlatformID string   `json:"platformId"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album,omitempty"`
	DurationMs int      `json:"durationMs"`
	ISRC       string   `json:"isrc,omitempty"`
}

// PrimaryArtist returns the first credited artist or an empty string.
func (t TrackRef) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// HasDuration reports whether the duration of the track is known.
func (t TrackRef) HasDuration() bool { return t.DurationMs > 0 }

func (t TrackRef) String() string {
	if a := t.PrimaryArtist(); a != "" {
		return fmt.Sprintf("%s - %s", a, t.Title)
	}
	return t.Title
}

// PlaylistSnapshot is the ordered content of a playlist at FetchedAt.
// Snapshots are built fresh for every compare and never reused across runs.
type PlaylistSnapshot struct {
	Platform   Platform   `json:"platform"`
	PlaylistID string     `json:"playlistId"`
	Tracks     []TrackRef `json:"tracks"`
	FetchedAt  time.Time  `json:"fetchedAt"`
}

// Contains reports whether a track with the given platform id is present in the last window tracks.
// A window <= 0 inspects the whole playlist.
func (s PlaylistSnapshot) Contains(trackID string, window int) bool {
	tracks := s.Tracks
	if window > 0 && len(tracks) > window {
		tracks = tracks[len(tracks)-window:]
	}
	for _, t := range tracks {
		if t.PlatformID == trackID {
			return true
		}
	}
	return false
}

// MatchPair is an accepted pairing between a source and a target track.
type MatchPair struct {
	Source     TrackRef `json:"source"`
	Target     TrackRef `json:"target"`
	Confidence float64  `json:"confidence"`
}

// AmbiguousGroup is a source track withheld from matching because its best candidates scored too closely.
type AmbiguousGroup struct {
	Track      TrackRef    `json:"track"`
	Candidates []MatchPair `json:"candidates"`
}

// DiffReport partitions a source and a target playlist.
//
// Every source track appears exactly once across Matched, MissingOnTarget and Ambiguous.
// Every target track appears exactly once across Matched, MissingOnSource and the candidates reserved by Ambiguous.
type DiffReport struct {
	Matched         []MatchPair      `json:"matched"`
	MissingOnTarget []TrackRef       `json:"missingOnTarget"`
	MissingOnSource []TrackRef       `json:"missingOnSource"`
	Ambiguous       []AmbiguousGroup `json:"ambiguous"`
}

// InSync reports whether the two playlists contain the same tracks.
func (r DiffReport) InSync() bool {
	return len(r.MissingOnTarget) == 0 && len(r.MissingOnSource) == 0 && len(r.Ambiguous) == 0
}

// OperationKind is the write performed by a [SyncOperation].
type OperationKind string

const (
	OpAdd    OperationKind = "add"
	OpRemove OperationKind = "remove"
)

// OperationStatus is the lifecycle position of a [SyncOperation].
type OperationStatus string

const (
	OpPending   OperationStatus = "pending"
	OpSucceeded OperationStatus = "succeeded"
	OpFailed    OperationStatus = "failed"
	OpSkipped   OperationStatus = "skipped"
)

// Skip and failure reasons recorded on operations.
const (
	ReasonBatchLimitExceeded = "batch_limit_exceeded"
	ReasonNotFoundOnTarget   = "not_found_on_target"
	ReasonNotFound           = "not_found"
	ReasonDuplicate          = "duplicate_operation"
	ReasonCancelled          = "cancelled"
	ReasonAborted            = "aborted"
	ReasonAlreadyApplied     = "already_applied"
	ReasonAuthorization      = "authorization"
	ReasonTransient          = "transient"
	ReasonError              = "error"
)

// SyncOperation is a single planned write against the target playlist.
type SyncOperation struct {
	Kind           OperationKind   `json:"kind" db:"kind"`
	Track          TrackRef        `json:"track" db:"-"`
	TargetTrackID  string          `json:"targetTrackId,omitempty" db:"target_track_id"`
	Confidence     float64         `json:"confidence" db:"confidence"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	Attempts       int             `json:"attempts" db:"attempts"`
	Status         OperationStatus `json:"status" db:"status"`
	Reason         string          `json:"reason,omitempty" db:"reason"`
	LastError      string          `json:"lastError,omitempty" db:"last_error"`
}

// Done reports whether the operation reached a final status.
func (o SyncOperation) Done() bool { return o.Status != OpPending }

// Skip marks the operation as skipped with the given reason.
func (o *SyncOperation) Skip(reason string) {
	o.Status = OpSkipped
	o.Reason = reason
}

// IdempotencyKey derives a deterministic key for a write so that replays of the same
// (playlist, track, kind) triple are recognized as the same operation.
func IdempotencyKey(playlistID, trackID string, kind OperationKind) string {
	name := strings.Join([]string{playlistID, trackID, string(kind)}, "\x1f")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// RunState is the state of a [SyncRun].
type RunState string

const (
	RunPending         RunState = "pending"
	RunRunning         RunState = "running"
	RunCompleted       RunState = "completed"
	RunPartiallyFailed RunState = "partially_failed"
	RunFailed          RunState = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunPartiallyFailed || s == RunFailed
}

// SyncRun records one synchronization attempt.
type SyncRun struct {
	ID               string          `json:"id"`
	Direction        Direction       `json:"direction"`
	SourcePlaylistID string          `json:"sourcePlaylistId"`
	TargetPlaylistID string          `json:"targetPlaylistId"`
	MaxOperations    int             `json:"maxOperations"`
	Mirror           bool            `json:"mirror"`
	Operations       []SyncOperation `json:"operations"`
	State            RunState        `json:"state"`
	StartedAt        time.Time       `json:"startedAt"`
	EndedAt          *time.Time      `json:"endedAt,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// NewSyncRun creates a run in the [RunPending] state.
func NewSyncRun(id string, dir Direction, sourceID, targetID string, maxOps int, mirror bool) *SyncRun {
	return &SyncRun{
		ID:               id,
		Direction:        dir,
		SourcePlaylistID: sourceID,
		TargetPlaylistID: targetID,
		MaxOperations:    maxOps,
		Mirror:           mirror,
		State:            RunPending,
		StartedAt:        time.Now().UTC(),
	}
}

// Transition moves the run to next, rejecting edges outside
// pending -> running -> {completed, partially_failed, failed}.
// A pending run may also fail directly when planning could not start.
func (r *SyncRun) Transition(next RunState) error {
	ok := false
	switch r.State {
	case RunPending:
		ok = next == RunRunning || next == RunFailed
	case RunRunning:
		ok = next.Terminal()
	}
	if !ok {
		return fmt.Errorf("invalid sync run transition %s -> %s", r.State, next)
	}
	r.State = next
	if next.Terminal() {
		now := time.Now().UTC()
		r.EndedAt = &now
	}
	return nil
}

// RunSummary counts operations by status.
type RunSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// Summary tallies the run's operations.
func (r *SyncRun) Summary() RunSummary {
	s := RunSummary{Total: len(r.Operations)}
	for _, op := range r.Operations {
		switch op.Status {
		case OpSucceeded:
			s.Succeeded++
		case OpFailed:
			s.Failed++
		case OpSkipped:
			s.Skipped++
		default:
			s.Pending++
		}
	}
	return s
}
