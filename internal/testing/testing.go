// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// Failure is a scripted error for one call of a [FakePlatform] operation.
type Failure struct {
	Err error
	// Applied makes a write take effect before Err is returned, as when a response is lost after commit.
	Applied bool
}

// Call records one invocation of a [FakePlatform] method.
type Call struct {
	Op         string
	PlaylistID string
	Arg        string
}

// FakePlatform is an in-memory [services.Service] with scripted failures.
//
// Playlists and catalog entries are stored as [models.TrackRef] and served as raw platform JSON,
// so callers exercise [services.Normalize] exactly as they would against a real client.
type FakePlatform struct {
	mu         sync.Mutex
	platform   models.Platform
	idempotent bool
	playlists  map[string][]models.TrackRef
	catalog    []models.TrackRef
	failures   map[string][]Failure
	calls      []Call

	// BeforeWrite, if set, runs before every AddTrack and RemoveTrack.
	BeforeWrite func(ctx context.Context, op, trackID string)
}

// NewFakePlatform creates an empty fake for p.
func NewFakePlatform(p models.Platform, idempotentWrites bool) *FakePlatform {
	return &FakePlatform{
		platform:   p,
		idempotent: idempotentWrites,
		playlists:  make(map[string][]models.TrackRef),
		failures:   make(map[string][]Failure),
	}
}

func (f *FakePlatform) Name() string              { return "fake " + f.platform.String() }
func (f *FakePlatform) Platform() models.Platform { return f.platform }
func (f *FakePlatform) IdempotentWrites() bool    { return f.idempotent }

// SetPlaylist replaces the content of a playlist.
func (f *FakePlatform) SetPlaylist(id string, tracks ...models.TrackRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[id] = withPlatform(f.platform, tracks)
}

// AddToCatalog makes tracks searchable and addable.
func (f *FakePlatform) AddToCatalog(tracks ...models.TrackRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = append(f.catalog, withPlatform(f.platform, tracks)...)
}

// Playlist returns a copy of the playlist content.
func (f *FakePlatform) Playlist(id string) []models.TrackRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TrackRef(nil), f.playlists[id]...)
}

// Fail queues failures for op ("list", "search", "add" or "remove") and an optional argument.
// An empty arg matches every call of op. Queued failures are consumed one per call.
func (f *FakePlatform) Fail(op, arg string, failures ...Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + ":" + arg
	f.failures[key] = append(f.failures[key], failures...)
}

// Calls returns the recorded invocations.
func (f *FakePlatform) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CountCalls counts invocations of op.
func (f *FakePlatform) CountCalls(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// next records a call and pops the first queued failure matching it. Callers hold f.mu.
func (f *FakePlatform) next(op, playlistID, arg string) (Failure, bool) {
	f.calls = append(f.calls, Call{Op: op, PlaylistID: playlistID, Arg: arg})
	for _, key := range []string{op + ":" + arg, op + ":"} {
		if q := f.failures[key]; len(q) > 0 {
			f.failures[key] = q[1:]
			return q[0], true
		}
	}
	return Failure{}, false
}

func (f *FakePlatform) ListPlaylistTracks(ctx context.Context, playlistID string) ([]services.RawTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fail, ok := f.next("list", playlistID, playlistID); ok {
		return nil, fail.Err
	}
	tracks, ok := f.playlists[playlistID]
	if !ok {
		return nil, f.notFound("list", "playlist "+playlistID)
	}
	raw := make([]services.RawTrack, len(tracks))
	for i, t := range tracks {
		raw[i] = RawFor(t)
	}
	return raw, nil
}

// SearchCatalog returns catalog tracks whose title appears in the query, case-insensitively.
func (f *FakePlatform) SearchCatalog(ctx context.Context, query string, limit int) ([]services.RawTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fail, ok := f.next("search", "", query); ok {
		return nil, fail.Err
	}
	q := strings.ToLower(query)
	var out []services.RawTrack
	for _, t := range f.catalog {
		if strings.Contains(q, strings.ToLower(t.Title)) {
			out = append(out, RawFor(t))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *FakePlatform) AddTrack(ctx context.Context, playlistID, trackID string) error {
	if f.BeforeWrite != nil {
		f.BeforeWrite(ctx, "add", trackID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fail, failed := f.next("add", playlistID, trackID)
	if failed && !fail.Applied {
		return fail.Err
	}

	track, ok := f.lookup(trackID)
	if !ok {
		return f.notFound("add", "track "+trackID)
	}
	if _, ok := f.playlists[playlistID]; !ok {
		return f.notFound("add", "playlist "+playlistID)
	}
	if !(f.idempotent && contains(f.playlists[playlistID], trackID)) {
		f.playlists[playlistID] = append(f.playlists[playlistID], track)
	}

	if failed {
		return fail.Err
	}
	return nil
}

func (f *FakePlatform) RemoveTrack(ctx context.Context, playlistID, trackID string) error {
	if f.BeforeWrite != nil {
		f.BeforeWrite(ctx, "remove", trackID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fail, failed := f.next("remove", playlistID, trackID)
	if failed && !fail.Applied {
		return fail.Err
	}

	tracks := f.playlists[playlistID]
	if !contains(tracks, trackID) {
		return f.notFound("remove", trackID+" in playlist "+playlistID)
	}
	kept := tracks[:0:0]
	for _, t := range tracks {
		if t.PlatformID != trackID {
			kept = append(kept, t)
		}
	}
	f.playlists[playlistID] = kept

	if failed {
		return fail.Err
	}
	return nil
}

func (f *FakePlatform) lookup(trackID string) (models.TrackRef, bool) {
	for _, t := range f.catalog {
		if t.PlatformID == trackID {
			return t, true
		}
	}
	for _, tracks := range f.playlists {
		for _, t := range tracks {
			if t.PlatformID == trackID {
				return t, true
			}
		}
	}
	return models.TrackRef{}, false
}

func (f *FakePlatform) notFound(op, what string) error {
	return &shared.PlatformError{Platform: f.platform.String(), Op: op, StatusCode: 404, Message: what, Err: shared.ErrNotFound}
}

func contains(tracks []models.TrackRef, id string) bool {
	for _, t := range tracks {
		if t.PlatformID == id {
			return true
		}
	}
	return false
}

func withPlatform(p models.Platform, tracks []models.TrackRef) []models.TrackRef {
	out := make([]models.TrackRef, len(tracks))
	for i, t := range tracks {
		t.Platform = p
		out[i] = t
	}
	return out
}

// Transient returns a classified transient failure.
func Transient(op string) error {
	return &shared.PlatformError{Platform: "fake", Op: op, StatusCode: 503, Err: shared.ErrTransient}
}

// Unauthorized returns a classified authorization failure.
func Unauthorized(op string) error {
	return &shared.PlatformError{Platform: "fake", Op: op, StatusCode: 401, Err: shared.ErrAuthorization}
}

// Track builds a [models.TrackRef] with a single artist.
func Track(id, title, artist string, durationMs int) models.TrackRef {
	return models.TrackRef{PlatformID: id, Title: title, Artists: []string{artist}, DurationMs: durationMs}
}

// RawFor encodes t in the JSON shape its platform returns.
func RawFor(t models.TrackRef) services.RawTrack {
	artists := make([]map[string]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = map[string]string{"name": a}
	}

	var v any
	switch t.Platform {
	case models.YouTube:
		item := map[string]any{
			"videoId":          t.PlatformID,
			"setVideoId":       "set-" + t.PlatformID,
			"title":            t.Title,
			"artists":          artists,
			"duration_seconds": t.DurationMs / 1000,
		}
		if t.Album != "" {
			item["album"] = map[string]string{"name": t.Album}
		}
		if t.ISRC != "" {
			item["isrc"] = t.ISRC
		}
		v = item
	default:
		v = map[string]any{"track": map[string]any{
			"id":           t.PlatformID,
			"name":         t.Title,
			"artists":      artists,
			"album":        map[string]string{"name": t.Album},
			"duration_ms":  t.DurationMs,
			"external_ids": map[string]string{"isrc": t.ISRC},
		}}
	}

	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode fake track: %v", err))
	}
	return services.RawTrack{Platform: t.Platform, Data: data}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
