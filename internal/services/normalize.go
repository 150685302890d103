package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/models"
)

var (
	// "(Official Music Video)", "[Lyrics]", "(HD)" and similar upload noise.
	videoNoise = regexp.MustCompile(`(?i)\s*[\(\[](?:official\s*)?(?:music\s*|lyric\s*)?(?:video|audio|visualizer|lyrics?|hd|hq|4k|mv)[\)\]]`)
	// "Artist - Title" and "Title by Artist" video titles.
	artistDashTitle = regexp.MustCompile(`^\s*(?P<artist>.+?)\s+[-–—]\s+(?P<title>.+?)\s*$`)
	titleByArtist   = regexp.MustCompile(`(?i)^\s*(?P<title>.+?)\s+by\s+(?P<artist>.+?)\s*$`)
)

// Normalize converts a raw platform item into a [models.TrackRef].
//
// It performs no I/O. Items that cannot be decoded, local files and unavailable tracks yield a
// TrackRef with an empty PlatformID, which [FetchSnapshot] drops. A missing duration becomes 0.
func Normalize(raw RawTrack) models.TrackRef {
	switch raw.Platform {
	case models.Spotify:
		return normalizeSpotify(raw.Data)
	case models.YouTube:
		return normalizeYouTube(raw.Data)
	default:
		return models.TrackRef{Platform: raw.Platform}
	}
}

// normalizeSpotify accepts both playlist items ({"track": {...}}) and bare search results.
func normalizeSpotify(data json.RawMessage) models.TrackRef {
	var item struct {
		Track *SpotifyTrack `json:"track"`
		SpotifyTrack
	}
	ref := models.TrackRef{Platform: models.Spotify}
	if err := json.Unmarshal(data, &item); err != nil {
		return ref
	}

	t := item.SpotifyTrack
	if item.Track != nil {
		t = *item.Track
	}
	if t.IsLocal {
		return ref
	}

	ref.PlatformID = t.ID
	ref.Title = strings.TrimSpace(t.Name)
	ref.Album = strings.TrimSpace(t.Album.Name)
	ref.DurationMs = max(t.DurationMS, 0)
	ref.ISRC = strings.ToUpper(strings.TrimSpace(t.ExternalIDs.ISRC))
	for _, a := range t.Artists {
		if name := strings.TrimSpace(a.Name); name != "" {
			ref.Artists = append(ref.Artists, name)
		}
	}
	return ref
}

func normalizeYouTube(data json.RawMessage) models.TrackRef {
	var t YouTubeTrack
	ref := models.TrackRef{Platform: models.YouTube}
	if err := json.Unmarshal(data, &t); err != nil {
		return ref
	}

	ref.PlatformID = t.VideoID
	ref.Title = strings.TrimSpace(videoNoise.ReplaceAllString(t.Title, ""))
	ref.ISRC = strings.ToUpper(strings.TrimSpace(t.ISRC))
	if t.Album != nil {
		ref.Album = strings.TrimSpace(t.Album.Name)
	}

	for _, a := range t.Artists {
		name := strings.TrimSpace(strings.TrimSuffix(a.Name, " - Topic"))
		if name != "" {
			ref.Artists = append(ref.Artists, name)
		}
	}
	if len(ref.Artists) == 0 {
		ref.Title, ref.Artists = splitVideoTitle(ref.Title)
	}

	switch {
	case t.DurationSec > 0:
		ref.DurationMs = t.DurationSec * 1000
	case t.Duration != "":
		ref.DurationMs = parseClock(t.Duration)
	}
	return ref
}

// splitVideoTitle extracts an artist from titles such as "Artist - Title" or "Title by Artist".
// Titles matching neither pattern are returned unchanged with no artist.
func splitVideoTitle(title string) (string, []string) {
	if m := artistDashTitle.FindStringSubmatch(title); m != nil {
		return m[artistDashTitle.SubexpIndex("title")], []string{m[artistDashTitle.SubexpIndex("artist")]}
	}
	if m := titleByArtist.FindStringSubmatch(title); m != nil {
		return m[titleByArtist.SubexpIndex("title")], []string{m[titleByArtist.SubexpIndex("artist")]}
	}
	return title, nil
}

// parseClock converts "m:ss" or "h:mm:ss" to milliseconds, returning 0 when malformed.
func parseClock(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total * 1000
}

// FetchSnapshot reads a playlist through r and normalizes every item.
// Items without a platform id are dropped.
func FetchSnapshot(ctx context.Context, r Reader, playlistID string) (models.PlaylistSnapshot, error) {
	raw, err := r.ListPlaylistTracks(ctx, playlistID)
	if err != nil {
		return models.PlaylistSnapshot{}, err
	}

	tracks := make([]models.TrackRef, 0, len(raw))
	for _, item := range raw {
		if ref := Normalize(item); ref.PlatformID != "" {
			tracks = append(tracks, ref)
		}
	}

	return models.PlaylistSnapshot{
		Platform:   r.Platform(),
		PlaylistID: playlistID,
		Tracks:     tracks,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// NormalizeAll normalizes search results, dropping items without a platform id.
func NormalizeAll(raw []RawTrack) []models.TrackRef {
	out := make([]models.TrackRef, 0, len(raw))
	for _, item := range raw {
		if ref := Normalize(item); ref.PlatformID != "" {
			out = append(out, ref)
		}
	}
	return out
}
