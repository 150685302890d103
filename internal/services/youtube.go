// YouTube Music [Service] implementation
//
// Communicates with the FastAPI proxy server wrapping the ytmusicapi Python library.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const defaultYTBaseURL string = "http://localhost:8080"

// YouTubeImage represents an image/thumbnail from YouTube Music.
type YouTubeImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	Duration    string          `json:"duration"`
	DurationSec int             `json:"duration_seconds"`
	Thumbnails  []YouTubeImage  `json:"thumbnails"`
	ISRC        string          `json:"isrc,omitempty"`
	SetVideoID  string          `json:"setVideoId,omitempty"` // required to remove a playlist item
}

// youtubePlaylistPage is one page of a proxy playlist response.
type youtubePlaylistPage struct {
	ID           string            `json:"id"`
	Tracks       []json.RawMessage `json:"tracks"`
	Continuation string            `json:"continuation"`
}

// YouTubeService implements [Service] for YouTube Music via the proxy.
type YouTubeService struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(cfg shared.YouTubeConfig) *YouTubeService {
	baseURL := strings.TrimRight(cfg.ProxyURL, "/")
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	return &YouTubeService{
		baseURL:    baseURL,
		authFile:   cfg.HeadersPath,
		httpClient: http.DefaultClient,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

func (y *YouTubeService) Platform() models.Platform {
	return models.YouTube
}

// IdempotentWrites is true: the proxy adds items with duplicates disabled.
func (y *YouTubeService) IdempotentWrites() bool {
	return true
}

func (y *YouTubeService) doRequest(ctx context.Context, op, method, endpoint string, body, result any) error {
	headers := map[string]string{}
	if y.authFile != "" {
		headers["X-Auth-File"] = y.authFile
	}
	return doJSON(ctx, y.httpClient, requestSpec{
		platform: models.YouTube,
		op:       op,
		method:   method,
		url:      y.baseURL + endpoint,
		body:     body,
		headers:  headers,
	}, result)
}

// ListPlaylistTracks calls GET /api/playlists/{id}, following continuation tokens.
func (y *YouTubeService) ListPlaylistTracks(ctx context.Context, playlistID string) ([]RawTrack, error) {
	var items []json.RawMessage
	continuation := ""

	for {
		endpoint := fmt.Sprintf("/api/playlists/%s", url.PathEscape(playlistID))
		if continuation != "" {
			endpoint += "?continuation=" + url.QueryEscape(continuation)
		}

		var page youtubePlaylistPage
		if err := y.doRequest(ctx, "list playlist tracks", http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Tracks...)

		if page.Continuation == "" || page.Continuation == continuation {
			break
		}
		continuation = page.Continuation
	}

	return toRaw(models.YouTube, items), nil
}

// SearchCatalog calls GET /api/search?q={query}&filter=songs.
func (y *YouTubeService) SearchCatalog(ctx context.Context, query string, limit int) ([]RawTrack, error) {
	if limit <= 0 {
		limit = 5
	}
	endpoint := fmt.Sprintf("/api/search?q=%s&filter=songs&limit=%d", url.QueryEscape(query), limit)

	var results []json.RawMessage
	if err := y.doRequest(ctx, "search", http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return toRaw(models.YouTube, results), nil
}

// AddTrack calls POST /api/playlists/{id}/items.
func (y *YouTubeService) AddTrack(ctx context.Context, playlistID, trackID string) error {
	body := map[string]any{"video_ids": []string{trackID}, "duplicates": false}
	endpoint := fmt.Sprintf("/api/playlists/%s/items", url.PathEscape(playlistID))
	return y.doRequest(ctx, "add track", http.MethodPost, endpoint, body, nil)
}

// RemoveTrack looks up the playlist item for trackID and calls POST /api/playlists/{id}/items/remove.
//
// YouTube Music identifies playlist entries by setVideoId, so the playlist is read first.
// A video that is not in the playlist yields [shared.ErrNotFound].
func (y *YouTubeService) RemoveTrack(ctx context.Context, playlistID, trackID string) error {
	items, err := y.ListPlaylistTracks(ctx, playlistID)
	if err != nil {
		return err
	}

	type removal struct {
		VideoID    string `json:"videoId"`
		SetVideoID string `json:"setVideoId"`
	}
	var videos []removal
	for _, item := range items {
		var t YouTubeTrack
		if err := json.Unmarshal(item.Data, &t); err != nil {
			continue
		}
		if t.VideoID == trackID && t.SetVideoID != "" {
			videos = append(videos, removal{VideoID: t.VideoID, SetVideoID: t.SetVideoID})
		}
	}
	if len(videos) == 0 {
		return &shared.PlatformError{Platform: "youtube", Op: "remove track", Message: trackID + " is not in playlist", Err: shared.ErrNotFound}
	}

	endpoint := fmt.Sprintf("/api/playlists/%s/items/remove", url.PathEscape(playlistID))
	return y.doRequest(ctx, "remove track", http.MethodPost, endpoint, map[string]any{"videos": videos}, nil)
}

// ProxyHealth is the body of the proxy's GET /health.
type ProxyHealth struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}

// Health calls GET /health on the proxy.
func (y *YouTubeService) Health(ctx context.Context) (ProxyHealth, error) {
	var h ProxyHealth
	err := y.doRequest(ctx, "health", http.MethodGet, "/health", nil, &h)
	return h, err
}
