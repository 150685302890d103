// Spotify Web API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
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
	"golang.org/x/oauth2"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPageSize = 100
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track object.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	IsLocal     bool            `json:"is_local"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// spotifyPage is one page of playlist items; items are kept raw for [Normalize].
type spotifyPage struct {
	Items  []json.RawMessage `json:"items"`
	Total  int               `json:"total"`
	Offset int               `json:"offset"`
	Next   *string           `json:"next"`
}

// SpotifyService implements [Service] against the Spotify Web API.
// The [oauth2] transport attaches the bearer token and refreshes it when a refresh token is configured.
type SpotifyService struct {
	config     *oauth2.Config
	cfg        shared.SpotifyConfig
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify client from configured credentials.
// Call [SpotifyService.Authenticate] before issuing requests.
func NewSpotifyService(cfg shared.SpotifyConfig) *SpotifyService {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes: []string{
				"playlist-read-private",
				"playlist-read-collaborative",
				"playlist-modify-public",
				"playlist-modify-private",
			},
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
		cfg:     cfg,
		baseURL: baseURL,
	}
}

// Authenticate builds the token-refreshing HTTP client from the configured tokens.
func (s *SpotifyService) Authenticate(ctx context.Context) error {
	if s.cfg.AccessToken == "" && s.cfg.RefreshToken == "" {
		return fmt.Errorf("%w: spotify access_token or refresh_token", shared.ErrMissingCredentials)
	}
	token := &oauth2.Token{AccessToken: s.cfg.AccessToken, RefreshToken: s.cfg.RefreshToken, TokenType: "Bearer"}
	s.httpClient = s.config.Client(ctx, token)
	return nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

func (s *SpotifyService) Platform() models.Platform {
	return models.Spotify
}

// IdempotentWrites is false: adding a track twice creates a duplicate entry.
func (s *SpotifyService) IdempotentWrites() bool {
	return false
}

// doRequest performs an authenticated request against the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, op, method, endpoint string, body, result any) error {
	if s.httpClient == nil {
		return &shared.PlatformError{Platform: "spotify", Op: op, Message: "call Authenticate first", Err: shared.ErrAuthorization}
	}
	return doJSON(ctx, s.httpClient, requestSpec{
		platform: models.Spotify,
		op:       op,
		method:   method,
		url:      s.baseURL + endpoint,
		body:     body,
	}, result)
}

// ListPlaylistTracks pages through /playlists/{id}/tracks until next is null.
func (s *SpotifyService) ListPlaylistTracks(ctx context.Context, playlistID string) ([]RawTrack, error) {
	var items []json.RawMessage
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), spotifyPageSize, offset)

		var page spotifyPage
		if err := s.doRequest(ctx, "list playlist tracks", http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return toRaw(models.Spotify, items), nil
}

// SearchCatalog calls /search?type=track.
func (s *SpotifyService) SearchCatalog(ctx context.Context, query string, limit int) ([]RawTrack, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var response struct {
		Tracks struct {
			Items []json.RawMessage `json:"items"`
		} `json:"tracks"`
	}
	if err := s.doRequest(ctx, "search", http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return toRaw(models.Spotify, response.Tracks.Items), nil
}

// AddTrack appends a track via POST /playlists/{id}/tracks.
func (s *SpotifyService) AddTrack(ctx context.Context, playlistID, trackID string) error {
	body := map[string]any{"uris": []string{spotifyURI(trackID)}}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, "add track", http.MethodPost, endpoint, body, nil)
}

// RemoveTrack removes every occurrence of a track via DELETE /playlists/{id}/tracks.
func (s *SpotifyService) RemoveTrack(ctx context.Context, playlistID, trackID string) error {
	body := map[string]any{"tracks": []map[string]string{{"uri": spotifyURI(trackID)}}}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, "remove track", http.MethodDelete, endpoint, body, nil)
}

func spotifyURI(trackID string) string {
	if strings.HasPrefix(trackID, "spotify:") {
		return trackID
	}
	return "spotify:track:" + trackID
}
