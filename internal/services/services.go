// package services defines the platform capabilities used by the sync engine
//
// Spotify, YouTube (via proxy)
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
)

// RawTrack is an undecoded track item exactly as a platform returned it.
// [Normalize] is the only code that looks inside Data.
type RawTrack struct {
	Platform models.Platform
	Data     json.RawMessage
}

// Reader is the read capability of a platform.
type Reader interface {
	// Platform identifies which catalog the reader talks to.
	Platform() models.Platform

	// ListPlaylistTracks returns every item of the playlist in playlist order, following pagination.
	ListPlaylistTracks(ctx context.Context, playlistID string) ([]RawTrack, error)

	// SearchCatalog returns at most limit catalog results for a free text query, best first.
	SearchCatalog(ctx context.Context, query string, limit int) ([]RawTrack, error)
}

// Writer is the write capability of a platform.
type Writer interface {
	// AddTrack appends trackID to the end of the playlist.
	AddTrack(ctx context.Context, playlistID, trackID string) error

	// RemoveTrack removes trackID from the playlist.
	RemoveTrack(ctx context.Context, playlistID, trackID string) error

	// IdempotentWrites reports whether repeating an accepted write leaves the playlist unchanged.
	IdempotentWrites() bool
}

// Service is a platform client with read and write capabilities.
type Service interface {
	Reader
	Writer

	// Name returns the display name of the service (e.g., "Spotify", "YouTube Music")
	Name() string
}

// requestSpec describes a single JSON API call.
type requestSpec struct {
	platform models.Platform
	op       string
	method   string
	url      string
	body     any
	headers  map[string]string
}

// doJSON sends spec with client and decodes a 2xx response into result.
// Non-2xx responses and transport failures are returned as classified [shared.PlatformError]s.
func doJSON(ctx context.Context, client *http.Client, spec requestSpec, result any) error {
	var body io.Reader
	if spec.body != nil {
		data, err := json.Marshal(spec.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range spec.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var tokenErr *oauth2.RetrieveError
		if errors.As(err, &tokenErr) {
			return &shared.PlatformError{
				Platform: spec.platform.String(),
				Op:       spec.op,
				Message:  "token refresh rejected",
				Err:      shared.ErrAuthorization,
			}
		}
		return &shared.PlatformError{
			Platform: spec.platform.String(),
			Op:       spec.op,
			Err:      shared.ClassifyNetworkError(err),
		}
	}
	defer resp.Body.Close()

	if cause := shared.ClassifyStatus(resp.StatusCode); cause != nil {
		return &shared.PlatformError{
			Platform:   spec.platform.String(),
			Op:         spec.op,
			StatusCode: resp.StatusCode,
			Message:    errorDetail(resp.Body),
			Err:        cause,
		}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s response: %v", shared.ErrAPIRequest, spec.platform, spec.op, err)
	}
	return nil
}

// errorDetail extracts a human readable message from common error payload shapes.
func errorDetail(r io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&payload); err != nil {
		return ""
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return payload.Error.Message
}

func toRaw(p models.Platform, items []json.RawMessage) []RawTrack {
	out := make([]RawTrack, 0, len(items))
	for _, item := range items {
		if len(item) == 0 || string(item) == "null" {
			continue
		}
		out = append(out, RawTrack{Platform: p, Data: item})
	}
	return out
}
