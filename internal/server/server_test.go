package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/ratelimit"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	tu "github.com/desertthunder/plsync/internal/testing"
)

type stubEngine struct {
	compareErr error
	syncRun    *models.SyncRun
	syncErr    error
	lastSync   tasks.SyncRequest
}

func (s *stubEngine) Compare(ctx context.Context, progress chan<- tasks.ProgressUpdate, req tasks.CompareRequest) (*tasks.CompareResult, error) {
	if s.compareErr != nil {
		return nil, s.compareErr
	}
	return &tasks.CompareResult{Report: models.DiffReport{Matched: []models.MatchPair{}}}, nil
}

func (s *stubEngine) Sync(ctx context.Context, progress chan<- tasks.ProgressUpdate, req tasks.SyncRequest) (*models.SyncRun, error) {
	s.lastSync = req
	return s.syncRun, s.syncErr
}

type stubRuns struct {
	runs map[string]*models.SyncRun
}

func (s *stubRuns) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	if run, ok := s.runs[id]; ok {
		return run, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
}

func (s *stubRuns) List(ctx context.Context, limit int) ([]repositories.RunListing, error) {
	var out []repositories.RunListing
	for _, run := range s.runs {
		out = append(out, repositories.RunListing{Run: *run, Summary: run.Summary()})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, engine tasks.SyncEngine, runs RunStore) *httptest.Server {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	srv := httptest.NewServer(NewRouter(logger, NewSyncHandler(engine, runs, logger)))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", shared.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: x", shared.ErrMissingArgument), http.StatusBadRequest},
		{&shared.PlatformError{StatusCode: 401, Err: shared.ErrAuthorization}, http.StatusUnauthorized},
		{fmt.Errorf("%w: x", shared.ErrRunNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: source: %w", shared.ErrFetch, shared.ErrTransient), http.StatusBadGateway},
		{fmt.Errorf("%w: x", shared.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, nil)

	if resp := get(t, srv.URL+"/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
	resp := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected default Go collector metrics")
	}
}

func TestSyncHandler_Compare(t *testing.T) {
	tests := []struct {
		name   string
		engine *stubEngine
		body   string
		want   int
	}{
		{
			name:   "ok",
			engine: &stubEngine{},
			body:   `{"sourcePlatform":"spotify","sourcePlaylistId":"a","targetPlatform":"youtube","targetPlaylistId":"b"}`,
			want:   http.StatusOK,
		},
		{
			name:   "unknown platform",
			engine: &stubEngine{},
			body:   `{"sourcePlatform":"tidal","sourcePlaylistId":"a","targetPlatform":"youtube","targetPlaylistId":"b"}`,
			want:   http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			engine: &stubEngine{},
			body:   `{"sourcePlatform":`,
			want:   http.StatusBadRequest,
		},
		{
			name:   "fetch failure",
			engine: &stubEngine{compareErr: fmt.Errorf("%w: target: %w", shared.ErrFetch, shared.ErrTransient)},
			body:   `{"sourcePlatform":"spotify","sourcePlaylistId":"a","targetPlatform":"youtube","targetPlaylistId":"b"}`,
			want:   http.StatusBadGateway,
		},
		{
			name:   "authorization",
			engine: &stubEngine{compareErr: fmt.Errorf("%w: source: %w", shared.ErrFetch, shared.ErrAuthorization)},
			body:   `{"sourcePlatform":"spotify","sourcePlaylistId":"a","targetPlatform":"youtube","targetPlaylistId":"b"}`,
			want:   http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.engine, nil)
			resp := post(t, srv.URL+"/sync/compare", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				var body errorResponse
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
					t.Errorf("expected JSON error body, got err=%v body=%+v", err, body)
				}
			}
		})
	}
}

func TestSyncHandler_Sync(t *testing.T) {
	t.Run("passes the request through", func(t *testing.T) {
		run := models.NewSyncRun("r1", models.Direction{Source: models.YouTube, Target: models.Spotify}, "a", "b", 10, true)
		engine := &stubEngine{syncRun: run}
		srv := newTestServer(t, engine, nil)

		resp := post(t, srv.URL+"/sync/youtube-to-spotify", `{"sourcePlaylistId":"a","targetPlaylistId":"b","maxSync":10,"mirror":true}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		req := engine.lastSync
		if req.Direction.Source != models.YouTube || req.Direction.Target != models.Spotify || req.MaxOperations != 10 || !req.Mirror {
			t.Errorf("unexpected request %+v", req)
		}

		var body RunResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Run.ID != "r1" || body.Run.Direction != run.Direction {
			t.Errorf("unexpected run %+v", body.Run)
		}
	})

	t.Run("invalid direction", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, nil)
		resp := post(t, srv.URL+"/sync/spotify-to-spotify", `{"sourcePlaylistId":"a","targetPlaylistId":"b"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("negative maxSync", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, nil)
		resp := post(t, srv.URL+"/sync/spotify-to-youtube", `{"sourcePlaylistId":"a","targetPlaylistId":"b","maxSync":-1}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("fetch failure returns the failed run", func(t *testing.T) {
		run := models.NewSyncRun("r2", models.Direction{Source: models.Spotify, Target: models.YouTube}, "a", "b", 50, false)
		_ = run.Transition(models.RunFailed)
		engine := &stubEngine{syncRun: run, syncErr: fmt.Errorf("%w: source: %w", shared.ErrFetch, shared.ErrTransient)}
		srv := newTestServer(t, engine, nil)

		resp := post(t, srv.URL+"/sync/spotify-to-youtube", `{"sourcePlaylistId":"a","targetPlaylistId":"b"}`)
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", resp.StatusCode)
		}
		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Run == nil || body.Run.State != models.RunFailed {
			t.Errorf("expected failed run in body, got %+v", body.Run)
		}
	})

	t.Run("end to end with fakes", func(t *testing.T) {
		src := tu.NewFakePlatform(models.Spotify, false)
		dst := tu.NewFakePlatform(models.YouTube, true)
		src.SetPlaylist("a", tu.Track("s1", "Halcyon", "Orbital", 300000))
		dst.SetPlaylist("b")
		dst.AddToCatalog(tu.Track("y1", "Halcyon", "Orbital", 300000))

		engine := tasks.NewPlaylistEngine(tasks.EngineOpts{
			Services: map[models.Platform]services.Service{models.Spotify: src, models.YouTube: dst},
			Config: shared.SyncConfig{
				SearchQueries: 1,
				Workers:       1,
				Retry:         shared.RetryConfig{BaseDelayMs: 1, Factor: 2, MaxAttempts: 2},
			},
			Limiter: ratelimit.New(nil),
			Logger:  shared.NewLogger(io.Discard),
		})
		srv := newTestServer(t, engine, nil)

		resp := post(t, srv.URL+"/sync/spotify-to-youtube", `{"sourcePlaylistId":"a","targetPlaylistId":"b"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body RunResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Run.State != models.RunCompleted || body.Summary.Succeeded != 1 {
			t.Errorf("expected completed run with one add, got %s %+v", body.Run.State, body.Summary)
		}
		if got := dst.Playlist("b"); len(got) != 1 || got[0].PlatformID != "y1" {
			t.Errorf("expected y1 on target, got %+v", got)
		}
	})
}

func TestSyncHandler_Runs(t *testing.T) {
	run := models.NewSyncRun("r1", models.Direction{Source: models.Spotify, Target: models.YouTube}, "a", "b", 50, false)
	runs := &stubRuns{runs: map[string]*models.SyncRun{"r1": run}}

	t.Run("get", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, runs)
		resp := get(t, srv.URL+"/sync/runs/r1")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body RunResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Run.ID != "r1" {
			t.Errorf("expected run r1, got err=%v body=%+v", err, body)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, runs)
		if resp := get(t, srv.URL+"/sync/runs/nope"); resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("list", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, runs)
		resp := get(t, srv.URL+"/sync/runs?limit=5")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body []RunResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body) != 1 {
			t.Errorf("expected one listing, got err=%v len=%d", err, len(body))
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, runs)
		if resp := get(t, srv.URL+"/sync/runs?limit=zero"); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("history not configured", func(t *testing.T) {
		srv := newTestServer(t, &stubEngine{}, nil)
		if resp := get(t, srv.URL+"/sync/runs/r1"); resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
	})
}
