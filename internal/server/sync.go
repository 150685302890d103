package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/go-chi/chi/v5"
)

// RunStore reads persisted sync runs.
type RunStore interface {
	Get(ctx context.Context, id string) (*models.SyncRun, error)
	List(ctx context.Context, limit int) ([]repositories.RunListing, error)
}

// SyncHandler serves compare, sync and run history requests.
type SyncHandler struct {
	engine tasks.SyncEngine
	runs   RunStore
	logger *log.Logger
}

// NewSyncHandler creates a SyncHandler. runs may be nil when history is not persisted.
func NewSyncHandler(engine tasks.SyncEngine, runs RunStore, logger *log.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, runs: runs, logger: logger}
}

func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sync/compare", h.Compare)
	r.Get("/sync/runs", h.ListRuns)
	r.Get("/sync/runs/{id}", h.GetRun)
	r.Post("/sync/{direction}", h.Sync)
}

type compareBody struct {
	SourcePlatform   string `json:"sourcePlatform"`
	SourcePlaylistID string `json:"sourcePlaylistId"`
	TargetPlatform   string `json:"targetPlatform"`
	TargetPlaylistID string `json:"targetPlaylistId"`
}

type syncBody struct {
	SourcePlaylistID string `json:"sourcePlaylistId"`
	TargetPlaylistID string `json:"targetPlaylistId"`
	MaxSync          int    `json:"maxSync"`
	Mirror           bool   `json:"mirror"`
}

// RunResponse is a run with its operation counts.
type RunResponse struct {
	Run     *models.SyncRun   `json:"run"`
	Summary models.RunSummary `json:"summary"`
}

type errorResponse struct {
	Error string          `json:"error"`
	Run   *models.SyncRun `json:"run,omitempty"`
}

// Compare handles POST /sync/compare.
func (h *SyncHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var body compareBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}

	source, err := models.ParsePlatform(body.SourcePlatform)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: sourcePlatform: %v", shared.ErrInvalidInput, err), nil)
		return
	}
	target, err := models.ParsePlatform(body.TargetPlatform)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: targetPlatform: %v", shared.ErrInvalidInput, err), nil)
		return
	}

	result, err := h.engine.Compare(r.Context(), nil, tasks.CompareRequest{
		Direction:        models.Direction{Source: source, Target: target},
		SourcePlaylistID: body.SourcePlaylistID,
		TargetPlaylistID: body.TargetPlaylistID,
	})
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result.Report)
}

// Sync handles POST /sync/{source}-to-{target}.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	dir, err := models.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err), nil)
		return
	}

	var body syncBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	if body.MaxSync < 0 {
		h.writeError(w, fmt.Errorf("%w: maxSync must not be negative", shared.ErrInvalidInput), nil)
		return
	}

	run, err := h.engine.Sync(r.Context(), nil, tasks.SyncRequest{
		CompareRequest: tasks.CompareRequest{
			Direction:        dir,
			SourcePlaylistID: body.SourcePlaylistID,
			TargetPlaylistID: body.TargetPlaylistID,
		},
		MaxOperations: body.MaxSync,
		Mirror:        body.Mirror,
	})
	if err != nil {
		h.writeError(w, err, run)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Run: run, Summary: run.Summary()})
}

// GetRun handles GET /sync/runs/{id}.
func (h *SyncHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, fmt.Errorf("%w: run history is not configured", shared.ErrServiceUnavailable), nil)
		return
	}
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Run: run, Summary: run.Summary()})
}

// ListRuns handles GET /sync/runs?limit=n.
func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, fmt.Errorf("%w: run history is not configured", shared.ErrServiceUnavailable), nil)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, fmt.Errorf("%w: invalid limit %q", shared.ErrInvalidInput, v), nil)
			return
		}
		limit = n
	}

	listings, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	out := make([]RunResponse, len(listings))
	for i := range listings {
		out[i] = RunResponse{Run: &listings[i].Run, Summary: listings[i].Summary}
	}
	writeJSON(w, http.StatusOK, out)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrAuthorization):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrRunNotFound), errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *SyncHandler) writeError(w http.ResponseWriter, err error, run *models.SyncRun) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Run: run})
}
