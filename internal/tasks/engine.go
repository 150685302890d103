package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/matching"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/ratelimit"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

// CompareRequest identifies the two playlists to reconcile.
type CompareRequest struct {
	Direction        models.Direction
	SourcePlaylistID string
	TargetPlaylistID string
}

// Validate checks that both playlists are named and the direction is usable.
func (r CompareRequest) Validate() error {
	if r.Direction.Source == "" || r.Direction.Target == "" || r.Direction.Source == r.Direction.Target {
		return fmt.Errorf("%w: invalid direction %q", shared.ErrInvalidInput, r.Direction)
	}
	if r.SourcePlaylistID == "" {
		return fmt.Errorf("%w: source playlist id is required", shared.ErrMissingArgument)
	}
	if r.TargetPlaylistID == "" {
		return fmt.Errorf("%w: target playlist id is required", shared.ErrMissingArgument)
	}
	return nil
}

// CompareResult holds the snapshots a report was computed from.
type CompareResult struct {
	Source models.PlaylistSnapshot
	Target models.PlaylistSnapshot
	Report models.DiffReport
}

// SyncRequest asks for the target playlist to be brought in line with the source.
type SyncRequest struct {
	CompareRequest
	// MaxOperations caps the planned operations. Zero or less uses the configured default.
	MaxOperations int
	// Mirror also removes target tracks that are missing on the source.
	Mirror bool
}

// SyncEngine defines operations for reconciling playlists between services.
type SyncEngine interface {
	// Compare fetches both playlists and partitions them into matched, missing and ambiguous tracks.
	Compare(ctx context.Context, progress chan<- ProgressUpdate, req CompareRequest) (*CompareResult, error)

	// Sync compares, resolves missing tracks on the target catalog and applies the writes.
	Sync(ctx context.Context, progress chan<- ProgressUpdate, req SyncRequest) (*models.SyncRun, error)
}

// RunRecorder persists finished sync runs.
type RunRecorder interface {
	Save(ctx context.Context, run *models.SyncRun) error
}

// EngineOpts configures a [PlaylistEngine].
type EngineOpts struct {
	Services map[models.Platform]services.Service
	Config   shared.SyncConfig
	Limiter  *ratelimit.Limiter
	Logger   *log.Logger
	// Recorder is optional.
	Recorder RunRecorder
}

// PlaylistEngine implements SyncEngine on top of platform services.
type PlaylistEngine struct {
	services map[models.Platform]services.Service
	cfg      shared.SyncConfig
	matcher  *matching.Matcher
	limiter  *ratelimit.Limiter
	retry    shared.RetryPolicy
	resolver *Resolver
	executor *Executor
	recorder RunRecorder
	logger   *log.Logger
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided services and configuration.
func NewPlaylistEngine(opts EngineOpts) *PlaylistEngine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	cfg := opts.Config
	if cfg.MaxOperations <= 0 {
		cfg.MaxOperations = 50
	}

	matcher := matching.New(matching.Config{
		Threshold:     cfg.MatchThreshold,
		AmbiguityBand: cfg.AmbiguityBand,
		TopK:          cfg.CandidateTopK,
	})
	retry := cfg.Retry.Policy()

	return &PlaylistEngine{
		services: opts.Services,
		cfg:      cfg,
		matcher:  matcher,
		limiter:  limiter,
		retry:    retry,
		resolver: NewResolver(ResolverOpts{
			Matcher: matcher,
			Limiter: limiter,
			Retry:   retry,
			Queries: cfg.SearchQueries,
			Limit:   cfg.SearchLimit,
			Logger:  shared.WithLogger(logger, "component", "resolver"),
		}),
		executor: NewExecutor(ExecutorOpts{
			Limiter:    limiter,
			Retry:      retry,
			Workers:    cfg.Workers,
			TailWindow: cfg.TailWindow,
			Logger:     shared.WithLogger(logger, "component", "executor"),
		}),
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *PlaylistEngine) service(p models.Platform) (services.Service, error) {
	svc, ok := e.services[p]
	if !ok || svc == nil {
		return nil, fmt.Errorf("%w: %s service not initialized", shared.ErrServiceUnavailable, p)
	}
	return svc, nil
}

// Compare fetches both playlists in parallel and partitions them.
// It returns a complete report or a single error; a failed fetch wraps [shared.ErrFetch].
func (e *PlaylistEngine) Compare(ctx context.Context, progress chan<- ProgressUpdate, req CompareRequest) (*CompareResult, error) {
	result, err := e.compare(ctx, progress, req)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, shared.ErrFetch) {
			status = "fetch_error"
		}
		metrics.RecordCompare(req.Direction.String(), status, 0, 0, 0, 0)
		return nil, err
	}
	r := result.Report
	metrics.RecordCompare(req.Direction.String(), status, len(r.Matched), len(r.MissingOnTarget), len(r.MissingOnSource), len(r.Ambiguous))
	return result, nil
}

func (e *PlaylistEngine) compare(ctx context.Context, progress chan<- ProgressUpdate, req CompareRequest) (*CompareResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sourceSvc, err := e.service(req.Direction.Source)
	if err != nil {
		return nil, err
	}
	targetSvc, err := e.service(req.Direction.Target)
	if err != nil {
		return nil, err
	}

	result := &CompareResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.sendProgress(progress, fetchSourceUpdate(req.Direction.Source, req.SourcePlaylistID))
		snap, err := e.fetch(gctx, sourceSvc, req.SourcePlaylistID)
		if err != nil {
			return fmt.Errorf("%w: source playlist %s: %w", shared.ErrFetch, req.SourcePlaylistID, err)
		}
		result.Source = snap
		return nil
	})
	g.Go(func() error {
		e.sendProgress(progress, fetchTargetUpdate(req.Direction.Target, req.TargetPlaylistID))
		snap, err := e.fetch(gctx, targetSvc, req.TargetPlaylistID)
		if err != nil {
			return fmt.Errorf("%w: target playlist %s: %w", shared.ErrFetch, req.TargetPlaylistID, err)
		}
		result.Target = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Report = e.matcher.Compare(result.Source, result.Target)
	if err := matching.CheckPartition(result.Report, result.Source.Tracks, result.Target.Tracks); err != nil {
		e.logger.Error("diff report violates partition", "err", err)
	}
	e.sendProgress(progress, compareUpdate(result.Report))
	return result, nil
}

// fetch reads a playlist under a permit, retrying transient failures.
func (e *PlaylistEngine) fetch(ctx context.Context, svc services.Reader, playlistID string) (models.PlaylistSnapshot, error) {
	var snap models.PlaylistSnapshot
	start := time.Now()
	attempts, err := shared.Retry(ctx, e.retry, func(int) error {
		return withPermit(ctx, e.limiter, svc.Platform(), func(ctx context.Context) error {
			var err error
			snap, err = services.FetchSnapshot(ctx, svc, playlistID)
			return err
		})
	})
	if err != nil {
		return snap, err
	}
	e.logger.Debug("fetched playlist", "platform", svc.Platform(), "playlist", playlistID,
		"tracks", len(snap.Tracks), "attempts", attempts, "elapsed", time.Since(start))
	return snap, nil
}

// Sync runs compare, resolve and execute for req.
//
// The returned run is always non-nil once the request is valid. The error is non-nil only when
// the run could not start (invalid request or a failed fetch); write failures are reported on
// the run's operations and state.
func (e *PlaylistEngine) Sync(ctx context.Context, progress chan<- ProgressUpdate, req SyncRequest) (*models.SyncRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	maxOps := req.MaxOperations
	if maxOps <= 0 {
		maxOps = e.cfg.MaxOperations
	}

	run := models.NewSyncRun(shared.GenerateID(), req.Direction, req.SourcePlaylistID, req.TargetPlaylistID, maxOps, req.Mirror)
	logger := shared.WithLogger(e.logger, "run", run.ID, "direction", run.Direction.String())
	logger.Info("sync run started", "source", run.SourcePlaylistID, "target", run.TargetPlaylistID, "max_operations", maxOps, "mirror", req.Mirror)

	cmp, err := e.Compare(ctx, progress, req.CompareRequest)
	if err != nil {
		run.Error = err.Error()
		_ = run.Transition(models.RunFailed)
		e.finish(ctx, progress, run, logger)
		return run, err
	}
	_ = run.Transition(models.RunRunning)

	targetSvc, _ := e.service(req.Direction.Target)
	run.Operations = Plan(cmp.Report, maxOps, req.Mirror)

	outcome := e.resolve(ctx, progress, run.Operations, targetSvc)
	if !outcome.Aborted {
		Prepare(run.Operations, cmp.Target)

		total := pendingCount(run.Operations)
		var step int
		var stepMu sync.Mutex
		exec := e.executor.Execute(ctx, targetSvc, run.TargetPlaylistID, run.Operations, func(op models.SyncOperation) {
			stepMu.Lock()
			step++
			n := step
			stepMu.Unlock()
			e.sendProgress(progress, executeUpdate(n, total, op))
		})
		outcome.Aborted = exec.Aborted
		outcome.Cancelled = outcome.Cancelled || exec.Cancelled
		if exec.Err != nil {
			outcome.Err = exec.Err
		}
	} else {
		skipPending(run.Operations, models.ReasonAborted)
	}

	finalize(run, outcome)
	e.finish(ctx, progress, run, logger)
	return run, nil
}

// resolve looks up the target track of every pending add with a bounded pool.
func (e *PlaylistEngine) resolve(ctx context.Context, progress chan<- ProgressUpdate, ops []models.SyncOperation, target services.Service) Outcome {
	var adds []int
	for i, op := range ops {
		if op.Kind == models.OpAdd && !op.Done() {
			adds = append(adds, i)
		}
	}

	var (
		mu      sync.Mutex
		out     Outcome
		step    int
		aborted = make(chan struct{})
		once    sync.Once
	)
	g := new(errgroup.Group)
	g.SetLimit(max(e.executor.workers, 1))

	for _, i := range adds {
		g.Go(func() error {
			op := &ops[i]
			select {
			case <-aborted:
				op.Skip(models.ReasonAborted)
				return nil
			default:
			}
			if ctx.Err() != nil {
				op.Skip(models.ReasonCancelled)
				mu.Lock()
				out.Cancelled = true
				mu.Unlock()
				return nil
			}

			mu.Lock()
			step++
			e.sendProgress(progress, resolveUpdate(step, len(adds), op.Track))
			mu.Unlock()

			pair, err := e.resolver.Resolve(ctx, op.Track, target)
			switch {
			case err == nil:
				op.TargetTrackID = pair.Target.PlatformID
				op.Confidence = pair.Confidence
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				op.Skip(models.ReasonCancelled)
				mu.Lock()
				out.Cancelled = true
				mu.Unlock()
			case shared.IsNotFound(err):
				op.Skip(models.ReasonNotFoundOnTarget)
			case shared.IsAuthorization(err):
				op.Status = models.OpFailed
				op.Reason = models.ReasonAuthorization
				op.LastError = err.Error()
				mu.Lock()
				out.Aborted = true
				if out.Err == nil {
					out.Err = err
				}
				mu.Unlock()
				once.Do(func() { close(aborted) })
			default:
				op.Status = models.OpFailed
				op.Reason = models.ReasonTransient
				if !shared.IsRetryable(err) {
					op.Reason = models.ReasonError
				}
				op.LastError = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// finalize moves a running run to its terminal state.
func finalize(run *models.SyncRun, outcome Outcome) {
	s := run.Summary()
	next := models.RunCompleted
	switch {
	case outcome.Aborted:
		next = models.RunFailed
		run.Error = fmt.Sprintf("aborted: %v", outcome.Err)
	case s.Succeeded == 0 && s.Failed > 0:
		next = models.RunFailed
	case s.Failed > 0:
		next = models.RunPartiallyFailed
	}
	if outcome.Cancelled && run.Error == "" {
		run.Error = "cancelled before all operations started"
	}
	_ = run.Transition(next)
}

func (e *PlaylistEngine) finish(ctx context.Context, progress chan<- ProgressUpdate, run *models.SyncRun, logger *log.Logger) {
	s := run.Summary()
	var elapsed time.Duration
	if run.EndedAt != nil {
		elapsed = run.EndedAt.Sub(run.StartedAt)
	}
	metrics.RecordRun(run.Direction.String(), string(run.State), elapsed)
	for _, op := range run.Operations {
		metrics.RecordOperation(run.Direction.Target.String(), string(op.Kind), string(op.Status), op.Reason, op.Attempts)
	}

	if e.recorder != nil {
		if err := e.recorder.Save(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to record sync run", "err", err)
		}
	}

	logger.Info("sync run finished", "state", run.State, "succeeded", s.Succeeded, "failed", s.Failed, "skipped", s.Skipped, "elapsed", elapsed)
	e.sendProgress(progress, finishUpdate(run))
}

func pendingCount(ops []models.SyncOperation) int {
	n := 0
	for _, op := range ops {
		if !op.Done() {
			n++
		}
	}
	return n
}

func skipPending(ops []models.SyncOperation, reason string) {
	for i := range ops {
		if !ops[i].Done() {
			ops[i].Skip(reason)
		}
	}
}
