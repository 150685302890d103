package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/ratelimit"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Executor applies planned operations to a target playlist.
type Executor struct {
	limiter    *ratelimit.Limiter
	retry      shared.RetryPolicy
	workers    int
	tailWindow int
	logger     *log.Logger
}

// ExecutorOpts configures an [Executor].
type ExecutorOpts struct {
	Limiter *ratelimit.Limiter
	Retry   shared.RetryPolicy
	// Workers bounds concurrent operations. Defaults to 4.
	Workers int
	// TailWindow is how many trailing tracks are inspected to detect an add that already landed.
	// Defaults to 50.
	TailWindow int
	Logger     *log.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(opts ExecutorOpts) *Executor {
	e := &Executor{
		limiter:    opts.Limiter,
		retry:      opts.Retry,
		workers:    opts.Workers,
		tailWindow: opts.TailWindow,
		logger:     opts.Logger,
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(nil)
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	if e.tailWindow <= 0 {
		e.tailWindow = 50
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	return e
}

// Plan builds the operations for report in planning order: adds in source order,
// then removes in target order when mirror is set.
// Operations past maxOps are skipped with [models.ReasonBatchLimitExceeded].
func Plan(report models.DiffReport, maxOps int, mirror bool) []models.SyncOperation {
	ops := make([]models.SyncOperation, 0, len(report.MissingOnTarget)+len(report.MissingOnSource))
	for _, t := range report.MissingOnTarget {
		ops = append(ops, models.SyncOperation{Kind: models.OpAdd, Track: t, Status: models.OpPending})
	}
	if mirror {
		for _, t := range report.MissingOnSource {
			ops = append(ops, models.SyncOperation{
				Kind:          models.OpRemove,
				Track:         t,
				TargetTrackID: t.PlatformID,
				Confidence:    1,
				Status:        models.OpPending,
			})
		}
	}
	for i := range ops {
		if maxOps >= 0 && i >= maxOps {
			ops[i].Skip(models.ReasonBatchLimitExceeded)
		}
	}
	return ops
}

// Prepare assigns idempotency keys to resolved operations and skips the ones that must not run:
// repeated keys within the run and adds whose track is already on the target.
func Prepare(ops []models.SyncOperation, target models.PlaylistSnapshot) {
	seen := make(map[string]bool, len(ops))
	for i := range ops {
		op := &ops[i]
		if op.Done() || op.TargetTrackID == "" {
			continue
		}
		op.IdempotencyKey = models.IdempotencyKey(target.PlaylistID, op.TargetTrackID, op.Kind)
		switch {
		case seen[op.IdempotencyKey]:
			op.Skip(models.ReasonDuplicate)
		case op.Kind == models.OpAdd && target.Contains(op.TargetTrackID, 0):
			op.Skip(models.ReasonAlreadyApplied)
		}
		seen[op.IdempotencyKey] = true
	}
}

// Outcome describes how an execution ended.
type Outcome struct {
	// Aborted is set when an authorization failure stopped the run.
	Aborted bool
	// Cancelled is set when the context ended before every operation started.
	Cancelled bool
	Err       error
}

// Execute runs every pending operation of ops against target.
//
// Operations are started in slice order by a bounded pool. Once ctx is done no new operation
// starts; operations already running finish on a context detached from ctx. An authorization
// failure aborts the run and the operations not yet started are skipped.
// Each finished operation is passed to onDone, which may be nil.
func (e *Executor) Execute(ctx context.Context, target services.Service, playlistID string, ops []models.SyncOperation, onDone func(models.SyncOperation)) Outcome {
	var (
		aborted   atomic.Bool
		cancelled atomic.Bool
		errMu     sync.Mutex
		abortErr  error
	)
	detached := context.WithoutCancel(ctx)

	jobs := make(chan int)
	g := new(errgroup.Group)
	for range e.workers {
		g.Go(func() error {
			for i := range jobs {
				op := &ops[i]
				switch {
				case aborted.Load():
					op.Skip(models.ReasonAborted)
				case ctx.Err() != nil:
					cancelled.Store(true)
					op.Skip(models.ReasonCancelled)
				default:
					if err := e.run(detached, target, playlistID, op); err != nil {
						errMu.Lock()
						if abortErr == nil {
							abortErr = err
						}
						errMu.Unlock()
						aborted.Store(true)
					}
				}
				if onDone != nil {
					onDone(*op)
				}
			}
			return nil
		})
	}

	for i := range ops {
		if !ops[i].Done() {
			jobs <- i
		}
	}
	close(jobs)
	_ = g.Wait()

	return Outcome{Aborted: aborted.Load(), Cancelled: cancelled.Load(), Err: abortErr}
}

// run executes one operation and records its final status.
// It returns a non-nil error only for authorization failures, which abort the run.
func (e *Executor) run(ctx context.Context, target services.Service, playlistID string, op *models.SyncOperation) error {
	logger := shared.WithLogger(e.logger, "kind", op.Kind, "track", op.TargetTrackID)
	idempotent := target.IdempotentWrites()

	attempts, err := shared.Retry(ctx, e.retry, func(attempt int) error {
		if attempt > 1 && !idempotent {
			landed, err := e.landed(ctx, target, playlistID, op)
			if err != nil {
				return err
			}
			if landed {
				logger.Info("prior attempt already applied", "attempt", attempt)
				return nil
			}
		}
		return withPermit(ctx, e.limiter, target.Platform(), func(ctx context.Context) error {
			return write(ctx, target, playlistID, op)
		})
	})
	op.Attempts = attempts

	switch {
	case err == nil:
		op.Status = models.OpSucceeded
	case shared.IsNotFound(err):
		op.Skip(models.ReasonNotFound)
		op.LastError = err.Error()
	case shared.IsAuthorization(err):
		op.Status = models.OpFailed
		op.Reason = models.ReasonAuthorization
		op.LastError = err.Error()
		logger.Error("authorization failure, aborting run", "err", err)
		return fmt.Errorf("%s %s: %w", op.Kind, op.TargetTrackID, err)
	default:
		op.Status = models.OpFailed
		op.Reason = models.ReasonError
		if errors.Is(err, shared.ErrTransient) {
			op.Reason = models.ReasonTransient
		}
		op.LastError = err.Error()
		logger.Warn("operation failed", "attempts", attempts, "err", err)
	}
	return nil
}

// landed reports whether an earlier attempt of op already took effect on the target playlist.
// Adds are looked for in the trailing window; removes must be gone from the whole playlist.
func (e *Executor) landed(ctx context.Context, target services.Service, playlistID string, op *models.SyncOperation) (bool, error) {
	var snap models.PlaylistSnapshot
	err := withPermit(ctx, e.limiter, target.Platform(), func(ctx context.Context) error {
		var err error
		snap, err = services.FetchSnapshot(ctx, target, playlistID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("verify %s: %w", op.Kind, err)
	}
	if op.Kind == models.OpRemove {
		return !snap.Contains(op.TargetTrackID, 0), nil
	}
	return snap.Contains(op.TargetTrackID, e.tailWindow), nil
}

func write(ctx context.Context, target services.Writer, playlistID string, op *models.SyncOperation) error {
	switch op.Kind {
	case models.OpAdd:
		return target.AddTrack(ctx, playlistID, op.TargetTrackID)
	case models.OpRemove:
		return target.RemoveTrack(ctx, playlistID, op.TargetTrackID)
	default:
		return fmt.Errorf("%w: unknown operation kind %q", shared.ErrInvalidInput, op.Kind)
	}
}
