package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

func compareRequest(cmd *cli.Command) (tasks.CompareRequest, error) {
	dir, err := models.ParseDirection(cmd.String("direction"))
	if err != nil {
		return tasks.CompareRequest{}, fmt.Errorf("%w: --direction: %v", shared.ErrInvalidFlag, err)
	}
	req := tasks.CompareRequest{
		Direction:        dir,
		SourcePlaylistID: strings.TrimSpace(cmd.String("source-id")),
		TargetPlaylistID: strings.TrimSpace(cmd.String("target-id")),
	}
	return req, req.Validate()
}

// printProgress writes engine updates until progress is closed, then closes done.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range progress {
		switch update.Phase {
		case tasks.Execute, tasks.Resolve:
			if update.Step > 0 {
				r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
				continue
			}
			r.writePlain("%s\n", update.Message)
		case tasks.Finish:
		default:
			r.writePlain("%s\n", update.Message)
		}
	}
}

// SyncCompare fetches both playlists and prints the diff report.
func (r *Runner) SyncCompare(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	req, err := compareRequest(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("comparing playlists", "direction", req.Direction, "source", req.SourcePlaylistID, "target", req.TargetPlaylistID)

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go r.printProgress(progress, done)
	result, err := r.engine.Compare(ctx, progress, req)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	data, err := formatter.RenderDiff(result.Report, format)
	if err != nil {
		return err
	}
	return r.writeRendered(data, cmd.String("output"))
}

// SyncRun brings the target playlist in line with the source.
//
// Mirror mode removes tracks and therefore requires --yes.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	compare, err := compareRequest(cmd)
	if err != nil {
		return err
	}
	maxSync := int(cmd.Int("max-sync"))
	if maxSync < 0 {
		return fmt.Errorf("%w: --max-sync must not be negative", shared.ErrInvalidFlag)
	}
	if cmd.Bool("mirror") && !cmd.Bool("yes") {
		return fmt.Errorf("%w: --mirror removes tracks from the target playlist, pass --yes to confirm", shared.ErrMissingArgument)
	}

	req := tasks.SyncRequest{CompareRequest: compare, MaxOperations: maxSync, Mirror: cmd.Bool("mirror")}
	r.logger.Info("starting sync", "direction", req.Direction, "source", req.SourcePlaylistID, "target", req.TargetPlaylistID, "mirror", req.Mirror)

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go r.printProgress(progress, done)
	run, err := r.engine.Sync(ctx, progress, req)
	close(progress)
	<-done

	if run == nil {
		return err
	}

	data, renderErr := formatter.RenderRun(run, format)
	if renderErr != nil {
		return renderErr
	}
	if writeErr := r.writeRendered(data, cmd.String("output")); writeErr != nil {
		return writeErr
	}

	if err != nil {
		return err
	}
	if run.State == models.RunFailed {
		return fmt.Errorf("sync run %s failed: %s", run.ID, run.Error)
	}
	return nil
}

func (r *Runner) requireRuns() error {
	if r.runs == nil {
		return fmt.Errorf("%w: run history needs a database, run 'plsync setup database'", shared.ErrServiceUnavailable)
	}
	return nil
}

// RunsList prints recent sync runs.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireRuns(); err != nil {
		return err
	}

	listings, err := r.runs.List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(listings, true)
	}
	if len(listings) == 0 {
		return r.writePlain("No sync runs recorded\n")
	}

	for _, l := range listings {
		r.writePlain("%s  %-16s %-20s %s  %d ok / %d failed / %d skipped\n",
			l.Run.ID, l.Run.State, l.Run.Direction, l.Run.StartedAt.Format("2006-01-02 15:04:05"),
			l.Summary.Succeeded, l.Summary.Failed, l.Summary.Skipped)
	}
	return nil
}

// RunsShow prints one run with its operations.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireRuns(); err != nil {
		return err
	}
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	run, err := r.runs.Get(ctx, id)
	if err != nil {
		return err
	}

	data, err := formatter.RenderRun(run, format)
	if err != nil {
		return err
	}
	return r.writeRendered(data, cmd.String("output"))
}
