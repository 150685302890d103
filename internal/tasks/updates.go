package tasks

import (
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
)

// ProgressUpdate represents a progress event during a compare or sync.
//
// Used to send real-time updates to the CLI or HTTP layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	FetchTarget
	Compare
	Resolve
	Execute
	Finish
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case FetchTarget:
		return "fetch_target"
	case Compare:
		return "compare"
	case Resolve:
		return "resolve"
	case Execute:
		return "execute"
	case Finish:
		return "finish"
	default:
		return ""
	}
}

func fetchSourceUpdate(p models.Platform, playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching source playlist %s from %s...", playlistID, p),
	}
}

func fetchTargetUpdate(p models.Platform, playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTarget,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching target playlist %s from %s...", playlistID, p),
	}
}

func compareUpdate(report models.DiffReport) ProgressUpdate {
	return ProgressUpdate{
		Phase: Compare,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("Matched %d, missing on target %d, missing on source %d, ambiguous %d",
			len(report.Matched), len(report.MissingOnTarget), len(report.MissingOnSource), len(report.Ambiguous)),
		Data: report,
	}
}

func resolveUpdate(step, total int, track models.TrackRef) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolve,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Searching %s", step, total, track),
	}
}

func executeUpdate(step, total int, op models.SyncOperation) ProgressUpdate {
	mark := "✓"
	if op.Status != models.OpSucceeded {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   Execute,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s %s (%s)", step, total, mark, op.Kind, op.Track, op.Status),
		Data:    op,
	}
}

func finishUpdate(run *models.SyncRun) ProgressUpdate {
	s := run.Summary()
	return ProgressUpdate{
		Phase: Finish,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("Run %s %s: %d succeeded, %d failed, %d skipped",
			run.ID, run.State, s.Succeeded, s.Failed, s.Skipped),
		Data: run,
	}
}
