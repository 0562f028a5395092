package tasks

import (
	"fmt"

	"github.com/desertthunder/ytplay/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	QueueTracks Phase = iota
	ResolveTracks
	WriteReport
)

func (p Phase) String() string {
	switch p {
	case QueueTracks:
		return "queue_tracks"
	case ResolveTracks:
		return "resolve_tracks"
	case WriteReport:
		return "write_report"
	default:
		return ""
	}
}

func queuedUpdate(step, total int, id models.TrackID) ProgressUpdate {
	return ProgressUpdate{
		Phase:   QueueTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Queued %s", step, total, id),
	}
}

func resolvedUpdate(step, total int, res models.PrefetchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s via %s", step, total, res.TrackID, res.Profile),
		Data:    res,
	}
}

func failedUpdate(step, total int, res models.PrefetchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, res.TrackID, res.Error),
		Data:    res,
	}
}

func reportUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteReport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing report to %s...", path),
	}
}
