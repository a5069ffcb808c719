package tasks

import (
	"fmt"
	"math"
)

// ProgressUpdate represents a progress event during an upload or a dispatch run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Percent int    // Upload percentage, round(chunks done / total chunks * 100)
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhaseValidate Phase = iota
	PhaseInitialize
	PhaseUpload
	PhasePublish
	PhaseProcessing
	PhaseComplete
	PhaseError
	PhaseDispatch
)

func (p Phase) String() string {
	switch p {
	case PhaseValidate:
		return "validate"
	case PhaseInitialize:
		return "initialize"
	case PhaseUpload:
		return "upload"
	case PhasePublish:
		return "publish"
	case PhaseProcessing:
		return "processing"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	case PhaseDispatch:
		return "dispatch"
	default:
		return ""
	}
}

// Percent returns round(done/total*100).
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

func validateUpdate(file VideoFile) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseValidate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Validating %s...", file.displayName()),
	}
}

func initializeUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseInitialize,
		Step:    step,
		Total:   total,
		Message: "Opening upload session...",
	}
}

func uploadUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseUpload,
		Step:    step,
		Total:   total,
		Percent: Percent(step, total),
		Message: fmt.Sprintf("[%d/%d] Uploaded chunk", step, total),
	}
}

func publishUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhasePublish,
		Step:    1,
		Total:   1,
		Percent: 100,
		Message: "Publishing video...",
	}
}

func processingUpdate(step, total int, raw string) ProgressUpdate {
	msg := "Waiting for the platform to process the video..."
	if raw != "" {
		msg = fmt.Sprintf("Waiting for the platform to process the video (%s)...", raw)
	}
	return ProgressUpdate{
		Phase:   PhaseProcessing,
		Step:    step,
		Total:   total,
		Percent: 100,
		Message: msg,
	}
}

func completeUpdate(result *UploadResult) ProgressUpdate {
	msg := "✓ Video published"
	if result.ShareURL != "" {
		msg = fmt.Sprintf("✓ Video published: %s", result.ShareURL)
	}
	return ProgressUpdate{
		Phase:   PhaseComplete,
		Step:    1,
		Total:   1,
		Percent: 100,
		Message: msg,
		Data:    result,
	}
}

func errorUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseError,
		Message: err.Error(),
		Data:    err,
	}
}

func dispatchUpdate(step, total int, job string, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   PhaseDispatch,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, job, err),
		}
	}
	return ProgressUpdate{
		Phase:   PhaseDispatch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, job),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}
