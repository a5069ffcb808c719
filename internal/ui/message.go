package ui

import (
	"github.com/desertthunder/postx/internal/tasks"
)

// progressUpdateMsg carries a [tasks.ProgressUpdate] from the running upload.
type progressUpdateMsg tasks.ProgressUpdate

// uploadCompleteMsg is sent once the progress channel is drained.
type uploadCompleteMsg struct {
	result *tasks.UploadResult
	err    error
}
