package tasks

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/postx/internal/shared"
)

const (
	DefaultMaxFileSize int64 = 4 << 30
	DefaultMaxDuration       = 300 * time.Second
)

// DefaultAllowedTypes are the video formats both platforms accept.
var DefaultAllowedTypes = []string{"video/mp4", "video/quicktime", "video/webm"}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".qt":   "video/quicktime",
	".webm": "video/webm",
}

// Limits bound what the orchestrator will upload.
type Limits struct {
	MaxFileSize  int64
	MaxDuration  time.Duration
	AllowedTypes []string
}

// DefaultLimits returns 4 GiB, 300 seconds, and mp4/quicktime/webm.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:  DefaultMaxFileSize,
		MaxDuration:  DefaultMaxDuration,
		AllowedTypes: DefaultAllowedTypes,
	}
}

// LimitsFromConfig overrides the defaults with any non-zero values in cfg.
func LimitsFromConfig(cfg shared.UploadConfig) Limits {
	l := DefaultLimits()
	if cfg.MaxFileSize > 0 {
		l.MaxFileSize = cfg.MaxFileSize
	}
	if cfg.MaxDurationSeconds > 0 {
		l.MaxDuration = cfg.MaxDuration()
	}
	return l
}

// Validate checks size, type and duration. A zero Duration is not checked.
func (l Limits) Validate(file VideoFile) error {
	if file.Size <= 0 {
		return fmt.Errorf("%w: %s is empty", shared.ErrInvalidInput, file.displayName())
	}
	if l.MaxFileSize > 0 && file.Size > l.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", shared.ErrFileTooLarge, file.Size, l.MaxFileSize)
	}
	if len(l.AllowedTypes) > 0 && !slices.Contains(l.AllowedTypes, file.MimeType) {
		return fmt.Errorf("%w: %q", shared.ErrUnsupportedFormat, file.MimeType)
	}
	if l.MaxDuration > 0 && file.Duration > l.MaxDuration {
		return fmt.Errorf("%w: %s is longer than %s", shared.ErrDurationExceeded, file.Duration, l.MaxDuration)
	}
	return nil
}

// VideoFile is the input to an upload. Reader must serve Size bytes.
type VideoFile struct {
	Name     string
	Size     int64
	MimeType string
	Duration time.Duration
	Reader   io.ReaderAt
}

func (f VideoFile) displayName() string {
	if f.Name == "" {
		return "video"
	}
	return filepath.Base(f.Name)
}

// OpenVideo opens path, detects its type, and probes its duration when the container allows it.
//
// The caller closes the returned file.
func OpenVideo(path string) (*VideoFile, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open video: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat video: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is a directory", shared.ErrInvalidInput, path)
	}

	video := &VideoFile{
		Name:     path,
		Size:     info.Size(),
		MimeType: DetectMimeType(path, f),
		Reader:   f,
	}

	if video.MimeType == "video/mp4" || video.MimeType == "video/quicktime" {
		if d, err := ProbeMP4Duration(f, video.Size); err == nil {
			video.Duration = d
		}
	}
	return video, f, nil
}

// DetectMimeType sniffs the first bytes of r and falls back to the file extension.
func DetectMimeType(name string, r io.ReaderAt) string {
	head := make([]byte, 512)
	n, _ := r.ReadAt(head, 0)

	sniffed := http.DetectContentType(head[:n])
	if strings.HasPrefix(sniffed, "video/") {
		return sniffed
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return sniffed
}
