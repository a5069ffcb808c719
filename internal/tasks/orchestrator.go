package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultChunkSize    int64 = 10 << 20
	DefaultPollInterval       = 2 * time.Second
	DefaultPollAttempts       = 30
)

// State is the orchestrator lifecycle. SUCCESS and ERROR are terminal.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateUploading
	StateProcessing
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateUploading:
		return "UPLOADING"
	case StateProcessing:
		return "PROCESSING"
	case StateSuccess:
		return "SUCCESS"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PublishRequest is the post that accompanies an upload.
type PublishRequest struct {
	Caption string
	Privacy services.Privacy
	Options services.PublishOptions
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	Platform  string
	PublishID string
	VideoID   string
	ShareURL  string
	Chunks    int
	Polls     int
}

// OrchestratorOpts configures chunking, validation and polling. Zero values use the defaults.
type OrchestratorOpts struct {
	ChunkSize    int64
	PollInterval time.Duration
	PollAttempts int
	Limits       Limits
}

// OrchestratorOptsFromConfig maps the [upload] config section onto OrchestratorOpts.
func OrchestratorOptsFromConfig(cfg shared.UploadConfig) OrchestratorOpts {
	return OrchestratorOpts{
		ChunkSize:    cfg.ChunkSize,
		PollInterval: cfg.PollInterval(),
		PollAttempts: cfg.PollAttempts,
		Limits:       LimitsFromConfig(cfg),
	}
}

func (o OrchestratorOpts) withDefaults() OrchestratorOpts {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = DefaultPollAttempts
	}
	if o.Limits.MaxFileSize == 0 && o.Limits.MaxDuration == 0 && o.Limits.AllowedTypes == nil {
		o.Limits = DefaultLimits()
	}
	return o
}

// UploadOrchestrator drives a [services.PlatformClient] through a single upload:
// init, ordered chunk uploads, completion, publish, then bounded status polling.
//
// An orchestrator runs once. Build a new one per upload.
type UploadOrchestrator struct {
	client services.PlatformClient
	opts   OrchestratorOpts
	logger *log.Logger

	mu      sync.Mutex
	state   State
	session *services.UploadSession
}

// NewUploadOrchestrator creates an orchestrator in the IDLE state.
func NewUploadOrchestrator(client services.PlatformClient, opts OrchestratorOpts, logger *log.Logger) *UploadOrchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &UploadOrchestrator{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger.With("platform", client.Platform()),
		state:  StateIdle,
	}
}

// State returns the current state.
func (o *UploadOrchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the upload session once initialized.
func (o *UploadOrchestrator) Session() *services.UploadSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

func (o *UploadOrchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("upload state", "state", s)
}

// Run uploads file and publishes it with req.
//
// Validation runs before any network call. Failures are sent on progress as a [PhaseError] update
// and returned. A second call returns [shared.ErrOrchestratorFinished].
func (o *UploadOrchestrator) Run(ctx context.Context, file VideoFile, req PublishRequest, progress chan<- ProgressUpdate) (*UploadResult, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: state is %s", shared.ErrOrchestratorFinished, state)
	}
	o.state = StateInitializing
	o.mu.Unlock()

	result, err := o.run(ctx, file, req, progress)
	if err != nil {
		o.setState(StateError)
		o.logger.Error("upload failed", "file", file.displayName(), "error", err)
		sendProgress(progress, errorUpdate(err))
		return nil, err
	}

	o.setState(StateSuccess)
	o.logger.Info("upload published", "publish_id", result.PublishID, "video_id", result.VideoID)
	sendProgress(progress, completeUpdate(result))
	return result, nil
}

func (o *UploadOrchestrator) run(ctx context.Context, file VideoFile, req PublishRequest, progress chan<- ProgressUpdate) (*UploadResult, error) {
	sendProgress(progress, validateUpdate(file))
	if err := o.opts.Limits.Validate(file); err != nil {
		return nil, err
	}
	if file.Reader == nil {
		return nil, fmt.Errorf("%w: no reader for %s", shared.ErrInvalidInput, file.displayName())
	}

	sendProgress(progress, initializeUpdate(1, 1))
	session, err := o.client.InitUpload(ctx, services.UploadRequest{
		FileSize:  file.Size,
		ChunkSize: o.opts.ChunkSize,
		MimeType:  file.MimeType,
		Caption:   req.Caption,
		Privacy:   req.Privacy,
		Options:   req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload: %w", err)
	}

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	o.setState(StateUploading)
	if err := o.uploadChunks(ctx, file.Reader, session, progress); err != nil {
		return nil, err
	}

	videoID, err := o.client.CompleteUpload(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to complete upload: %w", err)
	}
	session.VideoID = videoID

	sendProgress(progress, publishUpdate())
	publishID, err := o.client.Publish(ctx, videoID, req.Caption, req.Privacy, req.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to publish: %w", err)
	}

	o.setState(StateProcessing)
	status, polls, err := o.poll(ctx, publishID, progress)
	if err != nil {
		return nil, err
	}
	session.Status = status.Status

	result := &UploadResult{
		Platform:  string(o.client.Platform()),
		PublishID: publishID,
		VideoID:   status.VideoID,
		ShareURL:  status.ShareURL,
		Chunks:    session.TotalChunks,
		Polls:     polls,
	}
	if result.VideoID == "" {
		result.VideoID = videoID
	}
	return result, nil
}

// uploadChunks sends chunks 0..n-1 in order and stops at the first failure.
func (o *UploadOrchestrator) uploadChunks(ctx context.Context, r io.ReaderAt, session *services.UploadSession, progress chan<- ProgressUpdate) error {
	total := session.TotalChunks
	if total <= 0 {
		return fmt.Errorf("%w: upload session has no chunks", shared.ErrProviderError)
	}

	buf := make([]byte, session.ChunkSize)
	for index := range total {
		if err := ctx.Err(); err != nil {
			return err
		}

		start, end := session.ChunkRange(index)
		chunk := buf[:end-start+1]

		n, err := r.ReadAt(chunk, start)
		if n < len(chunk) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("failed to read chunk %d: %w", index, err)
		}

		if err := o.client.UploadChunk(ctx, session, chunk, index); err != nil {
			return err
		}

		o.logger.Debug("chunk uploaded", "index", index, "total", total)
		sendProgress(progress, uploadUpdate(index+1, total))
	}
	return nil
}

// poll checks the publish status until it leaves PROCESSING or the attempt budget runs out.
func (o *UploadOrchestrator) poll(ctx context.Context, publishID string, progress chan<- ProgressUpdate) (*services.PublishStatus, int, error) {
	limiter := rate.NewLimiter(rate.Every(o.opts.PollInterval), 1)

	for attempt := 1; attempt <= o.opts.PollAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, attempt - 1, err
		}

		status, err := o.client.GetPublishStatus(ctx, publishID)
		if err != nil {
			return nil, attempt, fmt.Errorf("failed to fetch publish status: %w", err)
		}

		switch status.Status {
		case services.StatusProcessing:
			sendProgress(progress, processingUpdate(attempt, o.opts.PollAttempts, status.RawStatus))
		case services.StatusSuccess:
			return status, attempt, nil
		default:
			msg := status.ErrorMessage
			if msg == "" {
				msg = "video processing failed"
			}
			return nil, attempt, &shared.ProviderError{
				Platform: string(o.client.Platform()),
				Code:     status.RawStatus,
				Message:  msg,
			}
		}
	}

	return nil, o.opts.PollAttempts, fmt.Errorf("%w: still processing after %d checks", shared.ErrProcessingTimeout, o.opts.PollAttempts)
}
