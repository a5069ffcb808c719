package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
	"golang.org/x/time/rate"
)

// JobStore is the scheduler job queue. [repositories.SchedulerJobRepository] implements it.
type JobStore interface {
	ListDue(now time.Time, limit int) ([]*models.SchedulerJob, error)
	Claim(id string) (bool, error)
	Finish(id string, status models.JobStatus, lastErr string) error
}

// PostStore reads posts and records their publication. [repositories.PostRepository] implements it.
type PostStore interface {
	Get(id string) (*models.Post, error)
	UpdateStatus(id string, status models.PostStatus, res repositories.PublishResult) error
}

// AccountLookup loads accounts by id.
type AccountLookup interface {
	Get(id string) (*models.Account, error)
}

// ClientSource builds a platform client for an account. [services.ClientFactory] implements it.
type ClientSource interface {
	ForAccount(account *models.Account) (services.PlatformClient, error)
}

// VideoOpener opens the file behind a post. [OpenVideo] is the default.
type VideoOpener func(path string) (*VideoFile, io.Closer, error)

func openVideoFile(path string) (*VideoFile, io.Closer, error) {
	video, f, err := OpenVideo(path)
	if err != nil {
		return nil, nil, err
	}
	return video, f, nil
}

// DispatcherOpts contains configuration for scheduled publishing.
type DispatcherOpts struct {
	Workers   int              // Concurrent uploads (default: 3)
	RateLimit float64          // Job starts per second (default: 1)
	BatchSize int              // Due jobs loaded per run (default: 50)
	Upload    OrchestratorOpts // Per-upload settings
	Open      VideoOpener      // Defaults to OpenVideo
}

// DispatchResult is the outcome of one scheduler job.
type DispatchResult struct {
	JobID   string
	PostID  string
	Result  *UploadResult
	Skipped bool
	Err     error
}

// DispatchSummary aggregates a [Dispatcher.RunDue] call.
type DispatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Results   []DispatchResult
}

// Dispatcher publishes posts whose scheduler jobs are due.
type Dispatcher struct {
	jobs     JobStore
	posts    PostStore
	accounts AccountLookup
	clients  ClientSource
	opts     DispatcherOpts
	logger   *log.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(jobs JobStore, posts PostStore, accounts AccountLookup, clients ClientSource, opts DispatcherOpts, logger *log.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.Workers > 10 {
		opts.Workers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Open == nil {
		opts.Open = openVideoFile
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{jobs: jobs, posts: posts, accounts: accounts, clients: clients, opts: opts, logger: logger}
}

// RunDue runs every pending job due at now on a rate limited worker pool.
//
// Job failures are recorded on the job and post and reported in the summary; the returned error
// is reserved for failures to load the queue or a cancelled context.
func (d *Dispatcher) RunDue(ctx context.Context, now time.Time, progress chan<- ProgressUpdate) (*DispatchSummary, error) {
	due, err := d.jobs.ListDue(now, d.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load due jobs: %w", err)
	}

	summary := &DispatchSummary{Total: len(due), Results: make([]DispatchResult, 0, len(due))}
	if len(due) == 0 {
		return summary, nil
	}

	d.logger.Info("dispatching due posts", "count", len(due), "workers", d.opts.Workers)

	limiter := rate.NewLimiter(rate.Limit(d.opts.RateLimit), 1)

	jobs := make(chan *models.SchedulerJob, len(due))
	results := make(chan DispatchResult, len(due))

	var wg sync.WaitGroup
	for range d.opts.Workers {
		wg.Add(1)
		go d.worker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, job := range due {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- job
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		summary.Results = append(summary.Results, res)

		switch {
		case res.Skipped:
			summary.Skipped++
		case res.Err != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
		sendProgress(progress, dispatchUpdate(completed, len(due), res.PostID, res.Err))
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// Watch calls RunDue on every tick until ctx is cancelled.
func (d *Dispatcher) Watch(ctx context.Context, interval time.Duration, progress chan<- ProgressUpdate) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunDue(ctx, time.Now(), progress); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("scheduler run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// worker is a worker goroutine that publishes posts from the jobs channel.
func (d *Dispatcher) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan *models.SchedulerJob, results chan<- DispatchResult) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		results <- d.dispatch(ctx, job)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, job *models.SchedulerJob) DispatchResult {
	res := DispatchResult{JobID: job.ID, PostID: job.PostID}
	logger := d.logger.With("job", job.ID, "post", job.PostID)

	claimed, err := d.jobs.Claim(job.ID)
	if err != nil {
		res.Err = err
		return res
	}
	if !claimed {
		logger.Debug("job already claimed")
		res.Skipped = true
		return res
	}

	result, err := d.publish(ctx, job)
	if err != nil {
		logger.Error("scheduled post failed", "error", err)
		res.Err = err

		msg := shared.UserMessage(err)
		if ferr := d.jobs.Finish(job.ID, models.JobFailed, err.Error()); ferr != nil {
			logger.Error("failed to record job failure", "error", ferr)
		}
		if perr := d.posts.UpdateStatus(job.PostID, models.PostFailed, repositories.PublishResult{ErrorMessage: msg}); perr != nil {
			logger.Error("failed to record post failure", "error", perr)
		}
		return res
	}

	res.Result = result
	if err := d.jobs.Finish(job.ID, models.JobDone, ""); err != nil {
		logger.Error("failed to finish job", "error", err)
	}
	if err := d.posts.UpdateStatus(job.PostID, models.PostPublished, repositories.PublishResult{
		PublishID: result.PublishID,
		VideoID:   result.VideoID,
		ShareURL:  result.ShareURL,
	}); err != nil {
		logger.Error("failed to record publication", "error", err)
	}
	logger.Info("scheduled post published", "video_id", result.VideoID)
	return res
}

func (d *Dispatcher) publish(ctx context.Context, job *models.SchedulerJob) (*UploadResult, error) {
	post, err := d.posts.Get(job.PostID)
	if err != nil {
		return nil, err
	}
	if err := d.posts.UpdateStatus(post.ID, models.PostPublishing, repositories.PublishResult{}); err != nil {
		return nil, err
	}

	account, err := d.accounts.Get(post.AccountID)
	if err != nil {
		return nil, err
	}

	client, err := d.clients.ForAccount(account)
	if err != nil {
		return nil, err
	}

	video, closer, err := d.opts.Open(post.VideoPath)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	privacy := services.Privacy(post.PrivacyLevel)
	if privacy == "" {
		privacy = services.PrivacySelfOnly
	}

	orchestrator := NewUploadOrchestrator(client, d.opts.Upload, d.logger)
	return orchestrator.Run(ctx, *video, PublishRequest{Caption: post.Caption, Privacy: privacy}, nil)
}
