package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/desertthunder/postx/internal/formatter"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/desertthunder/postx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PostsList lists posts with their scheduled run time.
func (r *Runner) PostsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	criteria := map[string]any{}
	if ref := cmd.String("account"); ref != "" {
		account, err := r.account(ref)
		if err != nil {
			return err
		}
		criteria["account_id"] = account.ID
	}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = models.PostStatus(strings.ToUpper(status))
	}

	posts, err := r.posts.List(criteria)
	if err != nil {
		return err
	}

	jobs, err := r.jobs.List()
	if err != nil {
		return err
	}
	byPost := make(map[string]*models.SchedulerJob, len(jobs))
	for _, job := range jobs {
		byPost[job.PostID] = job
	}

	return formatter.WritePosts(r.output, posts, byPost, format)
}

// parseRunAt accepts an RFC 3339 timestamp or a delay from now such as "+90m".
func parseRunAt(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: --at", shared.ErrMissingArgument)
	}

	if delay, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(delay)
		if err != nil || d <= 0 {
			return time.Time{}, fmt.Errorf("%w: invalid delay %q", shared.ErrInvalidArgument, s)
		}
		return now.Add(d), nil
	}

	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q, expected RFC 3339", shared.ErrInvalidArgument, s)
	}
	if !at.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s is in the past", shared.ErrInvalidArgument, s)
	}
	return at, nil
}

// ScheduleAdd validates a video and schedules it for publication.
func (r *Runner) ScheduleAdd(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file", shared.ErrMissingArgument)
	}

	runAt, err := parseRunAt(cmd.String("at"), r.now())
	if err != nil {
		return err
	}

	privacy, err := parsePrivacy(cmd.String("privacy"))
	if err != nil {
		return err
	}

	if _, err := r.clients.ForAccount(account); err != nil {
		return err
	}

	// Reject files now rather than when the job runs.
	video, f, err := tasks.OpenVideo(path)
	if err != nil {
		return err
	}
	f.Close()
	if err := tasks.LimitsFromConfig(r.config.Upload).Validate(*video); err != nil {
		return err
	}

	post := &models.Post{
		AccountID:    account.ID,
		VideoPath:    path,
		Caption:      cmd.String("caption"),
		PrivacyLevel: string(privacy),
	}
	if err := r.posts.Create(post); err != nil {
		return err
	}

	job, err := r.jobs.CreateSchedulerJob(post.ID, runAt)
	if err != nil {
		return err
	}

	r.logger.Info("post scheduled", "post", post.ID, "job", job.ID, "run_at", job.RunAt)
	r.writePlain("✓ Scheduled post #%d for %s\n", post.Sequence, job.RunAt.Local().Format("2006-01-02 15:04"))
	return r.writePlain("  ID: %s\n", post.ID)
}

// ScheduleRemove deletes a post's scheduler job and returns the post to draft.
func (r *Runner) ScheduleRemove(ctx context.Context, cmd *cli.Command) error {
	postID := cmd.StringArg("post")
	if postID == "" {
		return fmt.Errorf("%w: post", shared.ErrMissingArgument)
	}

	if err := r.jobs.DeleteSchedulerJob(postID); err != nil {
		return err
	}
	return r.writePlain("✓ Unscheduled post %s\n", postID)
}

func (r *Runner) newDispatcher() *tasks.Dispatcher {
	return tasks.NewDispatcher(r.jobs, r.posts, r.accounts, r.clients, tasks.DispatcherOpts{
		Workers:   r.config.Scheduler.Workers,
		RateLimit: r.config.Scheduler.RateLimit,
		Upload:    tasks.OrchestratorOptsFromConfig(r.config.Upload),
	}, shared.WithLogger(r.logger, "component", "scheduler"))
}

// ScheduleRun publishes due posts once, or on an interval with --watch.
func (r *Runner) ScheduleRun(ctx context.Context, cmd *cli.Command) error {
	dispatcher := r.newDispatcher()

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	var summary *tasks.DispatchSummary
	var err error
	if cmd.Bool("watch") {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		r.logger.Info("watching for due posts", "interval", cmd.Duration("interval"))
		err = dispatcher.Watch(ctx, cmd.Duration("interval"), progress)
	} else {
		summary, err = dispatcher.RunDue(ctx, r.now(), progress)
	}

	close(progress)
	<-done
	if err != nil || summary == nil {
		return err
	}

	if summary.Total == 0 {
		return r.writePlain("No posts are due.\n")
	}

	r.writePlain("\n")
	r.writePlainHeader("Scheduled Run Complete")
	r.writePlain("Published: %d\n", summary.Succeeded)
	r.writePlain("Failed:    %d\n", summary.Failed)
	r.writePlain("Skipped:   %d\n", summary.Skipped)
	return nil
}
