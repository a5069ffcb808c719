package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/desertthunder/postx/internal/tasks"
	"github.com/desertthunder/postx/internal/ui"
	"github.com/urfave/cli/v3"
)

var errUploadCancelled = errors.New("upload cancelled")

var privacyLevels = []services.Privacy{
	services.PrivacyPublic,
	services.PrivacyFriends,
	services.PrivacyFollowers,
	services.PrivacySelfOnly,
}

func parsePrivacy(s string) (services.Privacy, error) {
	if s == "" {
		return services.PrivacySelfOnly, nil
	}
	p := services.Privacy(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range privacyLevels {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown privacy level %q", shared.ErrInvalidArgument, s)
}

// Upload validates a video, uploads it in chunks and publishes it, recording the outcome as a post.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file", shared.ErrMissingArgument)
	}

	privacy, err := parsePrivacy(cmd.String("privacy"))
	if err != nil {
		return err
	}
	caption := cmd.String("caption")

	client, err := r.clients.ForAccount(account)
	if err != nil {
		return err
	}

	video, f, err := tasks.OpenVideo(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if d := cmd.Duration("duration"); d > 0 {
		video.Duration = d
	}

	post := &models.Post{
		AccountID:    account.ID,
		VideoPath:    path,
		Caption:      caption,
		PrivacyLevel: string(privacy),
		Status:       models.PostPublishing,
	}
	if err := r.posts.Create(post); err != nil {
		return err
	}

	opts := tasks.OrchestratorOptsFromConfig(r.config.Upload)
	req := tasks.PublishRequest{Caption: caption, Privacy: privacy}
	upload := func(ctx context.Context, _ *models.Account, progress chan<- tasks.ProgressUpdate) (*tasks.UploadResult, error) {
		logger := shared.WithLogger(r.logger, "post", post.ID)
		return tasks.NewUploadOrchestrator(client, opts, logger).Run(ctx, *video, req, progress)
	}

	var result *tasks.UploadResult
	if cmd.Bool("tui") {
		result, err = r.uploadTUI(ctx, ui.Options{
			Selected: account,
			Video:    *video,
			Caption:  caption,
			Privacy:  string(privacy),
			Upload:   upload,
		})
	} else {
		r.writePlain("Uploading %s to %s (%s)\n", video.Name, account.Display().Name, account.Platform.DisplayName())
		result, err = r.uploadPlain(ctx, account, upload)
	}

	switch {
	case errors.Is(err, errUploadCancelled):
		if err := r.posts.Delete(post.ID); err != nil {
			r.logger.Warn("failed to remove cancelled post", "post", post.ID, "error", err)
		}
		return r.writePlain("Upload cancelled\n")
	case err != nil:
		if updateErr := r.posts.UpdateStatus(post.ID, models.PostFailed, repositories.PublishResult{ErrorMessage: shared.UserMessage(err)}); updateErr != nil {
			r.logger.Warn("failed to record upload failure", "post", post.ID, "error", updateErr)
		}
		return err
	}

	if err := r.posts.UpdateStatus(post.ID, models.PostPublished, repositories.PublishResult{
		PublishID: result.PublishID,
		VideoID:   result.VideoID,
		ShareURL:  result.ShareURL,
	}); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Upload Complete!")
	r.writePlain("Post:       %s\n", post.ID)
	r.writePlain("Publish ID: %s\n", result.PublishID)
	r.writePlain("Video ID:   %s\n", result.VideoID)
	r.writePlain("Chunks:     %d\n", result.Chunks)
	if result.ShareURL != "" {
		r.writePlain("URL:        %s\n", result.ShareURL)
	}
	return nil
}

// uploadPlain prints progress updates as lines while upload runs.
func (r *Runner) uploadPlain(ctx context.Context, account *models.Account, upload ui.UploadFunc) (*tasks.UploadResult, error) {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writeProgress(update)
		}
	}()

	result, err := upload(ctx, account, progress)
	close(progress)
	<-done
	return result, err
}

func (r *Runner) writeProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.PhaseUpload:
		r.writePlain("  ↑ chunk %d/%d (%d%%)\n", update.Step, update.Total, update.Percent)
	case tasks.PhaseProcessing:
		r.writePlain("  ⏳ %s\n", update.Message)
	case tasks.PhaseComplete, tasks.PhaseError:
	default:
		r.writePlain("  %s\n", update.Message)
	}
}

// uploadTUI runs the upload behind the interactive progress view.
func (r *Runner) uploadTUI(ctx context.Context, opts ui.Options) (*tasks.UploadResult, error) {
	model := ui.NewModel(ctx, opts)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if result == nil && err == nil {
		return nil, errUploadCancelled
	}
	return result, err
}
