package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

const jobColumns = `id, post_id, account_id, run_at, status, attempts, last_error, created_at, updated_at`

// SchedulerJobRepository stores the pending publication of posts.
//
// There is at most one job per post.
type SchedulerJobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSchedulerJobRepository creates a new SchedulerJobRepository with the given database connection
func NewSchedulerJobRepository(db *sql.DB) *SchedulerJobRepository {
	return &SchedulerJobRepository{db: db, now: time.Now}
}

// CreateSchedulerJob schedules postID to publish at runAt, replacing any existing job for the post.
//
// The post moves to [models.PostScheduled].
func (r *SchedulerJobRepository) CreateSchedulerJob(postID string, runAt time.Time) (*models.SchedulerJob, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var accountID string
	if err := tx.QueryRow(`SELECT account_id FROM posts WHERE id = ?`, postID).Scan(&accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPostNotFound, postID)
		}
		return nil, fmt.Errorf("failed to look up post: %w", err)
	}

	now := r.now().UTC()
	job := &models.SchedulerJob{
		ID:        shared.GenerateID(),
		PostID:    postID,
		AccountID: accountID,
		RunAt:     runAt.UTC(),
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM scheduler_jobs WHERE post_id = ?`, postID); err != nil {
		return nil, fmt.Errorf("failed to replace scheduler job: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO scheduler_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		job.ID, job.PostID, job.AccountID, job.RunAt, string(job.Status), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert scheduler job: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE posts SET status = ?, updated_at = ? WHERE id = ?`,
		string(models.PostScheduled), now, postID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark post scheduled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit scheduler job: %w", err)
	}
	return job, nil
}

// DeleteSchedulerJob removes the job for postID and returns a scheduled post to draft.
func (r *SchedulerJobRepository) DeleteSchedulerJob(postID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM scheduler_jobs WHERE post_id = ?`, postID)
	if err != nil {
		return fmt.Errorf("failed to delete scheduler job: %w", err)
	}
	if err := expectRow(result, shared.ErrJobNotFound, postID); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE posts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.PostDraft), r.now().UTC(), postID, string(models.PostScheduled),
	); err != nil {
		return fmt.Errorf("failed to reset post status: %w", err)
	}

	return tx.Commit()
}

// GetByPost returns the job scheduled for postID.
func (r *SchedulerJobRepository) GetByPost(postID string) (*models.SchedulerJob, error) {
	job, err := scanJob(r.db.QueryRow(`SELECT `+jobColumns+` FROM scheduler_jobs WHERE post_id = ?`, postID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, postID)
	}
	return job, err
}

// ListDue returns pending jobs with run_at at or before now, oldest first.
func (r *SchedulerJobRepository) ListDue(now time.Time, limit int) ([]*models.SchedulerJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT `+jobColumns+` FROM scheduler_jobs WHERE status = ? AND run_at <= ? ORDER BY run_at ASC LIMIT ?`,
		string(models.JobPending), now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// List returns every job, soonest first.
func (r *SchedulerJobRepository) List() ([]*models.SchedulerJob, error) {
	rows, err := r.db.Query(`SELECT ` + jobColumns + ` FROM scheduler_jobs ORDER BY run_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Claim moves a pending job to running. It returns false when another worker claimed it first.
func (r *SchedulerJobRepository) Claim(id string) (bool, error) {
	result, err := r.db.Exec(
		`UPDATE scheduler_jobs SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.JobRunning), r.now().UTC(), id, string(models.JobPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// Finish records the terminal status of a job. lastErr is stored for failed jobs.
func (r *SchedulerJobRepository) Finish(id string, status models.JobStatus, lastErr string) error {
	result, err := r.db.Exec(
		`UPDATE scheduler_jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), nullable(lastErr), r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return expectRow(result, shared.ErrJobNotFound, id)
}

func collectJobs(rows *sql.Rows) ([]*models.SchedulerJob, error) {
	var jobs []*models.SchedulerJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*models.SchedulerJob, error) {
	var (
		j         models.SchedulerJob
		status    string
		lastError sql.NullString
	)

	err := row.Scan(&j.ID, &j.PostID, &j.AccountID, &j.RunAt, &status, &j.Attempts, &lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scheduler job: %w", err)
	}

	j.Status = models.JobStatus(status)
	j.LastError = lastError.String
	return &j, nil
}
