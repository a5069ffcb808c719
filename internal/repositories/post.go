package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

const postColumns = `
	id, sequence, account_id, video_path, caption, privacy_level, status,
	publish_id, video_id, share_url, error_message, created_at, updated_at
`

// PostRepository implements models.Repository[*models.Post].
type PostRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostRepository creates a new PostRepository with the given database connection
func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db, now: time.Now}
}

// PublishResult is the outcome written back to a post after an upload.
type PublishResult struct {
	PublishID    string
	VideoID      string
	ShareURL     string
	ErrorMessage string
}

// Create inserts a new post with generated ID and sequence
func (r *PostRepository) Create(post *models.Post) error {
	if post.ID == "" {
		post.SetID(shared.GenerateID())
	}
	if post.Status == "" {
		post.Status = models.PostDraft
	}

	if err := post.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "posts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := r.now().UTC()
	post.Sequence = sequence
	post.CreatedAt = now
	post.UpdatedAt = now

	_, err = r.db.Exec(`
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		sequence,
		post.AccountID,
		post.VideoPath,
		post.Caption,
		post.PrivacyLevel,
		string(post.Status),
		nullable(post.PublishID),
		nullable(post.VideoID),
		nullable(post.ShareURL),
		nullable(post.ErrorMessage),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Get retrieves a post by ID
func (r *PostRepository) Get(id string) (*models.Post, error) {
	post, err := scanPost(r.db.QueryRow(`SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPostNotFound, id)
	}
	return post, err
}

// Update modifies an existing post in the database
func (r *PostRepository) Update(post *models.Post) error {
	if err := post.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := r.now().UTC()
	result, err := r.db.Exec(`
		UPDATE posts
		SET video_path = ?, caption = ?, privacy_level = ?, status = ?,
			publish_id = ?, video_id = ?, share_url = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		post.VideoPath,
		post.Caption,
		post.PrivacyLevel,
		string(post.Status),
		nullable(post.PublishID),
		nullable(post.VideoID),
		nullable(post.ShareURL),
		nullable(post.ErrorMessage),
		now,
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	if err := expectRow(result, shared.ErrPostNotFound, post.ID); err != nil {
		return err
	}
	post.UpdatedAt = now
	return nil
}

// UpdateStatus sets the status of a post and records the publication result.
func (r *PostRepository) UpdateStatus(id string, status models.PostStatus, res PublishResult) error {
	result, err := r.db.Exec(`
		UPDATE posts
		SET status = ?,
			publish_id = COALESCE(?, publish_id),
			video_id = COALESCE(?, video_id),
			share_url = COALESCE(?, share_url),
			error_message = ?,
			updated_at = ?
		WHERE id = ?`,
		string(status),
		nullable(res.PublishID),
		nullable(res.VideoID),
		nullable(res.ShareURL),
		nullable(res.ErrorMessage),
		r.now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update post status: %w", err)
	}
	return expectRow(result, shared.ErrPostNotFound, id)
}

// Delete removes a post; its scheduler job is removed by the foreign key cascade.
func (r *PostRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return expectRow(result, shared.ErrPostNotFound, id)
}

// List retrieves posts filtered by "account_id" and "status" criteria.
func (r *PostRepository) List(criteria map[string]any) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE 1 = 1`
	args := []any{}

	if accountID, ok := criteria["account_id"].(string); ok && accountID != "" {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}

	if status, ok := criteria["status"].(models.PostStatus); ok && status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return posts, nil
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		p                                     models.Post
		status                                string
		publishID, videoID, shareURL, message sql.NullString
	)

	err := row.Scan(
		&p.ID, &p.Sequence, &p.AccountID, &p.VideoPath, &p.Caption, &p.PrivacyLevel, &status,
		&publishID, &videoID, &shareURL, &message, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	p.Status = models.PostStatus(status)
	p.PublishID = publishID.String
	p.VideoID = videoID.String
	p.ShareURL = shareURL.String
	p.ErrorMessage = message.String
	return &p, nil
}
