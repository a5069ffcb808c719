package models

import (
	"fmt"
	"time"
)

// PostStatus tracks a post through scheduling and publication.
type PostStatus string

const (
	PostDraft      PostStatus = "DRAFT"
	PostScheduled  PostStatus = "SCHEDULED"
	PostPublishing PostStatus = "PUBLISHING"
	PostPublished  PostStatus = "PUBLISHED"
	PostFailed     PostStatus = "FAILED"
)

// Post is a video to publish to a single account.
type Post struct {
	ID           string
	Sequence     int
	AccountID    string
	VideoPath    string
	Caption      string
	PrivacyLevel string
	Status       PostStatus
	PublishID    string
	VideoID      string
	ShareURL     string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p *Post) GetID() string {
	return p.ID
}

func (p *Post) SetID(id string) {
	p.ID = id
}

func (p *Post) Touched() time.Time {
	return p.UpdatedAt
}

func (p *Post) Validate() error {
	switch {
	case p.AccountID == "":
		return fmt.Errorf("account id is required")
	case p.VideoPath == "":
		return fmt.Errorf("video path is required")
	case p.Status == "":
		return fmt.Errorf("status is required")
	}
	return nil
}

// JobStatus tracks a scheduler job.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// SchedulerJob publishes PostID at RunAt.
type SchedulerJob struct {
	ID        string
	PostID    string
	AccountID string
	RunAt     time.Time
	Status    JobStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j *SchedulerJob) GetID() string {
	return j.ID
}

func (j *SchedulerJob) SetID(id string) {
	j.ID = id
}

func (j *SchedulerJob) Touched() time.Time {
	return j.UpdatedAt
}

func (j *SchedulerJob) Validate() error {
	switch {
	case j.PostID == "":
		return fmt.Errorf("post id is required")
	case j.AccountID == "":
		return fmt.Errorf("account id is required")
	case j.RunAt.IsZero():
		return fmt.Errorf("run at is required")
	}
	return nil
}
