package services

import (
	"context"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
)

// AccountStore is the token store the OAuth flow and refresh guard depend on.
//
// [repositories.AccountRepository] implements it.
type AccountStore interface {
	Get(id string) (*models.Account, error)
	Upsert(platform models.PlatformType, platformAccountID string, fields repositories.UpsertFields) (*models.Account, bool, error)
	UpdateTokens(id, accessToken, refreshToken string, expiry time.Time) error
	UpdateProfile(id, accountName string, profile models.Profile) error
}

// TokenSource yields a valid access token for each authenticated request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a [TokenSource] for a token obtained moments ago, e.g. during a code exchange.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) { return string(t), nil }

// PlatformClient is the authenticated API surface the upload orchestrator drives.
type PlatformClient interface {
	Platform() models.PlatformType

	// GetProfileInfo returns the account profile. Provider errors produce a degraded profile, not an error.
	GetProfileInfo(ctx context.Context) (models.Profile, error)

	// InitUpload opens an upload session for req.FileSize bytes split into req.ChunkSize chunks.
	InitUpload(ctx context.Context, req UploadRequest) (*UploadSession, error)

	// UploadChunk uploads chunk number index. A rejected chunk returns [shared.ChunkUploadFailedError].
	UploadChunk(ctx context.Context, session *UploadSession, chunk []byte, index int) error

	// CompleteUpload confirms every byte was received and returns the video id.
	CompleteUpload(ctx context.Context, session *UploadSession) (string, error)

	// Publish makes the uploaded video visible and returns the id to poll.
	Publish(ctx context.Context, videoID, caption string, privacy Privacy, opts PublishOptions) (string, error)

	// GetPublishStatus reports the provider's processing status for publishID.
	GetPublishStatus(ctx context.Context, publishID string) (*PublishStatus, error)
}

// Privacy uses TikTok's privacy level names; other platforms map them to their own.
type Privacy string

const (
	PrivacyPublic    Privacy = "PUBLIC_TO_EVERYONE"
	PrivacyFriends   Privacy = "MUTUAL_FOLLOW_FRIENDS"
	PrivacyFollowers Privacy = "FOLLOWER_OF_CREATOR"
	PrivacySelfOnly  Privacy = "SELF_ONLY"
)

// PublishOptions are the optional post settings. Platforms ignore what they don't support.
type PublishOptions struct {
	Description      string
	Tags             []string
	DisableDuet      bool
	DisableComment   bool
	DisableStitch    bool
	CoverTimestampMS int64
	MadeForKids      bool
	PublishAt        time.Time
}

// UploadRequest describes the file and post an upload session is opened for.
type UploadRequest struct {
	FileSize  int64
	ChunkSize int64
	MimeType  string
	Caption   string
	Privacy   Privacy
	Options   PublishOptions
}

// UploadStatus is the normalized processing state of a published video.
type UploadStatus string

const (
	StatusProcessing UploadStatus = "PROCESSING"
	StatusSuccess    UploadStatus = "SUCCESS"
	StatusFailed     UploadStatus = "FAILED"
)

// UploadSession lives for the duration of a single upload attempt.
type UploadSession struct {
	PublishID   string
	UploadURL   string
	FileSize    int64
	ChunkSize   int64
	TotalChunks int
	ChunkIndex  int
	VideoID     string
	Status      UploadStatus
}

// ChunkRange returns the inclusive byte range of chunk index.
func (s *UploadSession) ChunkRange(index int) (start, end int64) {
	start = int64(index) * s.ChunkSize
	end = min(start+s.ChunkSize, s.FileSize) - 1
	return start, end
}

// PublishStatus is a single status poll result.
type PublishStatus struct {
	Status       UploadStatus
	RawStatus    string
	VideoID      string
	ShareURL     string
	ErrorMessage string
}

// TotalChunks returns ceil(fileSize / chunkSize).
func TotalChunks(fileSize, chunkSize int64) int {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}
