package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

const (
	defaultTikTokBaseURL = "https://open.tiktokapis.com"
	tiktokUserFields     = "open_id,union_id,avatar_url,display_name,bio_description,profile_deep_link,username,follower_count,following_count,likes_count,video_count"
)

// CreatorInfo is the posting capability of a TikTok creator.
type CreatorInfo struct {
	AvatarURL           string    `json:"creator_avatar_url"`
	Username            string    `json:"creator_username"`
	Nickname            string    `json:"creator_nickname"`
	PrivacyLevelOptions []Privacy `json:"privacy_level_options"`
	CommentDisabled     bool      `json:"comment_disabled"`
	DuetDisabled        bool      `json:"duet_disabled"`
	StitchDisabled      bool      `json:"stitch_disabled"`
	MaxVideoDurationSec int       `json:"max_video_post_duration_sec"`
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// tiktokEnvelope is the {"data": ..., "error": ...} shape of every content API response.
type tiktokEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *tiktokError    `json:"error"`
}

// TikTokClient implements [PlatformClient] against the TikTok content posting API.
type TikTokClient struct {
	clientBase
	openID string
}

// NewTikTokClient creates a TikTok client. openID is the account's platform id, used for degraded profiles.
func NewTikTokClient(tokens TokenSource, openID string, opts ...ClientOption) *TikTokClient {
	return &TikTokClient{clientBase: newClientBase(defaultTikTokBaseURL, tokens, opts...), openID: openID}
}

func (c *TikTokClient) Platform() models.PlatformType { return models.TikTok }

// call sends a JSON request and decodes the data field of the response into result.
func (c *TikTokClient) call(ctx context.Context, method, endpoint string, payload, result any) error {
	req, err := c.newJSONRequest(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	var env tiktokEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &shared.ProviderError{Platform: string(models.TikTok), Code: fmt.Sprint(resp.StatusCode), Message: truncate(body)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Error != nil && env.Error.Code != "" && env.Error.Code != "ok" {
		c.logger.Warn("tiktok api error", "code", env.Error.Code, "log_id", env.Error.LogID)
		return &shared.ProviderError{Platform: string(models.TikTok), Code: env.Error.Code, Message: env.Error.Message}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &shared.ProviderError{Platform: string(models.TikTok), Code: fmt.Sprint(resp.StatusCode), Message: truncate(body)}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// GetProfileInfo fetches the user info. On any error it returns a degraded profile.
func (c *TikTokClient) GetProfileInfo(ctx context.Context) (models.Profile, error) {
	var data struct {
		User models.TikTokProfile `json:"user"`
	}

	endpoint := "/v2/user/info/?" + url.Values{"fields": {tiktokUserFields}}.Encode()
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &data); err != nil || data.User.OpenID == "" && data.User.DisplayName == "" {
		if err == nil {
			err = fmt.Errorf("unexpected response structure")
		}
		c.logger.Warn("tiktok profile unavailable", "error", err)
		return &models.TikTokProfile{OpenID: c.openID, DisplayName: "TikTok User (API Error)", Degraded: true}, nil
	}

	return &data.User, nil
}

// QueryCreatorInfo returns the privacy options and limits for the creator.
func (c *TikTokClient) QueryCreatorInfo(ctx context.Context) (*CreatorInfo, error) {
	var info CreatorInfo
	if err := c.call(ctx, http.MethodPost, "/v2/post/publish/creator_info/query/", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// InitUpload opens a direct-post FILE_UPLOAD session. TikTok takes the post settings up front.
func (c *TikTokClient) InitUpload(ctx context.Context, req UploadRequest) (*UploadSession, error) {
	total := TotalChunks(req.FileSize, req.ChunkSize)

	postInfo := map[string]any{
		"title":           req.Caption,
		"privacy_level":   req.Privacy,
		"disable_duet":    req.Options.DisableDuet,
		"disable_comment": req.Options.DisableComment,
		"disable_stitch":  req.Options.DisableStitch,
	}
	if req.Options.CoverTimestampMS > 0 {
		postInfo["video_cover_timestamp_ms"] = req.Options.CoverTimestampMS
	}

	payload := map[string]any{
		"post_info": postInfo,
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        req.FileSize,
			"chunk_size":        req.ChunkSize,
			"total_chunk_count": total,
		},
	}

	var data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	}
	if err := c.call(ctx, http.MethodPost, "/v2/post/publish/video/init/", payload, &data); err != nil {
		return nil, err
	}
	if data.PublishID == "" {
		return nil, &shared.ProviderError{Platform: string(models.TikTok), Code: "missing_publish_id", Message: "no publish id received"}
	}

	return &UploadSession{
		PublishID:   data.PublishID,
		UploadURL:   data.UploadURL,
		FileSize:    req.FileSize,
		ChunkSize:   req.ChunkSize,
		TotalChunks: total,
		Status:      StatusProcessing,
	}, nil
}

// UploadChunk PUTs chunk index to the session's upload URL with its Content-Range.
func (c *TikTokClient) UploadChunk(ctx context.Context, session *UploadSession, chunk []byte, index int) error {
	start, end := session.ChunkRange(index)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(chunk))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, session.FileSize))

	resp, body, err := c.do(req)
	if err != nil {
		return &shared.ChunkUploadFailedError{Index: index, Body: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusPartialContent:
		session.ChunkIndex = index + 1
		return nil
	default:
		return &shared.ChunkUploadFailedError{Index: index, Status: resp.StatusCode, Body: truncate(body)}
	}
}

// CompleteUpload returns the publish id. TikTok starts processing after the last chunk.
func (c *TikTokClient) CompleteUpload(_ context.Context, session *UploadSession) (string, error) {
	if session.ChunkIndex < session.TotalChunks {
		return "", fmt.Errorf("%w: %d of %d chunks uploaded", shared.ErrUploadIncomplete, session.ChunkIndex, session.TotalChunks)
	}
	return session.PublishID, nil
}

// Publish is a no-op: the post settings were sent with [TikTokClient.InitUpload].
func (c *TikTokClient) Publish(_ context.Context, publishID, _ string, _ Privacy, _ PublishOptions) (string, error) {
	return publishID, nil
}

// GetPublishStatus fetches and normalizes the publish status.
func (c *TikTokClient) GetPublishStatus(ctx context.Context, publishID string) (*PublishStatus, error) {
	var data struct {
		Status     string        `json:"status"`
		FailReason string        `json:"fail_reason"`
		PostIDs    []json.Number `json:"publicaly_available_post_id"`
	}

	payload := map[string]string{"publish_id": publishID}
	if err := c.call(ctx, http.MethodPost, "/v2/post/publish/status/fetch/", payload, &data); err != nil {
		return nil, err
	}

	status := &PublishStatus{RawStatus: data.Status}
	switch data.Status {
	case "PROCESSING_UPLOAD", "PROCESSING_DOWNLOAD", "SEND_TO_USER_INBOX":
		status.Status = StatusProcessing
	case "PUBLISH_COMPLETE":
		status.Status = StatusSuccess
	default:
		status.Status = StatusFailed
		status.ErrorMessage = data.FailReason
		if status.ErrorMessage == "" {
			status.ErrorMessage = "unexpected status " + strconv.Quote(data.Status)
		}
	}

	if len(data.PostIDs) > 0 {
		status.VideoID = data.PostIDs[0].String()
	}
	return status, nil
}
