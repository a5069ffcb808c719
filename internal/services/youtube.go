package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

const (
	defaultYouTubeBaseURL = "https://www.googleapis.com"
	youtubeShareURL       = "https://youtu.be/"
	youtubeCategoryPeople = "22"
)

// YouTubeClient implements [PlatformClient] against the YouTube Data API v3 using resumable uploads.
type YouTubeClient struct {
	clientBase
}

// NewYouTubeClient creates a YouTube client.
func NewYouTubeClient(tokens TokenSource, opts ...ClientOption) *YouTubeClient {
	return &YouTubeClient{clientBase: newClientBase(defaultYouTubeBaseURL, tokens, opts...)}
}

func (c *YouTubeClient) Platform() models.PlatformType { return models.YouTube }

type youtubeErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func youtubeError(status int, body []byte) error {
	var errResp youtubeErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		code := errResp.Error.Status
		if len(errResp.Error.Errors) > 0 && errResp.Error.Errors[0].Reason != "" {
			code = errResp.Error.Errors[0].Reason
		}
		if code == "" {
			code = strconv.Itoa(status)
		}
		return &shared.ProviderError{Platform: string(models.YouTube), Code: code, Message: errResp.Error.Message}
	}
	return &shared.ProviderError{Platform: string(models.YouTube), Code: strconv.Itoa(status), Message: truncate(body)}
}

// call sends a JSON request and decodes a 2xx body into result.
func (c *YouTubeClient) call(ctx context.Context, method, endpoint string, payload, result any) error {
	req, err := c.newJSONRequest(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return youtubeError(resp.StatusCode, body)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *YouTubeClient) fetchChannel(ctx context.Context) (*models.YouTubeProfile, error) {
	var resp struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				CustomURL   string `json:"customUrl"`
				Thumbnails  map[string]struct {
					URL string `json:"url"`
				} `json:"thumbnails"`
			} `json:"snippet"`
			Statistics struct {
				SubscriberCount string `json:"subscriberCount"`
				ViewCount       string `json:"viewCount"`
				VideoCount      string `json:"videoCount"`
			} `json:"statistics"`
		} `json:"items"`
	}

	if err := c.call(ctx, http.MethodGet, "/youtube/v3/channels?part=snippet,statistics&mine=true", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, &shared.ProviderError{Platform: string(models.YouTube), Code: "no_channel", Message: "no YouTube channel found for this account"}
	}

	item := resp.Items[0]
	profile := &models.YouTubeProfile{
		ChannelID:   item.ID,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		CustomURL:   item.Snippet.CustomURL,
	}
	for _, size := range []string{"high", "medium", "default"} {
		if thumb, ok := item.Snippet.Thumbnails[size]; ok && thumb.URL != "" {
			profile.ThumbnailURL = thumb.URL
			break
		}
	}
	profile.SubscriberCount, _ = strconv.ParseInt(item.Statistics.SubscriberCount, 10, 64)
	profile.ViewCount, _ = strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
	profile.VideoCount, _ = strconv.ParseInt(item.Statistics.VideoCount, 10, 64)
	return profile, nil
}

// GetProfileInfo fetches the authenticated channel. On any error it returns a degraded profile.
func (c *YouTubeClient) GetProfileInfo(ctx context.Context) (models.Profile, error) {
	profile, err := c.fetchChannel(ctx)
	if err != nil {
		c.logger.Warn("youtube profile unavailable", "error", err)
		return &models.YouTubeProfile{Title: "YouTube Channel (API Error)", Degraded: true}, nil
	}
	return profile, nil
}

// InitUpload starts a resumable upload session. The video is created private and made
// visible by [YouTubeClient.Publish].
func (c *YouTubeClient) InitUpload(ctx context.Context, req UploadRequest) (*UploadSession, error) {
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "video/*"
	}

	payload := map[string]any{
		"snippet": map[string]any{
			"title":       req.Caption,
			"description": req.Options.Description,
			"tags":        req.Options.Tags,
			"categoryId":  youtubeCategoryPeople,
		},
		"status": map[string]any{
			"privacyStatus":           "private",
			"selfDeclaredMadeForKids": req.Options.MadeForKids,
		},
	}

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status", payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(req.FileSize, 10))
	httpReq.Header.Set("X-Upload-Content-Type", mimeType)

	resp, body, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, youtubeError(resp.StatusCode, body)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &shared.ProviderError{Platform: string(models.YouTube), Code: "missing_location", Message: "resumable session URL not returned"}
	}

	return &UploadSession{
		UploadURL:   location,
		FileSize:    req.FileSize,
		ChunkSize:   req.ChunkSize,
		TotalChunks: TotalChunks(req.FileSize, req.ChunkSize),
		Status:      StatusProcessing,
	}, nil
}

// UploadChunk PUTs chunk index to the resumable session. 308 means more bytes are expected.
func (c *YouTubeClient) UploadChunk(ctx context.Context, session *UploadSession, chunk []byte, index int) error {
	start, end := session.ChunkRange(index)

	req, err := c.newRequest(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(chunk))
	if err != nil {
		return &shared.ChunkUploadFailedError{Index: index, Body: err.Error()}
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, session.FileSize))

	resp, body, err := c.do(req)
	if err != nil {
		return &shared.ChunkUploadFailedError{Index: index, Body: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusPermanentRedirect:
		session.ChunkIndex = index + 1
		return nil
	case http.StatusOK, http.StatusCreated:
		var video struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &video); err == nil {
			session.VideoID = video.ID
		}
		session.ChunkIndex = index + 1
		return nil
	default:
		return &shared.ChunkUploadFailedError{Index: index, Status: resp.StatusCode, Body: truncate(body)}
	}
}

// CompleteUpload returns the video id, querying the session when the final chunk response lacked it.
func (c *YouTubeClient) CompleteUpload(ctx context.Context, session *UploadSession) (string, error) {
	if session.VideoID != "" {
		return session.VideoID, nil
	}

	req, err := c.newRequest(ctx, http.MethodPut, session.UploadURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", session.FileSize))

	resp, body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var video struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &video); err != nil || video.ID == "" {
			return "", &shared.ProviderError{Platform: string(models.YouTube), Code: "missing_video_id", Message: "upload finished without a video id"}
		}
		session.VideoID = video.ID
		return video.ID, nil
	case http.StatusPermanentRedirect:
		return "", fmt.Errorf("%w: received range %s", shared.ErrUploadIncomplete, resp.Header.Get("Range"))
	default:
		return "", youtubeError(resp.StatusCode, body)
	}
}

// youtubePrivacy maps the shared privacy levels onto YouTube privacy statuses.
func youtubePrivacy(p Privacy) string {
	switch p {
	case PrivacyPublic:
		return "public"
	case PrivacyFriends, PrivacyFollowers:
		return "unlisted"
	default:
		return "private"
	}
}

// Publish sets the video's snippet and privacy status. A future PublishAt schedules the release.
//
// videos.update replaces the whole snippet, so the title and category are sent again.
func (c *YouTubeClient) Publish(ctx context.Context, videoID, caption string, privacy Privacy, opts PublishOptions) (string, error) {
	status := map[string]any{
		"privacyStatus":           youtubePrivacy(privacy),
		"selfDeclaredMadeForKids": opts.MadeForKids,
	}
	if !opts.PublishAt.IsZero() {
		status["privacyStatus"] = "private"
		status["publishAt"] = opts.PublishAt.UTC().Format(time.RFC3339)
	}

	snippet := map[string]any{
		"title":       caption,
		"description": opts.Description,
		"tags":        opts.Tags,
		"categoryId":  youtubeCategoryPeople,
	}

	payload := map[string]any{"id": videoID, "snippet": snippet, "status": status}
	if err := c.call(ctx, http.MethodPut, "/youtube/v3/videos?part=snippet,status", payload, nil); err != nil {
		return "", err
	}
	return videoID, nil
}

// GetPublishStatus reads processingDetails, falling back to status.uploadStatus.
func (c *YouTubeClient) GetPublishStatus(ctx context.Context, videoID string) (*PublishStatus, error) {
	var resp struct {
		Items []struct {
			ID     string `json:"id"`
			Status struct {
				UploadStatus    string `json:"uploadStatus"`
				FailureReason   string `json:"failureReason"`
				RejectionReason string `json:"rejectionReason"`
			} `json:"status"`
			ProcessingDetails struct {
				ProcessingStatus        string `json:"processingStatus"`
				ProcessingFailureReason string `json:"processingFailureReason"`
			} `json:"processingDetails"`
		} `json:"items"`
	}

	endpoint := "/youtube/v3/videos?" + url.Values{"part": {"status,processingDetails"}, "id": {videoID}}.Encode()
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return &PublishStatus{
			Status:       StatusFailed,
			VideoID:      videoID,
			RawStatus:    "not_found",
			ErrorMessage: "video " + videoID + " not found",
		}, nil
	}

	item := resp.Items[0]
	status := &PublishStatus{VideoID: item.ID, ShareURL: youtubeShareURL + item.ID}

	switch raw := item.ProcessingDetails.ProcessingStatus; raw {
	case "processing":
		status.Status, status.RawStatus = StatusProcessing, raw
		return status, nil
	case "succeeded":
		status.Status, status.RawStatus = StatusSuccess, raw
		return status, nil
	case "failed", "terminated":
		status.Status, status.RawStatus = StatusFailed, raw
		status.ErrorMessage = item.ProcessingDetails.ProcessingFailureReason
		return status, nil
	}

	status.RawStatus = item.Status.UploadStatus
	switch item.Status.UploadStatus {
	case "processed":
		status.Status = StatusSuccess
	case "failed", "rejected", "deleted":
		status.Status = StatusFailed
		status.ErrorMessage = item.Status.FailureReason
		if status.ErrorMessage == "" {
			status.ErrorMessage = item.Status.RejectionReason
		}
	default:
		status.Status = StatusProcessing
	}
	return status, nil
}
