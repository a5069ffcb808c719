package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

func TestYouTubeClient(t *testing.T) {
	ctx := context.Background()

	newClient := func(t *testing.T, handler http.HandlerFunc) *YouTubeClient {
		server, client := newTestServer(t, handler)
		return NewYouTubeClient(StaticToken("ya29"), WithHTTPClient(client), WithBaseURL(server.URL), WithLogger(testLogger()))
	}

	t.Run("GetProfileInfo", func(t *testing.T) {
		t.Run("returns channel", func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("mine") != "true" {
					t.Errorf("expected mine=true, got %s", r.URL.RawQuery)
				}
				writeJSON(t, w, http.StatusOK, map[string]any{"items": []any{map[string]any{
					"id": "UC1",
					"snippet": map[string]any{
						"title":      "Channel",
						"thumbnails": map[string]any{"default": map[string]any{"url": "https://yt3.example.com/a.jpg"}},
					},
					"statistics": map[string]any{"subscriberCount": "1200", "videoCount": "7"},
				}}})
			})

			profile, err := c.GetProfileInfo(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			yp := profile.(*models.YouTubeProfile)
			if yp.ChannelID != "UC1" || yp.SubscriberCount != 1200 || yp.VideoCount != 7 {
				t.Errorf("unexpected profile %+v", yp)
			}
			if yp.ThumbnailURL != "https://yt3.example.com/a.jpg" {
				t.Errorf("expected thumbnail, got %s", yp.ThumbnailURL)
			}
		})

		t.Run("degrades on API error", func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusForbidden, map[string]any{"error": map[string]any{"code": 403, "message": "quota"}})
			})

			profile, err := c.GetProfileInfo(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if d := profile.Normalize(); !d.Degraded || d.Name != "YouTube Channel (API Error)" {
				t.Errorf("expected degraded profile, got %+v", d)
			}
		})
	})

	t.Run("resumable upload", func(t *testing.T) {
		var (
			initHeaders http.Header
			metadata    map[string]map[string]any
			ranges      []string
		)

		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/upload/youtube/v3/videos":
				initHeaders = r.Header.Clone()
				_ = json.NewDecoder(r.Body).Decode(&metadata)
				w.Header().Set("Location", "https://www.googleapis.com/upload/youtube/v3/videos?upload_id=abc")
				w.WriteHeader(http.StatusOK)
			case r.Method == http.MethodPut && r.URL.Query().Get("upload_id") == "abc":
				cr := r.Header.Get("Content-Range")
				ranges = append(ranges, cr)
				if strings.HasSuffix(cr, "20-24/25") {
					writeJSON(t, w, http.StatusOK, map[string]any{"id": "vid-1"})
					return
				}
				w.Header().Set("Range", "bytes=0-19")
				w.WriteHeader(http.StatusPermanentRedirect)
			default:
				t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
			}
		})

		session, err := c.InitUpload(ctx, UploadRequest{
			FileSize:  25,
			ChunkSize: 10,
			MimeType:  "video/mp4",
			Caption:   "title",
			Options:   PublishOptions{Description: "desc", Tags: []string{"a"}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if initHeaders.Get("X-Upload-Content-Length") != "25" || initHeaders.Get("X-Upload-Content-Type") != "video/mp4" {
			t.Errorf("unexpected init headers %v", initHeaders)
		}
		if metadata["snippet"]["title"] != "title" || metadata["snippet"]["categoryId"] != "22" {
			t.Errorf("unexpected snippet %+v", metadata["snippet"])
		}
		if metadata["status"]["privacyStatus"] != "private" {
			t.Errorf("expected private upload, got %v", metadata["status"]["privacyStatus"])
		}
		if session.TotalChunks != 3 {
			t.Errorf("expected 3 chunks, got %d", session.TotalChunks)
		}

		for i, size := range []int{10, 10, 5} {
			if err := c.UploadChunk(ctx, session, make([]byte, size), i); err != nil {
				t.Fatalf("chunk %d: expected no error, got %v", i, err)
			}
		}
		if len(ranges) != 3 || ranges[0] != "bytes 0-9/25" {
			t.Errorf("unexpected ranges %v", ranges)
		}

		id, err := c.CompleteUpload(ctx, session)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "vid-1" {
			t.Errorf("expected vid-1, got %s", id)
		}
	})

	t.Run("CompleteUpload queries an unfinished session", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Range") != "bytes */25" {
				t.Errorf("expected status query range, got %s", r.Header.Get("Content-Range"))
			}
			w.Header().Set("Range", "bytes=0-9")
			w.WriteHeader(http.StatusPermanentRedirect)
		})

		_, err := c.CompleteUpload(ctx, &UploadSession{UploadURL: "https://www.googleapis.com/upload?upload_id=x", FileSize: 25})
		if !errors.Is(err, shared.ErrUploadIncomplete) {
			t.Errorf("expected ErrUploadIncomplete, got %v", err)
		}
	})

	t.Run("Publish maps privacy", func(t *testing.T) {
		tests := []struct {
			privacy  Privacy
			expected string
		}{
			{PrivacyPublic, "public"},
			{PrivacyFriends, "unlisted"},
			{PrivacySelfOnly, "private"},
		}

		for _, tt := range tests {
			t.Run(string(tt.privacy), func(t *testing.T) {
				var body struct {
					ID      string         `json:"id"`
					Snippet map[string]any `json:"snippet"`
					Status  map[string]any `json:"status"`
				}
				c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
					if r.Method != http.MethodPut || r.URL.Query().Get("part") != "snippet,status" {
						t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
					}
					_ = json.NewDecoder(r.Body).Decode(&body)
					writeJSON(t, w, http.StatusOK, map[string]any{"id": "vid-1"})
				})

				id, err := c.Publish(ctx, "vid-1", "caption", tt.privacy, PublishOptions{})
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if id != "vid-1" || body.ID != "vid-1" {
					t.Errorf("expected vid-1, got %s", id)
				}
				if body.Status["privacyStatus"] != tt.expected {
					t.Errorf("expected %s, got %v", tt.expected, body.Status["privacyStatus"])
				}
				if body.Snippet["title"] != "caption" || body.Snippet["categoryId"] != "22" {
					t.Errorf("expected title and category in snippet, got %v", body.Snippet)
				}
			})
		}

		t.Run("scheduled release", func(t *testing.T) {
			var body struct {
				Status map[string]any `json:"status"`
			}
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&body)
				writeJSON(t, w, http.StatusOK, map[string]any{"id": "vid-1"})
			})

			at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
			if _, err := c.Publish(ctx, "vid-1", "", PrivacyPublic, PublishOptions{PublishAt: at}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if body.Status["publishAt"] != "2030-01-02T03:04:05Z" || body.Status["privacyStatus"] != "private" {
				t.Errorf("unexpected status %+v", body.Status)
			}
		})
	})

	t.Run("GetPublishStatus", func(t *testing.T) {
		tests := []struct {
			name       string
			processing string
			upload     string
			expected   UploadStatus
		}{
			{"processing", "processing", "uploaded", StatusProcessing},
			{"succeeded", "succeeded", "processed", StatusSuccess},
			{"failed", "failed", "", StatusFailed},
			{"terminated", "terminated", "", StatusFailed},
			{"fallback uploaded", "", "uploaded", StatusProcessing},
			{"fallback processed", "", "processed", StatusSuccess},
			{"fallback rejected", "", "rejected", StatusFailed},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Query().Get("id") != "vid-1" {
						t.Errorf("expected id vid-1, got %s", r.URL.Query().Get("id"))
					}
					item := map[string]any{"id": "vid-1", "status": map[string]any{"uploadStatus": tt.upload}}
					if tt.processing != "" {
						item["processingDetails"] = map[string]any{"processingStatus": tt.processing}
					}
					writeJSON(t, w, http.StatusOK, map[string]any{"items": []any{item}})
				})

				status, err := c.GetPublishStatus(ctx, "vid-1")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if status.Status != tt.expected {
					t.Errorf("expected %s, got %s", tt.expected, status.Status)
				}
				if status.ShareURL != "https://youtu.be/vid-1" {
					t.Errorf("expected share URL, got %s", status.ShareURL)
				}
			})
		}

		t.Run("unknown video", func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, map[string]any{"items": []any{}})
			})
			status, err := c.GetPublishStatus(ctx, "missing")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if status.Status != StatusFailed {
				t.Errorf("expected %s, got %s", StatusFailed, status.Status)
			}
			if status.ErrorMessage != "video missing not found" {
				t.Errorf("expected not found message, got %q", status.ErrorMessage)
			}
		})
	})
}

func TestClientFactory(t *testing.T) {
	guard := NewTokenGuard(nil, Providers{}, testLogger())
	factory := NewClientFactory(guard, nil, testLogger())

	tests := []struct {
		platform models.PlatformType
		err      error
	}{
		{models.TikTok, nil},
		{models.YouTube, nil},
		{models.Instagram, shared.ErrUnsupportedPlatform},
		{models.X, shared.ErrUnsupportedPlatform},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			client, err := factory.ForAccount(&models.Account{ID: "a", Platform: tt.platform})
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if client.Platform() != tt.platform {
				t.Errorf("expected %s client, got %s", tt.platform, client.Platform())
			}
		})
	}
}
