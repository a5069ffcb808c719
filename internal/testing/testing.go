// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
)

// MockPlatformClient is a scripted test double for [services.PlatformClient].
//
// Statuses are returned in order by GetPublishStatus; the last one repeats.
// FailChunk rejects the chunk with that index when it is not negative.
type MockPlatformClient struct {
	Kind      models.PlatformType
	Profile   models.Profile
	Statuses  []services.PublishStatus
	FailChunk int
	InitErr   error
	VideoID   string

	mu          sync.Mutex
	Calls       []string
	Chunks      []int
	ChunkSizes  []int
	InitRequest *services.UploadRequest
	statusCalls int
}

// NewMockPlatformClient returns a client that accepts every chunk and reports statuses in order.
func NewMockPlatformClient(statuses ...services.UploadStatus) *MockPlatformClient {
	m := &MockPlatformClient{Kind: models.TikTok, FailChunk: -1, VideoID: "video-1"}
	for _, s := range statuses {
		m.Statuses = append(m.Statuses, services.PublishStatus{Status: s, VideoID: m.VideoID})
	}
	return m
}

func (m *MockPlatformClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// CallCount returns how many times call was made.
func (m *MockPlatformClient) CallCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MockPlatformClient) Platform() models.PlatformType { return m.Kind }

func (m *MockPlatformClient) GetProfileInfo(context.Context) (models.Profile, error) {
	m.record("GetProfileInfo")
	if m.Profile == nil {
		return &models.BasicProfile{Kind: m.Kind, Name: "mock"}, nil
	}
	return m.Profile, nil
}

func (m *MockPlatformClient) InitUpload(_ context.Context, req services.UploadRequest) (*services.UploadSession, error) {
	m.record("InitUpload")
	if m.InitErr != nil {
		return nil, m.InitErr
	}
	m.mu.Lock()
	m.InitRequest = &req
	m.mu.Unlock()
	return &services.UploadSession{
		PublishID:   "publish-1",
		UploadURL:   "https://upload.example.com/session",
		FileSize:    req.FileSize,
		ChunkSize:   req.ChunkSize,
		TotalChunks: services.TotalChunks(req.FileSize, req.ChunkSize),
		Status:      services.StatusProcessing,
	}, nil
}

func (m *MockPlatformClient) UploadChunk(_ context.Context, session *services.UploadSession, chunk []byte, index int) error {
	m.record("UploadChunk")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Chunks = append(m.Chunks, index)
	m.ChunkSizes = append(m.ChunkSizes, len(chunk))
	if index == m.FailChunk {
		return &shared.ChunkUploadFailedError{Index: index, Status: http.StatusBadRequest}
	}
	session.ChunkIndex = index + 1
	return nil
}

func (m *MockPlatformClient) CompleteUpload(_ context.Context, session *services.UploadSession) (string, error) {
	m.record("CompleteUpload")
	return session.PublishID, nil
}

func (m *MockPlatformClient) Publish(_ context.Context, videoID, _ string, _ services.Privacy, _ services.PublishOptions) (string, error) {
	m.record("Publish")
	return videoID, nil
}

func (m *MockPlatformClient) GetPublishStatus(context.Context, string) (*services.PublishStatus, error) {
	m.record("GetPublishStatus")
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Statuses) == 0 {
		return &services.PublishStatus{Status: services.StatusProcessing}, nil
	}
	i := min(m.statusCalls, len(m.Statuses)-1)
	m.statusCalls++
	status := m.Statuses[i]
	return &status, nil
}

// MockClients hands out the same client for every account.
type MockClients struct {
	Client services.PlatformClient
	Err    error
}

func (m *MockClients) ForAccount(*models.Account) (services.PlatformClient, error) {
	return m.Client, m.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
