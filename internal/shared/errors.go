package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// OAuth flow errors
	ErrMissingParameters    = fmt.Errorf("missing required parameters")
	ErrCSRFMismatch         = fmt.Errorf("state mismatch: possible CSRF attack")
	ErrMissingCodeVerifier  = fmt.Errorf("missing PKCE code verifier")
	ErrCodeExpired          = fmt.Errorf("authorization code is expired")
	ErrCodeAlreadyProcessed = fmt.Errorf("authorization code already processed")
	ErrUnsupportedPlatform  = fmt.Errorf("unsupported platform")

	// Authentication errors
	ErrAccountNotFound  = fmt.Errorf("account not found")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Upload errors
	ErrFileTooLarge         = fmt.Errorf("file too large")
	ErrUnsupportedFormat    = fmt.Errorf("unsupported video format")
	ErrDurationExceeded     = fmt.Errorf("video duration exceeded")
	ErrChunkUploadFailed    = fmt.Errorf("chunk upload failed")
	ErrUploadIncomplete     = fmt.Errorf("upload incomplete")
	ErrProcessingTimeout    = fmt.Errorf("timed out waiting for video processing")
	ErrOrchestratorFinished = fmt.Errorf("upload orchestrator already finished")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrProviderError      = fmt.Errorf("provider error")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPostNotFound       = fmt.Errorf("post not found")
	ErrJobNotFound        = fmt.Errorf("scheduler job not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ChunkUploadFailedError reports the chunk that the provider rejected.
type ChunkUploadFailedError struct {
	Index  int
	Status int
	Body   string
}

func (e *ChunkUploadFailedError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("chunk %d upload failed: status %d: %s", e.Index, e.Status, e.Body)
	}
	return fmt.Sprintf("chunk %d upload failed: status %d", e.Index, e.Status)
}

func (e *ChunkUploadFailedError) Is(target error) bool {
	return target == ErrChunkUploadFailed
}

// ProviderError is the catch-all for provider responses we don't recognize.
type ProviderError struct {
	Platform string
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s error %s: %s", e.Platform, e.Code, e.Message)
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderError
}

// UserMessage converts an error from the connect or upload flows into text that
// is safe to show in a redirect query string.
func UserMessage(err error) string {
	var providerErr *ProviderError
	var chunkErr *ChunkUploadFailedError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCodeExpired):
		return "TikTok authorization code is expired. Please try connecting again."
	case errors.Is(err, ErrCSRFMismatch):
		return "Security check failed. Please try connecting again."
	case errors.Is(err, ErrMissingParameters):
		return "Missing required parameters from the provider."
	case errors.Is(err, ErrMissingCodeVerifier):
		return "Missing PKCE verifier. Please restart the connection."
	case errors.Is(err, ErrRefreshFailed), errors.Is(err, ErrNotAuthenticated):
		return "Your session with this platform has ended. Please reconnect the account."
	case errors.Is(err, ErrAccountNotFound):
		return "Account not found."
	case errors.Is(err, ErrFileTooLarge):
		return "The video file is too large."
	case errors.Is(err, ErrUnsupportedFormat):
		return "The video format is not supported."
	case errors.Is(err, ErrDurationExceeded):
		return "The video is longer than the platform allows."
	case errors.Is(err, ErrProcessingTimeout):
		return "The platform is still processing the video. Check back later."
	case errors.As(err, &chunkErr):
		return fmt.Sprintf("Upload failed on chunk %d.", chunkErr.Index+1)
	case errors.As(err, &providerErr):
		if providerErr.Message != "" {
			return providerErr.Message
		}
		return "The platform returned an error."
	default:
		return "Something went wrong. Please try again."
	}
}
