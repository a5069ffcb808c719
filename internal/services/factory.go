package services

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

// ClientFactory builds authenticated platform clients for stored accounts.
type ClientFactory struct {
	guard      *TokenGuard
	httpClient *http.Client
	logger     *log.Logger
	baseURLs   map[models.PlatformType]string
}

// NewClientFactory creates a factory whose clients obtain tokens through guard.
func NewClientFactory(guard *TokenGuard, httpClient *http.Client, logger *log.Logger) *ClientFactory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ClientFactory{guard: guard, httpClient: httpClient, logger: logger, baseURLs: map[models.PlatformType]string{}}
}

// SetBaseURL points clients for platform at a different API host.
func (f *ClientFactory) SetBaseURL(platform models.PlatformType, baseURL string) {
	f.baseURLs[platform] = baseURL
}

// ForAccount returns the client for account's platform. Only TikTok and YouTube support uploads.
func (f *ClientFactory) ForAccount(account *models.Account) (PlatformClient, error) {
	opts := []ClientOption{
		WithHTTPClient(f.httpClient),
		WithLogger(f.logger.With("platform", account.Platform, "account", account.ID)),
	}
	if base, ok := f.baseURLs[account.Platform]; ok {
		opts = append(opts, WithBaseURL(base))
	}

	tokens := f.guard.TokenSource(account.ID)

	switch account.Platform {
	case models.TikTok:
		return NewTikTokClient(tokens, account.PlatformAccountID, opts...), nil
	case models.YouTube:
		return NewYouTubeClient(tokens, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s has no upload client", shared.ErrUnsupportedPlatform, account.Platform.DisplayName())
	}
}
