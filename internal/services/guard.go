package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

// ExpiryMargin is how long before its expiry an access token is treated as expired.
const ExpiryMargin = 5 * time.Minute

// IsExpired reports whether a token expiring at expiry must be refreshed at now.
//
// A zero expiry means the provider did not report one and the token is used as-is.
func IsExpired(expiry, now time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return !now.Add(ExpiryMargin).Before(expiry)
}

// Providers maps each connected platform to its OAuth provider.
type Providers map[models.PlatformType]Provider

// Get returns the provider for platform or [shared.ErrUnsupportedPlatform].
func (p Providers) Get(platform models.PlatformType) (Provider, error) {
	provider, ok := p[platform]
	if !ok || provider == nil {
		return nil, fmt.Errorf("%w: %s is not configured", shared.ErrUnsupportedPlatform, platform.Slug())
	}
	return provider, nil
}

// TokenGuard ensures an account has a usable access token before an API call,
// refreshing and persisting it when it is within [ExpiryMargin] of expiry.
type TokenGuard struct {
	store     AccountStore
	providers Providers
	logger    *log.Logger
	now       func() time.Time
}

// NewTokenGuard creates a TokenGuard.
func NewTokenGuard(store AccountStore, providers Providers, logger *log.Logger) *TokenGuard {
	if logger == nil {
		logger = log.Default()
	}
	return &TokenGuard{store: store, providers: providers, logger: logger, now: time.Now}
}

// SetClock replaces the clock used for expiry checks.
func (g *TokenGuard) SetClock(now func() time.Time) { g.now = now }

// EnsureValidAccessToken returns a valid access token for accountID.
//
// Refresh failures, including a missing refresh token, return [shared.ErrRefreshFailed].
func (g *TokenGuard) EnsureValidAccessToken(ctx context.Context, accountID string) (string, error) {
	account, err := g.store.Get(accountID)
	if err != nil {
		return "", err
	}

	if account.AccessToken == "" {
		return "", fmt.Errorf("%w: account %s has no access token", shared.ErrNotAuthenticated, accountID)
	}

	if !IsExpired(account.TokenExpiry, g.now()) {
		return account.AccessToken, nil
	}

	return g.refresh(ctx, account)
}

// Refresh forces a token refresh for accountID regardless of expiry.
func (g *TokenGuard) Refresh(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := g.store.Get(accountID)
	if err != nil {
		return nil, err
	}
	if _, err := g.refresh(ctx, account); err != nil {
		return nil, err
	}
	return g.store.Get(accountID)
}

func (g *TokenGuard) refresh(ctx context.Context, account *models.Account) (string, error) {
	logger := g.logger.With("account", account.ID, "platform", account.Platform)

	if account.RefreshToken == "" {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	provider, err := g.providers.Get(account.Platform)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	logger.Debug("refreshing access token", "expiry", account.TokenExpiry)

	token, err := provider.Refresh(ctx, account.RefreshToken)
	if err != nil {
		logger.Warn("token refresh failed", "error", err)
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = account.RefreshToken
	}

	if err := g.store.UpdateTokens(account.ID, token.AccessToken, refreshToken, token.Expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	logger.Info("access token refreshed", "expiry", token.Expiry)
	return token.AccessToken, nil
}

// TokenSource returns a [TokenSource] bound to accountID.
func (g *TokenGuard) TokenSource(accountID string) TokenSource {
	return &accountTokenSource{guard: g, accountID: accountID}
}

type accountTokenSource struct {
	guard     *TokenGuard
	accountID string
}

func (s *accountTokenSource) AccessToken(ctx context.Context) (string, error) {
	token, err := s.guard.EnsureValidAccessToken(ctx, s.accountID)
	if err != nil && errors.Is(err, shared.ErrAccountNotFound) {
		return "", fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	return token, err
}
