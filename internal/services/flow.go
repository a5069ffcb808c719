package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
	"github.com/desertthunder/postx/internal/shared"
)

// DefaultUserID owns accounts connected from the command line.
const DefaultUserID = "local"

// NewProviders builds a provider for every platform with credentials in cfg.
func NewProviders(cfg shared.CredentialsConfig, httpClient *http.Client) (Providers, error) {
	providers := Providers{}

	if cfg.TikTok.ClientKey != "" || cfg.TikTok.ClientSecret != "" {
		p, err := NewTikTokProvider(cfg.TikTok, httpClient)
		if err != nil {
			return nil, err
		}
		providers[models.TikTok] = p
	}

	builders := []struct {
		platform models.PlatformType
		creds    shared.ProviderConfig
		build    func(shared.ProviderConfig, *http.Client) (*OAuth2Provider, error)
	}{
		{models.YouTube, cfg.YouTube, func(c shared.ProviderConfig, h *http.Client) (*OAuth2Provider, error) {
			return NewYouTubeProvider(c, h)
		}},
		{models.Instagram, cfg.Instagram, NewInstagramProvider},
		{models.Facebook, cfg.Facebook, NewFacebookProvider},
		{models.X, cfg.X, NewXProvider},
	}

	for _, b := range builders {
		if b.creds.ClientID == "" && b.creds.ClientSecret == "" {
			continue
		}
		p, err := b.build(b.creds, httpClient)
		if err != nil {
			return nil, err
		}
		providers[b.platform] = p
	}
	return providers, nil
}

// ProfileClients builds platform clients for profile enrichment. [ClientFactory] implements it.
type ProfileClients interface {
	ForAccount(account *models.Account) (PlatformClient, error)
}

// CallbackParams are the values received on the OAuth redirect.
type CallbackParams struct {
	Platform     models.PlatformType
	Code         string
	State        string
	CodeVerifier string // overrides the stored verifier when set
	RedirectURI  string
	UserID       string
}

// AuthRequest is a started authorization: the URL to visit and the state it was issued with.
type AuthRequest struct {
	URL   string
	State OAuthState
}

// OAuthFlow runs the connect flow: it issues state and PKCE verifiers, validates callbacks,
// exchanges codes, and persists the connected account.
type OAuthFlow struct {
	providers Providers
	states    *StateStore
	accounts  AccountStore
	profiles  ProfileClients
	logger    *log.Logger
}

// NewOAuthFlow creates an OAuthFlow. profiles may be nil to skip profile enrichment.
func NewOAuthFlow(providers Providers, states *StateStore, accounts AccountStore, profiles ProfileClients, logger *log.Logger) *OAuthFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &OAuthFlow{providers: providers, states: states, accounts: accounts, profiles: profiles, logger: logger}
}

// Providers returns the configured providers.
func (f *OAuthFlow) Providers() Providers { return f.providers }

// StartOAuth issues a fresh state (and verifier for PKCE platforms) and returns the authorization URL.
func (f *OAuthFlow) StartOAuth(platform models.PlatformType) (*AuthRequest, error) {
	provider, err := f.providers.Get(platform)
	if err != nil {
		return nil, err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, err
	}

	var verifier string
	if platform.UsesPKCE() {
		if verifier, err = shared.GenerateVerifier(); err != nil {
			return nil, err
		}
	}

	saved := f.states.Save(platform, state, verifier)
	f.logger.Debug("oauth started", "platform", platform, "pkce", verifier != "")

	return &AuthRequest{URL: provider.AuthCodeURL(state, verifier), State: saved}, nil
}

// HandleCallback validates the callback and connects the account.
//
// A code seen before returns [shared.ErrCodeAlreadyProcessed] without contacting the provider.
// A state that is missing, expired, or different from the stored one returns [shared.ErrCSRFMismatch].
func (f *OAuthFlow) HandleCallback(ctx context.Context, params CallbackParams) (*models.Account, error) {
	if params.Code == "" || params.State == "" {
		return nil, shared.ErrMissingParameters
	}

	logger := f.logger.With("platform", params.Platform)

	if f.states.IsProcessed(params.Platform, params.Code) {
		logger.Debug("ignoring replayed authorization code")
		return nil, shared.ErrCodeAlreadyProcessed
	}

	provider, err := f.providers.Get(params.Platform)
	if err != nil {
		return nil, err
	}

	stored, ok := f.states.Load(params.Platform)
	if !ok || subtle.ConstantTimeCompare([]byte(stored.State), []byte(params.State)) != 1 {
		logger.Warn("oauth state mismatch", "stored", ok)
		return nil, shared.ErrCSRFMismatch
	}

	verifier := params.CodeVerifier
	if verifier == "" {
		verifier = stored.CodeVerifier
	}
	if params.Platform.UsesPKCE() && verifier == "" {
		return nil, shared.ErrMissingCodeVerifier
	}

	if !f.states.MarkProcessed(params.Platform, params.Code) {
		return nil, shared.ErrCodeAlreadyProcessed
	}

	result, err := provider.Exchange(ctx, params.Code, verifier, params.RedirectURI)
	if err != nil {
		logger.Error("code exchange failed", "error", err)
		f.states.Clear(params.Platform)
		return nil, err
	}

	userID := params.UserID
	if userID == "" {
		userID = DefaultUserID
	}

	fields := repositories.UpsertFields{
		TokenFields: models.TokenFields{
			UserID:       userID,
			AccessToken:  result.Token.AccessToken,
			RefreshToken: result.Token.RefreshToken,
			TokenExpiry:  result.Token.Expiry,
			Scope:        result.Scope,
		},
		Profile: result.Profile,
	}
	if result.Profile != nil {
		fields.AccountName = result.Profile.Normalize().Name
	}

	account, created, err := f.accounts.Upsert(params.Platform, result.PlatformAccountID, fields)
	if err != nil {
		f.states.Clear(params.Platform)
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	if created && result.Profile == nil {
		f.enrich(ctx, account)
	}

	f.states.Clear(params.Platform)
	logger.Info("account connected", "account", account.ID, "created", created)
	return account, nil
}

// enrich fetches the profile of a newly connected account. Failures keep the default name.
func (f *OAuthFlow) enrich(ctx context.Context, account *models.Account) {
	if f.profiles == nil {
		return
	}

	logger := f.logger.With("account", account.ID, "platform", account.Platform)

	client, err := f.profiles.ForAccount(account)
	if err != nil {
		if !errors.Is(err, shared.ErrUnsupportedPlatform) {
			logger.Warn("profile client unavailable", "error", err)
		}
		return
	}

	profile, err := client.GetProfileInfo(ctx)
	if err != nil {
		logger.Warn("profile fetch failed", "error", err)
		return
	}

	display := profile.Normalize()
	if display.Degraded || display.Name == "" {
		logger.Warn("profile unavailable, keeping default account name")
		return
	}

	if err := f.accounts.UpdateProfile(account.ID, display.Name, profile); err != nil {
		logger.Warn("failed to store profile", "error", err)
		return
	}
	account.AccountName = display.Name
	account.Profile = profile
}
