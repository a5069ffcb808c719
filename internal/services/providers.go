package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	tiktokAuthURL  = "https://www.tiktok.com/v2/auth/authorize/"
	tiktokTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokScope    = "user.info.basic,video.upload,user.info.profile,user.info.stats"

	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	facebookAuthURL  = "https://www.facebook.com/v18.0/dialog/oauth"
	facebookTokenURL = "https://graph.facebook.com/v18.0/oauth/access_token"
	facebookMeURL    = "https://graph.facebook.com/v18.0/me?fields=id,name"

	xAuthURL  = "https://twitter.com/i/oauth2/authorize"
	xTokenURL = "https://api.twitter.com/2/oauth2/token"
	xMeURL    = "https://api.twitter.com/2/users/me"
)

var (
	youtubeScopes   = []string{"https://www.googleapis.com/auth/youtube.readonly", "https://www.googleapis.com/auth/youtube.upload"}
	instagramScopes = []string{"user_profile,user_media"}
	facebookScopes  = []string{"public_profile,pages_show_list"}
	xScopes         = []string{"tweet.read", "users.read", "offline.access"}
)

// CodeChallenge derives the S256 PKCE challenge: base64url(sha256(verifier)) without padding.
func CodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// TokenResult is the outcome of an authorization code exchange.
type TokenResult struct {
	Token             *oauth2.Token
	PlatformAccountID string
	Scope             string
	Profile           models.Profile // set when identifying the account already fetched it
}

// Provider performs the OAuth authorization code flow for one platform.
type Provider interface {
	Platform() models.PlatformType

	// AuthCodeURL builds the authorization URL. verifier is empty for providers without PKCE.
	AuthCodeURL(state, verifier string) string

	// Exchange trades code for tokens and identifies the provider account.
	// redirectURI overrides the configured redirect when non-empty.
	Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenResult, error)

	// Refresh uses a refresh token to obtain a new access token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TikTokProvider implements [Provider] against TikTok's v2 OAuth endpoints.
//
// TikTok names the client id "client_key" and may nest the token response under "data",
// so requests are built by hand rather than through [oauth2.Config].
type TikTokProvider struct {
	clientKey    string
	clientSecret string
	redirectURI  string
	authURL      string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// NewTikTokProvider validates credentials and returns a TikTok provider.
func NewTikTokProvider(creds shared.TikTokConfig, httpClient *http.Client) (*TikTokProvider, error) {
	if creds.ClientKey == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: tiktok client_key and client_secret are required", shared.ErrMissingCredentials)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TikTokProvider{
		clientKey:    creds.ClientKey,
		clientSecret: creds.ClientSecret,
		redirectURI:  creds.RedirectURI,
		authURL:      tiktokAuthURL,
		tokenURL:     tiktokTokenURL,
		httpClient:   httpClient,
		now:          time.Now,
	}, nil
}

func (p *TikTokProvider) Platform() models.PlatformType { return models.TikTok }

func (p *TikTokProvider) AuthCodeURL(state, verifier string) string {
	v := url.Values{
		"client_key":            {p.clientKey},
		"scope":                 {tiktokScope},
		"response_type":         {"code"},
		"redirect_uri":          {p.redirectURI},
		"state":                 {state},
		"code_challenge":        {CodeChallenge(verifier)},
		"code_challenge_method": {"S256"},
	}
	return p.authURL + "?" + v.Encode()
}

type tiktokTokenResponse struct {
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	ExpiresIn        int64           `json:"expires_in"`
	RefreshExpiresIn int64           `json:"refresh_expires_in"`
	OpenID           string          `json:"open_id"`
	Scope            string          `json:"scope"`
	TokenType        string          `json:"token_type"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Data             json.RawMessage `json:"data"`
}

func (p *TikTokProvider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenResult, error) {
	if redirectURI == "" {
		redirectURI = p.redirectURI
	}

	form := url.Values{
		"client_key":    {p.clientKey},
		"client_secret": {p.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}

	resp, err := p.postToken(ctx, form)
	if err != nil {
		return nil, err
	}

	return &TokenResult{
		Token:             p.token(resp),
		PlatformAccountID: resp.OpenID,
		Scope:             resp.Scope,
	}, nil
}

func (p *TikTokProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{
		"client_key":    {p.clientKey},
		"client_secret": {p.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	resp, err := p.postToken(ctx, form)
	if err != nil {
		return nil, err
	}
	return p.token(resp), nil
}

func (p *TikTokProvider) token(resp *tiktokTokenResponse) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    "Bearer",
	}
	if resp.ExpiresIn > 0 {
		tok.Expiry = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return tok.WithExtra(map[string]any{"open_id": resp.OpenID, "scope": resp.Scope})
}

func (p *TikTokProvider) postToken(ctx context.Context, form url.Values) (*tiktokTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp tiktokTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, res.StatusCode, truncate(body))
	}

	if len(resp.Data) > 0 && resp.AccessToken == "" {
		var nested tiktokTokenResponse
		if err := json.Unmarshal(resp.Data, &nested); err == nil {
			if len(nested.Error) == 0 {
				nested.Error = resp.Error
			}
			if nested.ErrorDescription == "" {
				nested.ErrorDescription = resp.ErrorDescription
			}
			resp = nested
		}
	}

	if err := tiktokTokenError(resp.Error, resp.ErrorDescription); err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &shared.ProviderError{Platform: string(models.TikTok), Code: fmt.Sprint(res.StatusCode), Message: truncate(body)}
	}

	if resp.AccessToken == "" {
		return nil, &shared.ProviderError{Platform: string(models.TikTok), Code: "missing_token", Message: "token response did not include an access token"}
	}
	return &resp, nil
}

// tiktokTokenError reads the error field, which TikTok sends either as a string
// alongside error_description or as an object with code and message.
func tiktokTokenError(raw json.RawMessage, description string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var code, message string
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		code, message = asString, description
	} else {
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		code, message = obj.Code, obj.Message
	}

	if code == "" || code == "ok" {
		return nil
	}

	if strings.Contains(strings.ToLower(message), "authorization code is expired") {
		return fmt.Errorf("%w: %s", shared.ErrCodeExpired, message)
	}
	return &shared.ProviderError{Platform: string(models.TikTok), Code: code, Message: message}
}

// identifyFunc resolves the provider account id (and optionally a profile) for a new token.
type identifyFunc func(ctx context.Context, client *http.Client, token *oauth2.Token) (string, models.Profile, error)

// OAuth2Provider implements [Provider] on top of [oauth2.Config] for platforms following the standard flow.
type OAuth2Provider struct {
	platform   models.PlatformType
	config     *oauth2.Config
	pkce       bool
	authOpts   []oauth2.AuthCodeOption
	httpClient *http.Client
	identify   identifyFunc
}

func newOAuth2Provider(platform models.PlatformType, creds shared.ProviderConfig, endpoint oauth2.Endpoint, scopes []string, httpClient *http.Client) (*OAuth2Provider, error) {
	if !creds.Configured() {
		return nil, fmt.Errorf("%w: %s client_id and client_secret are required", shared.ErrMissingCredentials, platform.Slug())
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OAuth2Provider{
		platform: platform,
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		pkce:       platform.UsesPKCE(),
		httpClient: httpClient,
	}, nil
}

// NewYouTubeProvider returns the Google OAuth provider. The account is identified by the
// authenticated user's channel id.
func NewYouTubeProvider(creds shared.ProviderConfig, httpClient *http.Client, opts ...ClientOption) (*OAuth2Provider, error) {
	endpoint := oauth2.Endpoint{AuthURL: googleAuthURL, TokenURL: googleTokenURL, AuthStyle: oauth2.AuthStyleInParams}
	p, err := newOAuth2Provider(models.YouTube, creds, endpoint, youtubeScopes, httpClient)
	if err != nil {
		return nil, err
	}

	p.authOpts = []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")}
	p.identify = func(ctx context.Context, client *http.Client, token *oauth2.Token) (string, models.Profile, error) {
		yt := NewYouTubeClient(StaticToken(token.AccessToken), append([]ClientOption{WithHTTPClient(client)}, opts...)...)
		channel, err := yt.fetchChannel(ctx)
		if err != nil {
			return "", nil, err
		}
		return channel.ChannelID, channel, nil
	}
	return p, nil
}

// NewInstagramProvider returns the Instagram Basic Display provider. The token response carries the user id.
func NewInstagramProvider(creds shared.ProviderConfig, httpClient *http.Client) (*OAuth2Provider, error) {
	endpoint := endpoints.Instagram
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	p, err := newOAuth2Provider(models.Instagram, creds, endpoint, instagramScopes, httpClient)
	if err != nil {
		return nil, err
	}

	p.identify = func(_ context.Context, _ *http.Client, token *oauth2.Token) (string, models.Profile, error) {
		switch id := token.Extra("user_id").(type) {
		case string:
			return id, nil, nil
		case float64:
			return fmt.Sprintf("%.0f", id), nil, nil
		}
		return "", nil, fmt.Errorf("%w: instagram token response has no user_id", shared.ErrAPIRequest)
	}
	return p, nil
}

// NewFacebookProvider returns the Facebook Login provider, identified through the Graph API /me endpoint.
func NewFacebookProvider(creds shared.ProviderConfig, httpClient *http.Client) (*OAuth2Provider, error) {
	endpoint := oauth2.Endpoint{AuthURL: facebookAuthURL, TokenURL: facebookTokenURL, AuthStyle: oauth2.AuthStyleInParams}
	p, err := newOAuth2Provider(models.Facebook, creds, endpoint, facebookScopes, httpClient)
	if err != nil {
		return nil, err
	}

	p.identify = func(ctx context.Context, client *http.Client, token *oauth2.Token) (string, models.Profile, error) {
		var me struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := getJSON(ctx, client, facebookMeURL, token.AccessToken, &me); err != nil {
			return "", nil, err
		}
		return me.ID, &models.BasicProfile{Kind: models.Facebook, Name: me.Name}, nil
	}
	return p, nil
}

// NewXProvider returns the X (Twitter) OAuth 2.0 provider with PKCE.
func NewXProvider(creds shared.ProviderConfig, httpClient *http.Client) (*OAuth2Provider, error) {
	endpoint := oauth2.Endpoint{AuthURL: xAuthURL, TokenURL: xTokenURL, AuthStyle: oauth2.AuthStyleInHeader}
	p, err := newOAuth2Provider(models.X, creds, endpoint, xScopes, httpClient)
	if err != nil {
		return nil, err
	}

	p.identify = func(ctx context.Context, client *http.Client, token *oauth2.Token) (string, models.Profile, error) {
		var me struct {
			Data struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				Username string `json:"username"`
			} `json:"data"`
		}
		if err := getJSON(ctx, client, xMeURL, token.AccessToken, &me); err != nil {
			return "", nil, err
		}
		return me.Data.ID, &models.BasicProfile{Kind: models.X, Name: me.Data.Name}, nil
	}
	return p, nil
}

func (p *OAuth2Provider) Platform() models.PlatformType { return p.platform }

func (p *OAuth2Provider) AuthCodeURL(state, verifier string) string {
	opts := append([]oauth2.AuthCodeOption{}, p.authOpts...)
	if p.pkce && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.config.AuthCodeURL(state, opts...)
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	var opts []oauth2.AuthCodeOption
	if p.pkce && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	token, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, p.mapError(err)
	}

	result := &TokenResult{Token: token}
	if scope, ok := token.Extra("scope").(string); ok {
		result.Scope = scope
	}

	if p.identify != nil {
		id, profile, err := p.identify(ctx, p.httpClient, token)
		if err != nil {
			return nil, fmt.Errorf("failed to identify %s account: %w", p.platform.DisplayName(), err)
		}
		result.PlatformAccountID = id
		result.Profile = profile
	}
	return result, nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)})
	token, err := src.Token()
	if err != nil {
		return nil, p.mapError(err)
	}
	return token, nil
}

func (p *OAuth2Provider) mapError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" && re.Response != nil {
			code = fmt.Sprint(re.Response.StatusCode)
		}
		message := re.ErrorDescription
		if message == "" {
			message = truncate(re.Body)
		}
		return &shared.ProviderError{Platform: string(p.platform), Code: code, Message: message}
	}
	return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
}

// getJSON performs an authenticated GET and decodes the JSON body into result.
func getJSON(ctx context.Context, client *http.Client, endpoint, accessToken string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, truncate(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
