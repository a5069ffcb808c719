// Package services implements the OAuth connect flow, token refresh, and the per-platform API clients.
//
// # Providers
//
// Each platform implements [Provider]. [TikTokProvider] builds its requests by hand because
// TikTok names the client id "client_key" and nests token responses under "data".
// YouTube, Instagram, Facebook, and X use [OAuth2Provider], a thin wrapper over [oauth2.Config].
// TikTok and X use PKCE with S256 challenges.
//
// # OAuth Flow
//
// [OAuthFlow] issues a state nonce per platform (and a verifier for PKCE platforms), kept in a
// [StateStore] for ten minutes. Callbacks are checked in order:
//   - missing code or state: [shared.ErrMissingParameters]
//   - code already processed: [shared.ErrCodeAlreadyProcessed], no provider request is made
//   - state absent, expired, or different: [shared.ErrCSRFMismatch]
//   - PKCE platform without a verifier: [shared.ErrMissingCodeVerifier]
//
// A successful exchange upserts the account on (platform, platform account id). New accounts are
// enriched with the platform profile on a best-effort basis.
//
// # Token Guard
//
// [TokenGuard] refreshes access tokens that expire within [ExpiryMargin] and persists the result.
// Clients obtain tokens through a singleflight group so concurrent requests share one refresh.
//
// # Clients
//
// [TikTokClient] and [YouTubeClient] implement [PlatformClient], which the upload orchestrator drives.
// [ClientFactory] returns the right client for a stored account.
package services
