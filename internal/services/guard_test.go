package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
	"golang.org/x/oauth2"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expiry   time.Time
		expected bool
	}{
		{"already expired", now.Add(-time.Second), true},
		{"inside margin", now.Add(4 * time.Minute), true},
		{"exactly at margin", now.Add(ExpiryMargin), true},
		{"outside margin", now.Add(10 * time.Minute), false},
		{"no expiry reported", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiry, now); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestTokenGuard(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	newGuard := func(t *testing.T, provider *fakeProvider) (*TokenGuard, func(models.PlatformType, string, time.Time) *models.Account) {
		repo := setupAccounts(t)
		guard := NewTokenGuard(repo, Providers{models.TikTok: provider}, testLogger())
		guard.SetClock(func() time.Time { return now })
		seed := func(platform models.PlatformType, refresh string, expiry time.Time) *models.Account {
			return seedAccount(t, repo, platform, "pid-"+refresh, refresh, expiry)
		}
		return guard, seed
	}

	t.Run("returns stored token outside margin", func(t *testing.T) {
		provider := &fakeProvider{platform: models.TikTok}
		guard, seed := newGuard(t, provider)
		account := seed(models.TikTok, "r1", now.Add(10*time.Minute))

		token, err := guard.EnsureValidAccessToken(ctx, account.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token != account.AccessToken {
			t.Errorf("expected %s, got %s", account.AccessToken, token)
		}
		if provider.refreshes.Load() != 0 {
			t.Errorf("expected no refresh, got %d", provider.refreshes.Load())
		}
	})

	t.Run("refreshes expired token and persists it", func(t *testing.T) {
		provider := &fakeProvider{
			platform:  models.TikTok,
			refreshed: &oauth2.Token{AccessToken: "act.new", RefreshToken: "rft.new", Expiry: now.Add(24 * time.Hour)},
		}
		guard, seed := newGuard(t, provider)
		account := seed(models.TikTok, "r2", now.Add(-time.Second))

		token, err := guard.EnsureValidAccessToken(ctx, account.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token != "act.new" {
			t.Errorf("expected act.new, got %s", token)
		}

		stored, err := guard.store.Get(account.ID)
		if err != nil {
			t.Fatalf("failed to reload account: %v", err)
		}
		if stored.AccessToken != "act.new" || stored.RefreshToken != "rft.new" {
			t.Errorf("expected refreshed tokens to be stored, got %s/%s", stored.AccessToken, stored.RefreshToken)
		}
		if !stored.TokenExpiry.Equal(now.Add(24 * time.Hour)) {
			t.Errorf("expected expiry %v, got %v", now.Add(24*time.Hour), stored.TokenExpiry)
		}
	})

	t.Run("keeps refresh token when provider omits it", func(t *testing.T) {
		provider := &fakeProvider{
			platform:  models.TikTok,
			refreshed: &oauth2.Token{AccessToken: "act.new", Expiry: now.Add(time.Hour)},
		}
		guard, seed := newGuard(t, provider)
		account := seed(models.TikTok, "r3", now.Add(time.Minute))

		if _, err := guard.EnsureValidAccessToken(ctx, account.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		stored, _ := guard.store.Get(account.ID)
		if stored.RefreshToken != "r3" {
			t.Errorf("expected refresh token r3 to be kept, got %s", stored.RefreshToken)
		}
	})

	t.Run("missing refresh token", func(t *testing.T) {
		provider := &fakeProvider{platform: models.TikTok}
		guard, seed := newGuard(t, provider)
		account := seed(models.TikTok, "", now.Add(-time.Hour))

		_, err := guard.EnsureValidAccessToken(ctx, account.ID)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
		if provider.refreshes.Load() != 0 {
			t.Error("expected provider not to be called")
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		provider := &fakeProvider{platform: models.TikTok, refreshErr: &shared.ProviderError{Code: "invalid_grant"}}
		guard, seed := newGuard(t, provider)
		account := seed(models.TikTok, "r4", now.Add(-time.Hour))

		_, err := guard.EnsureValidAccessToken(ctx, account.ID)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}

		stored, _ := guard.store.Get(account.ID)
		if stored.AccessToken != account.AccessToken {
			t.Error("expected stored token to be unchanged")
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		guard, _ := newGuard(t, &fakeProvider{platform: models.TikTok})
		if _, err := guard.EnsureValidAccessToken(ctx, "missing"); !errors.Is(err, shared.ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("concurrent requests share one refresh", func(t *testing.T) {
		provider := &fakeProvider{
			platform:  models.TikTok,
			refreshed: &oauth2.Token{AccessToken: "act.shared", RefreshToken: "rft.shared", Expiry: now.Add(time.Hour)},
			delay:     50 * time.Millisecond,
		}
		guard, seed := newGuard(t, provider)
		account := seed(models.TikTok, "r5", now.Add(-time.Minute))

		client := NewTikTokClient(guard.TokenSource(account.ID), account.PlatformAccountID, WithLogger(testLogger()))

		var wg sync.WaitGroup
		tokens := make([]string, 8)
		errs := make([]error, 8)
		for i := range 8 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = client.accessToken(ctx)
			}(i)
		}
		wg.Wait()

		for i := range 8 {
			if errs[i] != nil {
				t.Fatalf("expected no error, got %v", errs[i])
			}
			if tokens[i] != "act.shared" {
				t.Errorf("expected act.shared, got %s", tokens[i])
			}
		}
		if n := provider.refreshes.Load(); n != 1 {
			t.Errorf("expected exactly one refresh, got %d", n)
		}
	})
}
