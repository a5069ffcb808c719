package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
	"github.com/desertthunder/postx/internal/shared"
	"golang.org/x/oauth2"
)

// rewriteTransport sends every request to target, keeping the path and query.
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

// newTestServer starts handler and returns a client that routes every host to it.
func newTestServer(t *testing.T, handler http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, _ := url.Parse(server.URL)
	return server, &http.Client{Transport: &rewriteTransport{target: target}}
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func setupAccounts(t *testing.T) *repositories.AccountRepository {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return repositories.NewAccountRepository(db)
}

func seedAccount(t *testing.T, repo *repositories.AccountRepository, platform models.PlatformType, pid, refresh string, expiry time.Time) *models.Account {
	t.Helper()
	account, _, err := repo.Upsert(platform, pid, repositories.UpsertFields{
		TokenFields: models.TokenFields{
			UserID:       DefaultUserID,
			AccessToken:  "access-" + pid,
			RefreshToken: refresh,
			TokenExpiry:  expiry,
		},
		AccountName: platform.DefaultAccountName(),
	})
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}

// fakeProvider counts exchanges and refreshes.
type fakeProvider struct {
	platform    models.PlatformType
	result      *TokenResult
	exchangeErr error
	refreshErr  error
	refreshed   *oauth2.Token
	delay       time.Duration

	exchanges atomic.Int32
	refreshes atomic.Int32
	verifier  atomic.Value
}

func (p *fakeProvider) Platform() models.PlatformType { return p.platform }

func (p *fakeProvider) AuthCodeURL(state, verifier string) string {
	return "https://auth.example.com/authorize?state=" + state + "&challenge=" + CodeChallenge(verifier)
}

func (p *fakeProvider) Exchange(_ context.Context, _, verifier, _ string) (*TokenResult, error) {
	p.exchanges.Add(1)
	p.verifier.Store(verifier)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.result, nil
}

func (p *fakeProvider) Refresh(context.Context, string) (*oauth2.Token, error) {
	p.refreshes.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshed, nil
}
