package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/desertthunder/postx/internal/tasks"
	tu "github.com/desertthunder/postx/internal/testing"
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

// fakeTikTok serves the token, user info, creator info and content posting endpoints.
type fakeTikTok struct {
	*httptest.Server

	mu        sync.Mutex
	chunks    int
	refreshes int
	exchanges int
}

func newFakeTikTok(t *testing.T) *fakeTikTok {
	t.Helper()
	f := &fakeTikTok{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v2/oauth/token/", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Form.Get("grant_type") {
		case "authorization_code":
			f.exchanges++
			fmt.Fprint(w, `{"data":{"access_token":"access-2","refresh_token":"refresh-2","expires_in":86400,"open_id":"open-2","scope":"user.info.basic,video.publish"}}`)
		case "refresh_token":
			f.refreshes++
			fmt.Fprint(w, `{"access_token":"refreshed-token","refresh_token":"refresh-3","expires_in":86400,"open_id":"open-1"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"unknown grant"}`)
		}
	})

	mux.HandleFunc("GET /v2/user/info/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"user":{"open_id":"open-1","display_name":"Fake Creator","avatar_url":"https://example.com/a.jpg","follower_count":42}},"error":{"code":"ok"}}`)
	})

	mux.HandleFunc("POST /v2/post/publish/creator_info/query/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"creator_username":"fake","creator_nickname":"Fake Creator","privacy_level_options":["PUBLIC_TO_EVERYONE","SELF_ONLY"],"comment_disabled":false,"duet_disabled":true,"stitch_disabled":false,"max_video_post_duration_sec":600},"error":{"code":"ok"}}`)
	})

	mux.HandleFunc("POST /v2/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"publish_id":"publish-1","upload_url":"%s/upload"},"error":{"code":"ok"}}`, f.URL)
	})

	mux.HandleFunc("PUT /upload", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		f.mu.Lock()
		f.chunks++
		f.mu.Unlock()
		w.WriteHeader(http.StatusPartialContent)
	})

	mux.HandleFunc("POST /v2/post/publish/status/fetch/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"status":"PUBLISH_COMPLETE","publicaly_available_post_id":[7300000000000000001]},"error":{"code":"ok"}}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTikTok) count() (chunks, refreshes, exchanges int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks, f.refreshes, f.exchanges
}

type testEnv struct {
	t        *testing.T
	runner   *Runner
	output   *bytes.Buffer
	fake     *fakeTikTok
	accounts *repositories.AccountRepository
	posts    *repositories.PostRepository
	jobs     *repositories.SchedulerJobRepository
	now      time.Time
	dir      string
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// newTestEnv wires a runner to a file database and a fake TikTok API. client replaces the
// HTTP client when non-nil.
func newTestEnv(t *testing.T, client *http.Client) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := shared.NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	fake := newFakeTikTok(t)
	if client == nil {
		target, _ := url.Parse(fake.URL)
		client = &http.Client{Transport: &rewriteTransport{target: target}}
	}

	config := shared.DefaultConfig()
	config.Upload.ChunkSize = 1 << 20
	config.Server.Host = "127.0.0.1"
	config.Server.Port = freePort(t)

	env := &testEnv{
		t:        t,
		output:   &bytes.Buffer{},
		fake:     fake,
		accounts: repositories.NewAccountRepository(db),
		posts:    repositories.NewPostRepository(db),
		jobs:     repositories.NewSchedulerJobRepository(db),
		now:      time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		dir:      dir,
	}

	env.runner = NewRunner(RunnerOpts{
		Config:     config,
		DB:         db,
		HTTPClient: client,
		Logger:     log.New(io.Discard),
		Output:     env.output,
		BaseURLs:   map[models.PlatformType]string{models.TikTok: fake.URL},
		OpenBrowser: func(string) error {
			return errors.New("no browser in tests")
		},
		Now: func() time.Time { return env.now },
	})
	t.Cleanup(func() { env.runner.Close() })
	return env
}

func (e *testEnv) run(args ...string) error {
	e.t.Helper()
	return newApp(e.runner).Run(context.Background(), append([]string{"postx"}, args...))
}

func (e *testEnv) seed(platform models.PlatformType, platformAccountID, name string) *models.Account {
	e.t.Helper()
	account, _, err := e.accounts.Upsert(platform, platformAccountID, repositories.UpsertFields{
		TokenFields: models.TokenFields{
			UserID:       services.DefaultUserID,
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenExpiry:  e.now.Add(24 * time.Hour),
		},
		AccountName: name,
	})
	if err != nil {
		e.t.Fatalf("failed to seed account: %v", err)
	}
	return account
}

func (e *testEnv) writeVideo(name string, size int) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		e.t.Fatalf("failed to write video: %v", err)
	}
	return path
}

func TestNewRunner(t *testing.T) {
	t.Run("fills in defaults", func(t *testing.T) {
		r := NewRunner(RunnerOpts{})

		if r.logger == nil {
			t.Error("expected default logger")
		}
		if r.output != os.Stdout {
			t.Error("expected output to default to stdout")
		}
		if r.httpClient == nil || r.httpClient.Timeout != 60*time.Second {
			t.Errorf("expected http client with 60s timeout, got %+v", r.httpClient)
		}
		if r.openBrowser == nil || r.now == nil {
			t.Error("expected browser opener and clock defaults")
		}
	})

	t.Run("registers every command", func(t *testing.T) {
		r := NewRunner(RunnerOpts{Output: io.Discard})

		names := map[string]bool{}
		for _, c := range r.register() {
			names[c.Name] = true
		}
		for _, name := range []string{"setup", "connect", "accounts", "creator-info", "upload", "posts", "schedule", "serve"} {
			if !names[name] {
				t.Errorf("expected command %q to be registered", name)
			}
		}
	})

	t.Run("close without database", func(t *testing.T) {
		r := NewRunner(RunnerOpts{Output: io.Discard})
		if err := r.Close(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestWriteJSON(t *testing.T) {
	data := map[string]string{"name": "clip"}

	t.Run("pretty", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewRunner(RunnerOpts{Output: &buf})

		if err := r.writeJSON(data, true); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"name\": \"clip\"") {
			t.Errorf("expected indented JSON, got %q", buf.String())
		}
		if !strings.HasSuffix(buf.String(), "\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("compact", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewRunner(RunnerOpts{Output: &buf})

		if err := r.writeJSON(data, false); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if buf.String() != "{\"name\":\"clip\"}\n" {
			t.Errorf("expected compact JSON, got %q", buf.String())
		}
	})

	t.Run("marshal error", func(t *testing.T) {
		r := NewRunner(RunnerOpts{Output: io.Discard})

		err := r.writeJSON(make(chan int), true)
		if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
			t.Errorf("expected marshal error, got %v", err)
		}
	})

	t.Run("write error", func(t *testing.T) {
		r := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

		err := r.writeJSON(data, true)
		if err == nil || !strings.Contains(err.Error(), "failed to write output") {
			t.Errorf("expected write error, got %v", err)
		}
	})

	t.Run("newline error", func(t *testing.T) {
		var buf bytes.Buffer
		lw := tu.NewLimitedWriter(1, 0, &buf)
		r := NewRunner(RunnerOpts{Output: &lw})

		err := r.writeJSON(data, false)
		if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
			t.Errorf("expected newline error, got %v", err)
		}
	})

	t.Run("plain write error", func(t *testing.T) {
		r := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

		if err := r.writePlain("hello %s\n", "world"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestSetup(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	runner := NewRunner(RunnerOpts{Output: &buf, Logger: log.New(io.Discard)})
	t.Cleanup(func() { runner.Close() })

	if err := newApp(runner).Run(context.Background(), []string{"postx", "setup"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	tu.AssertFileExists(t, "config.toml")
	tu.AssertFileExists(t, "postx.db")

	if content := tu.MustReadFile(t, "config.toml"); !strings.Contains(content, "[credentials.tiktok]") {
		t.Errorf("expected config template, got %q", content)
	}

	out := buf.String()
	for _, want := range []string{"✓ Created config.toml", "✓ Database ready", "TikTok", "✓ configured", "✗ not configured"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}

	t.Run("existing config is kept", func(t *testing.T) {
		buf.Reset()
		runner := NewRunner(RunnerOpts{Output: &buf, Logger: log.New(io.Discard)})
		t.Cleanup(func() { runner.Close() })

		if err := newApp(runner).Run(context.Background(), []string{"postx", "setup"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.Contains(buf.String(), "Created") {
			t.Errorf("expected config not to be recreated, got %q", buf.String())
		}
	})
}

func TestAccountsCommands(t *testing.T) {
	t.Run("list as JSON", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(models.TikTok, "open-1", "creator")
		env.seed(models.YouTube, "channel-1", "channel")

		if err := env.run("accounts", "list", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var views []map[string]any
		if err := json.Unmarshal(env.output.Bytes(), &views); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", env.output.String(), err)
		}
		if len(views) != 2 {
			t.Errorf("expected 2 accounts, got %d", len(views))
		}
		if strings.Contains(env.output.String(), "access-1") {
			t.Error("expected tokens to be left out of the output")
		}
	})

	t.Run("list filtered by platform", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.seed(models.TikTok, "open-1", "creator")
		env.seed(models.YouTube, "channel-1", "channel")

		if err := env.run("accounts", "list", "--format", "csv", "--platform", "youtube"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := env.output.String()
		if !strings.Contains(out, "channel-1") || strings.Contains(out, "open-1") {
			t.Errorf("expected only the YouTube account, got %q", out)
		}
	})

	t.Run("list with unknown platform", func(t *testing.T) {
		env := newTestEnv(t, nil)

		err := env.run("accounts", "list", "--platform", "myspace")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("show by sequence", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("accounts", "show", "--format", "json", fmt.Sprint(account.Sequence)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), account.ID) {
			t.Errorf("expected account %s in output, got %q", account.ID, env.output.String())
		}
	})

	t.Run("show missing account", func(t *testing.T) {
		env := newTestEnv(t, nil)

		if err := env.run("accounts", "show", "nope"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("delete", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("accounts", "delete", account.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "✓ Disconnected TikTok account creator") {
			t.Errorf("unexpected output %q", env.output.String())
		}
		if _, err := env.accounts.Get(account.ID); err == nil {
			t.Error("expected account to be deleted")
		}
	})

	t.Run("refresh stores the new token", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("accounts", "refresh", account.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored, err := env.accounts.Get(account.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stored.AccessToken != "refreshed-token" {
			t.Errorf("expected refreshed-token, got %s", stored.AccessToken)
		}
		if _, refreshes, _ := env.fake.count(); refreshes != 1 {
			t.Errorf("expected 1 refresh, got %d", refreshes)
		}
		if !strings.Contains(env.output.String(), "✓ Token refreshed for creator") {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})

	t.Run("profile is stored", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("accounts", "profile", account.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		if !strings.Contains(out, "Fake Creator") || !strings.Contains(out, "Followers: 42") {
			t.Errorf("unexpected output %q", out)
		}

		stored, _ := env.accounts.Get(account.ID)
		if name := stored.Display().Name; name != "Fake Creator" {
			t.Errorf("expected stored name Fake Creator, got %s", name)
		}
	})

	t.Run("degraded profile is not stored", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("network down"))}
		env := newTestEnv(t, client)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("accounts", "profile", account.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "placeholder data") {
			t.Errorf("expected degraded warning, got %q", env.output.String())
		}

		stored, _ := env.accounts.Get(account.ID)
		if name := stored.Display().Name; name != "creator" {
			t.Errorf("expected stored name to stay creator, got %s", name)
		}
	})
}

func TestCreatorInfo(t *testing.T) {
	t.Run("prints options", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("creator-info", account.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		for _, want := range []string{"Fake Creator (@fake)", "PUBLIC_TO_EVERYONE", "Max duration: 600s", "Duets: off"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got %q", want, out)
			}
		}
	})

	t.Run("YouTube accounts are rejected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.YouTube, "channel-1", "channel")

		err := env.run("creator-info", account.ID)
		if !errors.Is(err, shared.ErrUnsupportedPlatform) {
			t.Errorf("expected ErrUnsupportedPlatform, got %v", err)
		}
	})

	t.Run("unreadable response", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Body:       &tu.FCloser{},
			Header:     make(http.Header),
		}, nil)}
		env := newTestEnv(t, client)
		account := env.seed(models.TikTok, "open-1", "creator")

		err := env.run("creator-info", account.ID)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestUpload(t *testing.T) {
	t.Run("uploads in chunks and records the post", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("clip.mp4", 3<<20)

		if err := env.run("upload", "--caption", "hello", account.ID, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if chunks, _, _ := env.fake.count(); chunks != 3 {
			t.Errorf("expected 3 chunks, got %d", chunks)
		}

		out := env.output.String()
		for _, want := range []string{"chunk 3/3 (100%)", "Upload Complete!", "Publish ID: publish-1", "Video ID:   7300000000000000001"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got %q", want, out)
			}
		}

		posts, err := env.posts.List(map[string]any{"account_id": account.ID})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(posts) != 1 {
			t.Fatalf("expected 1 post, got %d", len(posts))
		}
		if posts[0].Status != models.PostPublished {
			t.Errorf("expected PUBLISHED, got %s", posts[0].Status)
		}
		if posts[0].Caption != "hello" || posts[0].PrivacyLevel != "SELF_ONLY" {
			t.Errorf("unexpected post %+v", posts[0])
		}
	})

	t.Run("JSON result", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("clip.mp4", 1<<20)

		if err := env.run("upload", "--json", account.ID, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		start := strings.Index(out, "{")
		if start < 0 {
			t.Fatalf("expected JSON in output, got %q", out)
		}

		var result tasks.UploadResult
		if err := json.Unmarshal([]byte(out[start:]), &result); err != nil {
			t.Fatalf("expected JSON result, got %q: %v", out[start:], err)
		}
		if result.PublishID != "publish-1" || result.Chunks != 1 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("unknown privacy", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("clip.mp4", 1024)

		err := env.run("upload", "--privacy", "secret", account.ID, path)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")

		if err := env.run("upload", account.ID, filepath.Join(env.dir, "missing.mp4")); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("unsupported type records a failed post", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("notes.txt", 1024)

		if err := env.run("upload", account.ID, path); !errors.Is(err, shared.ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}

		posts, _ := env.posts.List(nil)
		if len(posts) != 1 || posts[0].Status != models.PostFailed {
			t.Fatalf("expected one FAILED post, got %+v", posts)
		}
		if posts[0].ErrorMessage == "" {
			t.Error("expected an error message on the failed post")
		}
	})
}

func TestParsePrivacy(t *testing.T) {
	tests := []struct {
		in      string
		want    services.Privacy
		wantErr bool
	}{
		{"", services.PrivacySelfOnly, false},
		{"public_to_everyone", services.PrivacyPublic, false},
		{" FOLLOWER_OF_CREATOR ", services.PrivacyFollowers, false},
		{"friends", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePrivacy(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestParseRunAt(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr error
	}{
		{"delay", "+90m", now.Add(90 * time.Minute), nil},
		{"timestamp", "2026-10-19T08:30:00Z", time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC), nil},
		{"empty", "", time.Time{}, shared.ErrMissingArgument},
		{"negative delay", "+-1h", time.Time{}, shared.ErrInvalidArgument},
		{"bad delay", "+soon", time.Time{}, shared.ErrInvalidArgument},
		{"past", "2026-10-18T11:59:00Z", time.Time{}, shared.ErrInvalidArgument},
		{"not a time", "tomorrow", time.Time{}, shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRunAt(tt.in, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestScheduleCommands(t *testing.T) {
	t.Run("add, list and run", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("clip.mp4", 2<<20)

		if err := env.run("schedule", "add", "--at", "+1h", "--caption", "later", account.ID, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "✓ Scheduled post #") {
			t.Errorf("unexpected output %q", env.output.String())
		}

		posts, _ := env.posts.List(nil)
		if len(posts) != 1 || posts[0].Status != models.PostScheduled {
			t.Fatalf("expected one SCHEDULED post, got %+v", posts)
		}

		env.output.Reset()
		if err := env.run("posts", "list", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var views []map[string]any
		if err := json.Unmarshal(env.output.Bytes(), &views); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", env.output.String(), err)
		}
		if len(views) != 1 || views[0]["run_at"] == nil {
			t.Errorf("expected one post with run_at, got %v", views)
		}

		env.output.Reset()
		if err := env.run("schedule", "run"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "No posts are due.") {
			t.Errorf("expected nothing due yet, got %q", env.output.String())
		}

		env.now = env.now.Add(2 * time.Hour)
		env.output.Reset()
		if err := env.run("schedule", "run"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Published: 1") {
			t.Errorf("expected one published post, got %q", env.output.String())
		}

		post, err := env.posts.Get(posts[0].ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if post.Status != models.PostPublished {
			t.Errorf("expected PUBLISHED, got %s", post.Status)
		}
		if chunks, _, _ := env.fake.count(); chunks != 2 {
			t.Errorf("expected 2 chunks, got %d", chunks)
		}
	})

	t.Run("remove returns the post to draft", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("clip.mp4", 1024)

		if err := env.run("schedule", "add", "--at", "+1h", account.ID, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		posts, _ := env.posts.List(nil)
		if len(posts) != 1 {
			t.Fatalf("expected 1 post, got %d", len(posts))
		}

		if err := env.run("schedule", "rm", posts[0].ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		post, _ := env.posts.Get(posts[0].ID)
		if post.Status != models.PostDraft {
			t.Errorf("expected DRAFT, got %s", post.Status)
		}
		if err := env.run("schedule", "rm", posts[0].ID); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("past time is rejected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.TikTok, "open-1", "creator")
		path := env.writeVideo("clip.mp4", 1024)

		err := env.run("schedule", "add", "--at", "2020-01-01T00:00:00Z", account.ID, path)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("platform without upload client", func(t *testing.T) {
		env := newTestEnv(t, nil)
		account := env.seed(models.Instagram, "ig-1", "insta")
		path := env.writeVideo("clip.mp4", 1024)

		err := env.run("schedule", "add", "--at", "+1h", account.ID, path)
		if !errors.Is(err, shared.ErrUnsupportedPlatform) {
			t.Errorf("expected ErrUnsupportedPlatform, got %v", err)
		}
	})
}

func TestConnect(t *testing.T) {
	t.Run("completes the callback", func(t *testing.T) {
		env := newTestEnv(t, nil)
		addr := env.runner.config.Server.Addr()

		noRedirect := &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
		var location string
		env.runner.openBrowser = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			if u.Query().Get("code_challenge_method") != "S256" {
				t.Errorf("expected a PKCE challenge in %s", authURL)
			}

			callback := fmt.Sprintf("http://%s/callback/tiktok?code=code-1&state=%s", addr, url.QueryEscape(u.Query().Get("state")))
			resp, err := noRedirect.Get(callback)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			location = resp.Header.Get("Location")
			return nil
		}

		if err := env.run("connect", "tiktok"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if !strings.Contains(location, "success=connected") {
			t.Errorf("expected redirect with success=connected, got %q", location)
		}
		if !strings.Contains(env.output.String(), "✓ Connected TikTok account Fake Creator") {
			t.Errorf("unexpected output %q", env.output.String())
		}

		account, err := env.accounts.FindByPlatformAccount(models.TikTok, "open-2")
		if err != nil {
			t.Fatalf("expected account to be stored, got %v", err)
		}
		if account.AccessToken != "access-2" || account.UserID != services.DefaultUserID {
			t.Errorf("unexpected account %+v", account)
		}
		if _, _, exchanges := env.fake.count(); exchanges != 1 {
			t.Errorf("expected 1 exchange, got %d", exchanges)
		}
	})

	t.Run("unknown platform", func(t *testing.T) {
		env := newTestEnv(t, nil)

		if err := env.run("connect", "myspace"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("unconfigured platform", func(t *testing.T) {
		env := newTestEnv(t, nil)

		if err := env.run("connect", "instagram"); !errors.Is(err, shared.ErrUnsupportedPlatform) {
			t.Errorf("expected ErrUnsupportedPlatform, got %v", err)
		}
	})

	t.Run("times out without a callback", func(t *testing.T) {
		env := newTestEnv(t, nil)

		err := env.run("connect", "--timeout", "50ms", "--no-browser", "tiktok")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if !strings.Contains(env.output.String(), "https://www.tiktok.com/") {
			t.Errorf("expected the authorization URL to be printed, got %q", env.output.String())
		}
	})
}

func TestServe(t *testing.T) {
	env := newTestEnv(t, nil)
	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newApp(env.runner).Run(ctx, []string{"postx", "serve", "--addr", addr})
	}()

	var healthy bool
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				healthy = true
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !healthy {
		t.Error("expected /healthz to respond")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
