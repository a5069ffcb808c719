package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
)

// Connector starts and completes OAuth connections. [services.OAuthFlow] implements it.
type Connector interface {
	StartOAuth(platform models.PlatformType) (*services.AuthRequest, error)
	HandleCallback(ctx context.Context, params services.CallbackParams) (*models.Account, error)
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Platform models.PlatformType
	Account  *models.Account
	err      error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler serves the connect and callback endpoints for every platform.
//
// Callbacks always end in a redirect to the accounts page, carrying either success=connected
// or a human readable error. The first callback result is also published on [OAuthHandler.Result].
type OAuthHandler struct {
	flow        Connector
	accountsURL string
	logger      *log.Logger
	resultChan  chan OAuthResult
	once        sync.Once
}

// NewOAuthHandler creates a new OAuth handler that redirects to accountsURL after each callback.
func NewOAuthHandler(flow Connector, accountsURL string, logger *log.Logger) *OAuthHandler {
	if accountsURL == "" {
		accountsURL = "/"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OAuthHandler{
		flow:        flow,
		accountsURL: accountsURL,
		logger:      logger,
		resultChan:  make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET /connect/{platform}", "GET /callback/{platform}"}
}

// ServeHTTP dispatches to the connect or callback handler.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	platform, err := models.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		http.Error(w, "Unknown platform", http.StatusNotFound)
		return
	}

	switch r.Pattern {
	case "GET /connect/{platform}":
		h.connect(w, r, platform)
	default:
		h.callback(w, r, platform)
	}
}

// connect starts the flow and redirects to the provider.
func (h *OAuthHandler) connect(w http.ResponseWriter, r *http.Request, platform models.PlatformType) {
	req, err := h.flow.StartOAuth(platform)
	if err != nil {
		h.logger.Error("failed to start oauth", "platform", platform, "error", err)
		h.redirect(w, r, "error", connectMessage(err))
		return
	}
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// callback completes the flow. A replayed code redirects without a status and publishes nothing.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request, platform models.PlatformType) {
	q := r.URL.Query()

	if denied := q.Get("error"); denied != "" {
		err := fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, denied)
		msg := q.Get("error_description")
		if msg == "" {
			msg = "Authorization was denied."
		}
		h.logger.Warn("authorization denied", "platform", platform, "error", denied)
		h.Send(OAuthResult{Platform: platform, err: err})
		h.redirect(w, r, "error", msg)
		return
	}

	account, err := h.flow.HandleCallback(r.Context(), services.CallbackParams{
		Platform: platform,
		Code:     q.Get("code"),
		State:    q.Get("state"),
	})

	switch {
	case errors.Is(err, shared.ErrCodeAlreadyProcessed):
		h.logger.Debug("duplicate callback", "platform", platform)
		h.redirect(w, r, "", "")
	case err != nil:
		h.Send(OAuthResult{Platform: platform, err: err})
		h.redirect(w, r, "error", shared.UserMessage(err))
	default:
		h.Send(OAuthResult{Platform: platform, Account: account})
		h.redirect(w, r, "success", "connected")
	}
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(h.accountsURL)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	if key != "" {
		q := target.Query()
		q.Set(key, value)
		target.RawQuery = q.Encode()
	}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func connectMessage(err error) string {
	if errors.Is(err, shared.ErrUnsupportedPlatform) {
		return "This platform is not configured."
	}
	return shared.UserMessage(err)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

var accountsPage = template.Must(template.New("accounts").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: {{.Color}}; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// AccountsPage renders the page callbacks redirect to when the accounts URL points back at this server.
type AccountsPage struct {
	Path string
}

func (p AccountsPage) Routes() []string { return []string{"GET " + p.Path} }

func (p AccountsPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := struct{ Title, Message, Color string }{
		Title:   "✓ Account Connected",
		Message: "You can close this window and return to the terminal.",
		Color:   "#25F4EE",
	}

	q := r.URL.Query()
	switch {
	case q.Get("error") != "":
		data.Title = "✗ Connection Failed"
		data.Message = q.Get("error")
		data.Color = "#FE2C55"
	case q.Get("success") == "":
		data.Title = "postx"
		data.Message = "Connect an account with postx connect <platform>."
		data.Color = "#333"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := accountsPage.Execute(w, data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
