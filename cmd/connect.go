package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/server"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/urfave/cli/v3"
)

// newRouter builds the connect/callback router used by both connect and serve.
func (r *Runner) newRouter() (*server.BasicRouter, *server.OAuthHandler) {
	accountsURL := r.config.Server.AccountsURL
	handler := server.NewOAuthHandler(r.flow, accountsURL, shared.WithLogger(r.logger, "component", "callback"))

	router := server.NewBasicRouter(server.RecoverMiddleware(r.logger), server.LoggingMiddleware(r.logger))
	router.Handler(handler)
	router.Handler(server.HealthHandler{})

	// Relative accounts URLs point back at this server.
	if strings.HasPrefix(accountsURL, "/") {
		path, _, _ := strings.Cut(accountsURL, "?")
		router.Handler(server.AccountsPage{Path: path})
	}
	return router, handler
}

// Connect starts a local callback server, sends the user to the provider and waits for the redirect.
func (r *Runner) Connect(ctx context.Context, cmd *cli.Command) error {
	platform, err := models.ParsePlatform(cmd.StringArg("platform"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	req, err := r.flow.StartOAuth(platform)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	router, handler := r.newRouter()
	ready := make(chan struct{})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, r.config.Server.Addr(), router, r.logger, ready)
	}()

	select {
	case <-ready:
	case err := <-serveErr:
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	r.writePlain("Connecting %s...\n", platform.DisplayName())
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n%s\n", req.URL)
	} else if err := r.openBrowser(req.URL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
		r.writePlain("Open this URL to authorize:\n%s\n", req.URL)
	}

	select {
	case result := <-handler.Result():
		cancel()
		<-serveErr
		if err := result.Error(); err != nil {
			return fmt.Errorf("failed to connect %s: %w", platform.DisplayName(), err)
		}
		display := result.Account.Display()
		r.writePlain("✓ Connected %s account %s\n", platform.DisplayName(), display.Name)
		r.writePlain("  ID: %s\n", result.Account.ID)
		return nil
	case <-ctx.Done():
		<-serveErr
		return fmt.Errorf("%w: no callback received for %s", shared.ErrTimeout, platform.DisplayName())
	}
}
