package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/postx/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the connect and callback server until interrupted.
//
// With --scheduler, due posts are published in the background on the same process.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	router, _ := r.newRouter()

	schedulerDone := make(chan struct{})
	if cmd.Bool("scheduler") {
		go func() {
			defer close(schedulerDone)
			if err := r.newDispatcher().Watch(ctx, cmd.Duration("interval"), nil); err != nil {
				r.logger.Error("scheduler stopped", "error", err)
			}
		}()
	} else {
		close(schedulerDone)
	}

	r.logger.Info("serving", "addr", addr, "accounts_url", r.config.Server.AccountsURL)
	err := server.Serve(ctx, addr, router, r.logger, nil)
	stop()
	<-schedulerDone
	return err
}
