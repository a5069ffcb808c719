// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, csv, json, or markdown",
		Value:   "table",
	}
}

// setupCommand creates the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// connectCommand runs the OAuth connect flow in the browser.
func connectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect an account (tiktok, youtube, instagram, facebook, x)",
		ArgsUsage: "<platform>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "platform"},
		},
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the provider to redirect back",
				Value: 2 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening a browser",
			},
		},
		Action: r.with(r.Connect),
	}
}

// accountsCommand manages connected accounts.
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acct"},
		Usage:   "Manage connected accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List connected accounts",
				Flags: []cli.Flag{
					formatFlag(),
					&cli.StringFlag{
						Name:  "platform",
						Usage: "Only list accounts for this platform",
					},
				},
				Action: r.with(r.AccountsList),
			},
			{
				Name:      "show",
				Usage:     "Show an account",
				ArgsUsage: "<account>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "account"}},
				Flags:     []cli.Flag{formatFlag()},
				Action:    r.with(r.AccountsShow),
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Disconnect an account and remove its posts and scheduled jobs",
				ArgsUsage: "<account>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "account"}},
				Action:    r.with(r.AccountsDelete),
			},
			{
				Name:      "refresh",
				Usage:     "Refresh an account's access token",
				ArgsUsage: "<account>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "account"}},
				Action:    r.with(r.AccountsRefresh),
			},
			{
				Name:      "profile",
				Usage:     "Fetch and store the latest profile from the platform",
				ArgsUsage: "<account>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "account"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.with(r.AccountsProfile),
			},
		},
	}
}

// creatorInfoCommand queries TikTok posting capabilities.
func creatorInfoCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "creator-info",
		Usage:     "Show the privacy options and limits for a TikTok creator",
		ArgsUsage: "<account>",
		Arguments: []cli.Argument{&cli.StringArg{Name: "account"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.with(r.CreatorInfo),
	}
}

func postFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "caption",
			Usage: "Post caption or title",
		},
		&cli.StringFlag{
			Name:  "privacy",
			Usage: "PUBLIC_TO_EVERYONE, MUTUAL_FOLLOW_FRIENDS, FOLLOWER_OF_CREATOR or SELF_ONLY",
			Value: "SELF_ONLY",
		},
	}
}

// uploadCommand uploads and publishes a video immediately.
func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a video and publish it",
		ArgsUsage: "<account> <file>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "account"},
			&cli.StringArg{Name: "file"},
		},
		Flags: append(postFlags(),
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Video duration, when it cannot be read from the file",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show interactive upload progress",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the result as JSON",
			},
		),
		Action: r.with(r.Upload),
	}
}

// postsCommand lists posts.
func postsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "Inspect posts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List posts with their schedule and status",
				Flags: []cli.Flag{
					formatFlag(),
					&cli.StringFlag{
						Name:  "account",
						Usage: "Only list posts for this account",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only list posts with this status",
					},
				},
				Action: r.with(r.PostsList),
			},
		},
	}
}

// scheduleCommand manages scheduled posts.
func scheduleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Schedule posts for later publication",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Schedule a video for publication",
				ArgsUsage: "<account> <file>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "account"},
					&cli.StringArg{Name: "file"},
				},
				Flags: append(postFlags(),
					&cli.StringFlag{
						Name:     "at",
						Usage:    "When to publish: RFC 3339 (2026-01-02T15:04:05Z) or a delay like +2h",
						Required: true,
					},
				),
				Action: r.with(r.ScheduleAdd),
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Unschedule a post, returning it to draft",
				ArgsUsage: "<post>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "post"}},
				Action:    r.with(r.ScheduleRemove),
			},
			{
				Name:  "run",
				Usage: "Publish every post that is due",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep running and check for due posts on an interval",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "How often to check for due posts with --watch",
						Value: time.Minute,
					},
				},
				Action: r.with(r.ScheduleRun),
			},
		},
	}
}

// serveCommand runs the connect and callback server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the OAuth connect and callback server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to [server] host and port)",
			},
			&cli.BoolFlag{
				Name:  "scheduler",
				Usage: "Also publish scheduled posts while serving",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "How often to check for due posts with --scheduler",
				Value: time.Minute,
			},
		},
		Action: r.with(r.Serve),
	}
}
