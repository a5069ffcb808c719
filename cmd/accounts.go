package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/postx/internal/formatter"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/urfave/cli/v3"
)

// AccountsList lists connected accounts, optionally filtered by platform.
func (r *Runner) AccountsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	criteria := map[string]any{}
	if p := cmd.String("platform"); p != "" {
		platform, err := models.ParsePlatform(p)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		criteria["platform_type"] = platform
	}

	accounts, err := r.accounts.List(criteria)
	if err != nil {
		return err
	}
	return formatter.WriteAccounts(r.output, accounts, format)
}

// AccountsShow prints a single account.
func (r *Runner) AccountsShow(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(formatter.NewAccountView(account), true)
	}
	return formatter.WriteAccounts(r.output, []*models.Account{account}, format)
}

// AccountsDelete disconnects an account. Its posts and scheduler jobs are removed with it.
func (r *Runner) AccountsDelete(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	if err := r.accounts.Delete(account.ID); err != nil {
		return err
	}

	r.logger.Info("account deleted", "account", account.ID, "platform", account.Platform)
	return r.writePlain("✓ Disconnected %s account %s\n", account.Platform.DisplayName(), account.Display().Name)
}

// AccountsRefresh forces a token refresh regardless of the stored expiry.
func (r *Runner) AccountsRefresh(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	refreshed, err := r.guard.Refresh(ctx, account.ID)
	if err != nil {
		return err
	}

	expiry := "never"
	if !refreshed.TokenExpiry.IsZero() {
		expiry = refreshed.TokenExpiry.Local().Format("2006-01-02 15:04:05")
	}
	return r.writePlain("✓ Token refreshed for %s (expires %s)\n", refreshed.Display().Name, expiry)
}

// AccountsProfile fetches the profile from the platform and stores it on the account.
//
// A degraded profile is shown but not stored so a transient API error doesn't replace good data.
func (r *Runner) AccountsProfile(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	client, err := r.clients.ForAccount(account)
	if err != nil {
		return err
	}

	profile, err := client.GetProfileInfo(ctx)
	if err != nil {
		return err
	}

	display := profile.Normalize()
	if display.Degraded {
		r.logger.Warn("profile unavailable, keeping stored profile", "account", account.ID)
	} else if err := r.accounts.UpdateProfile(account.ID, display.Name, profile); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(profile, true)
	}

	r.writePlainHeader(display.Name)
	r.writePlain("Platform:  %s\n", account.Platform.DisplayName())
	r.writePlain("Followers: %d\n", display.Followers)
	if display.AvatarURL != "" {
		r.writePlain("Avatar:    %s\n", display.AvatarURL)
	}
	if display.Degraded {
		r.writePlain("\n⚠ The platform API returned an error; showing placeholder data.\n")
	}
	return nil
}

// CreatorInfo shows the privacy levels and limits TikTok allows for the creator.
func (r *Runner) CreatorInfo(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd.StringArg("account"))
	if err != nil {
		return err
	}

	client, err := r.clients.ForAccount(account)
	if err != nil {
		return err
	}

	tiktok, ok := client.(*services.TikTokClient)
	if !ok {
		return fmt.Errorf("%w: creator info is only available for TikTok accounts", shared.ErrUnsupportedPlatform)
	}

	info, err := tiktok.QueryCreatorInfo(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s (@%s)", info.Nickname, info.Username))
	r.writePlain("Privacy levels:\n")
	for _, p := range info.PrivacyLevelOptions {
		r.writePlain("  - %s\n", p)
	}
	r.writePlain("Max duration: %ds\n", info.MaxVideoDurationSec)
	r.writePlain("Comments: %s  Duets: %s  Stitches: %s\n",
		enabled(!info.CommentDisabled), enabled(!info.DuetDisabled), enabled(!info.StitchDisabled))
	return nil
}

func enabled(ok bool) string {
	if ok {
		return "on"
	}
	return "off"
}
