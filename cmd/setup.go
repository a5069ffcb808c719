package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Created %s\n", configPath)
	}

	r.config = nil
	r.configPath = configPath
	if err := r.loadConfig(cmd); err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if err := r.openDatabase(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	r.writePlain("✓ Database ready: %s\n", r.config.Database.Path)

	creds := r.config.Credentials
	configured := map[models.PlatformType]bool{
		models.TikTok:    creds.TikTok.Provider().Configured(),
		models.YouTube:   creds.YouTube.Configured(),
		models.Instagram: creds.Instagram.Configured(),
		models.Facebook:  creds.Facebook.Configured(),
		models.X:         creds.X.Configured(),
	}

	r.writePlain("\nPlatforms:\n")
	for _, p := range models.Platforms {
		mark := "✗ not configured"
		if configured[p] {
			mark = "✓ configured"
		}
		r.writePlain("  %-10s %s\n", p.DisplayName(), mark)
	}

	r.writePlain("\nNext steps:\n")
	r.writePlain("1. Add client credentials for each platform to %s\n", configPath)
	r.writePlain("2. Run 'postx connect tiktok' to connect an account\n")
	return nil
}
