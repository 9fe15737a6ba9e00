package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/craftauth/internal/app"
	"github.com/florianilch/craftauth/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "craftauth",
		Usage: "Minecraft account login and credential vault",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "storage backend (file|memory|bolt|keyring)",
				Value: string(app.DefaultConfigStorageType),
			},
			&cli.StringFlag{
				Name:  "storage--dir",
				Usage: "vault directory for file storage",
			},
			&cli.StringFlag{
				Name:  "auth--client-id",
				Usage: "oauth client id for microsoft login",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			accountsCommand(),
			logoutCommand(),
			validateCommand(),
			statusCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads configuration and builds the application for a subcommand.
func setup(cmd *cli.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}
