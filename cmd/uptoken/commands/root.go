package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/velocimex/uptoken/internal/app"
	"github.com/velocimex/uptoken/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "uptoken",
		Usage: "Upstox multi-API access token manager",
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
		},
		Commands: []*cli.Command{
			loginCommand(),
			statusCommand(),
			cleanupCommand(),
			contractsCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "generate access tokens for every configured API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-automation",
				Usage: "skip the automated browser login, paste redirects manually",
			},
			&cli.BoolFlag{
				Name:  "with-contracts",
				Usage: "refresh the instrument master after a successful run",
			},
			&cli.BoolFlag{
				Name:  "login--headless",
				Usage: "run the automated browser without a window",
			},
			&cli.DurationFlag{
				Name:  "login--delay",
				Usage: "pause between credentials",
				Value: app.DefaultConfigDelay,
			},
			&cli.StringFlag{
				Name:  "store--file",
				Usage: "path of the token file",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer observability.Shutdown(context.WithoutCancel(ctx))

	outcome, err := application.Login(ctx, app.LoginOptions{
		NoAutomation:  cmd.Bool("no-automation"),
		WithContracts: cmd.Bool("with-contracts"),
	})
	if err != nil {
		return err
	}

	if code := outcome.Status.ExitCode(); code != 0 {
		return cli.Exit(fmt.Sprintf("login finished with %s", outcome.Status), code)
	}
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show stored tokens and their validity",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "check each valid token against the profile endpoint",
			},
			&cli.StringFlag{
				Name:  "store--file",
				Usage: "path of the token file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer observability.Shutdown(context.WithoutCancel(ctx))

			return application.Status(ctx, cmd.Bool("verify"))
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "remove orphaned and expired tokens from the store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "store--file",
				Usage: "path of the token file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer observability.Shutdown(context.WithoutCancel(ctx))

			return application.Cleanup(ctx)
		},
	}
}

func contractsCommand() *cli.Command {
	return &cli.Command{
		Name:  "contracts",
		Usage: "download the instrument master",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "contracts--url",
				Usage: "instrument master URL",
			},
			&cli.StringFlag{
				Name:  "contracts--file",
				Usage: "destination path for the extracted JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer observability.Shutdown(context.WithoutCancel(ctx))

			return application.DownloadContracts(ctx)
		},
	}
}

// setup loads configuration, installs logging and builds the application.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	slog.DebugContext(ctx, "configuration loaded",
		"credentials", len(cfg.Credentials),
		"store", cfg.Store.File,
		"secrets_backend", cfg.Secrets.Backend,
	)
	return application, nil
}
