package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/strongroom/cmd/app/commands"
	"github.com/allisson/strongroom/internal/app"
)

func secretInputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Aliases:  []string{"n"},
			Required: true,
			Usage:    "Secret name",
		},
		&cli.StringFlag{
			Name:    "value",
			Aliases: []string{"v"},
			Usage:   "Secret value as UTF-8 text",
		},
		&cli.StringFlag{
			Name:  "value-base64",
			Usage: "Secret value as standard base64 (binary values)",
		},
		&cli.StringFlag{
			Name:  "user-data",
			Usage: "Free-form caller data as standard base64",
		},
		&cli.StringFlag{
			Name:    "comment",
			Aliases: []string{"c"},
			Usage:   "Human comment",
		},
		&cli.StringFlag{
			Name:  "not-before",
			Usage: "Activation window start, RFC 3339",
		},
		&cli.StringFlag{
			Name:  "not-after",
			Usage: "Activation window end, RFC 3339",
		},
		&cli.StringFlag{
			Name:  "state",
			Usage: "Initial state: ENABLED, DISABLED or COMPROMISED (default ENABLED)",
		},
		&cli.StringFlag{
			Name:  "actor",
			Usage: "Alias recorded as the creating user",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "text",
			Usage:   "Output format: 'text' or 'json'",
		},
	}
}

func getSecretCommands() []*cli.Command {
	formatFlag := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}

	return []*cli.Command{
		{
			Name:  "secret-create",
			Usage: "Create a secret with version 1",
			Flags: secretInputFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretCreate(
						ctx, manager, logger, os.Stdout,
						cmd.String("name"), cmd.String("value"), cmd.String("value-base64"),
						cmd.String("user-data"), cmd.String("comment"),
						cmd.String("not-before"), cmd.String("not-after"),
						cmd.String("state"), cmd.String("actor"), cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "secret-add-version",
			Usage: "Append a new version to an existing secret",
			Flags: secretInputFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretAddVersion(
						ctx, manager, logger, os.Stdout,
						cmd.String("name"), cmd.String("value"), cmd.String("value-base64"),
						cmd.String("user-data"), cmd.String("comment"),
						cmd.String("not-before"), cmd.String("not-after"),
						cmd.String("state"), cmd.String("actor"), cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "secret-get",
			Usage: "Retrieve and decrypt one version of a secret",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Secret name",
				},
				&cli.UintFlag{
					Name:    "version",
					Aliases: []string{"V"},
					Value:   0,
					Usage:   "Version number, 0 for the latest",
				},
				&cli.BoolFlag{
					Name:  "any-state",
					Value: false,
					Usage: "Also return disabled, compromised or out-of-window versions",
				},
				formatFlag,
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretGet(
						ctx, manager, logger, os.Stdout,
						cmd.String("name"), uint64(cmd.Uint("version")), cmd.Bool("any-state"), cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "secret-list",
			Usage: "List the distinct secret names of the group",
			Flags: []cli.Flag{formatFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretList(ctx, manager, logger, os.Stdout, cmd.String("format"))
				})
			},
		},
		{
			Name:  "secret-versions",
			Usage: "List all versions of a secret with their decrypted values",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Secret name",
				},
				&cli.BoolFlag{
					Name:  "active-only",
					Value: false,
					Usage: "Only currently active versions",
				},
				formatFlag,
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretVersions(
						ctx, manager, logger, os.Stdout,
						cmd.String("name"), cmd.Bool("active-only"), cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "secret-update-metadata",
			Usage: "Replace a version's state, comment and activation window",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Secret name",
				},
				&cli.UintFlag{
					Name:     "version",
					Aliases:  []string{"V"},
					Required: true,
					Usage:    "Version number",
				},
				&cli.StringFlag{
					Name:     "state",
					Required: true,
					Usage:    "New state: ENABLED, DISABLED or COMPROMISED",
				},
				&cli.StringFlag{
					Name:    "comment",
					Aliases: []string{"c"},
					Usage:   "Replacement comment",
				},
				&cli.StringFlag{
					Name:  "not-before",
					Usage: "Activation window start, RFC 3339 (omit to clear)",
				},
				&cli.StringFlag{
					Name:  "not-after",
					Usage: "Activation window end, RFC 3339 (omit to clear)",
				},
				&cli.StringFlag{
					Name:  "actor",
					Usage: "Alias recorded as the modifying user",
				},
				formatFlag,
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretUpdateMetadata(
						ctx, manager, logger, os.Stdout,
						cmd.String("name"), uint64(cmd.Uint("version")),
						cmd.String("state"), cmd.String("comment"),
						cmd.String("not-before"), cmd.String("not-after"),
						cmd.String("actor"), cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "secret-delete",
			Usage: "Remove all versions of a secret",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Secret name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretDelete(ctx, manager, logger, os.Stdout, cmd.String("name"))
				})
			},
		},
		{
			Name:  "secret-random",
			Usage: "Generate secure random bytes for use as a secret value",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "length",
					Aliases: []string{"l"},
					Value:   32,
					Usage:   "Number of random bytes",
				},
				formatFlag,
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.SecretManager()
					if err != nil {
						return err
					}
					return commands.RunSecretRandom(ctx, manager, logger, os.Stdout, cmd.Int("length"), cmd.String("format"))
				})
			},
		},
	}
}
