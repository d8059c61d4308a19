package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/strongroom/cmd/app/commands"
	"github.com/allisson/strongroom/internal/app"
)

func getGroupCommands() []*cli.Command {
	formatFlag := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}

	return []*cli.Command{
		{
			Name:  "group-create",
			Usage: "Provision the group's store, encryption key and access policies",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "allow-key-reuse",
					Value: false,
					Usage: "Re-enable a disabled or pending-deletion key instead of failing",
				},
				formatFlag,
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupCreate(ctx, manager, logger, os.Stdout, cmd.Bool("allow-key-reuse"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "group-delete",
			Usage: "Remove the group's store and access policies and schedule key deletion",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupDelete(ctx, manager, logger, os.Stdout)
				})
			},
		},
		{
			Name:  "group-info",
			Usage: "Show the observed state of the group's sub-resources",
			Flags: []cli.Flag{formatFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupInfo(ctx, manager, logger, os.Stdout, cmd.String("format"))
				})
			},
		},
		{
			Name:  "group-attach",
			Usage: "Grant an access level to a principal",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "access",
					Aliases:  []string{"a"},
					Required: true,
					Usage:    "Access level: 'admin' or 'readonly'",
				},
				&cli.StringFlag{
					Name:     "user",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "Principal user name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupAttach(ctx, manager, logger, os.Stdout, cmd.String("access"), cmd.String("user"))
				})
			},
		},
		{
			Name:  "group-detach",
			Usage: "Revoke an access level from a principal",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "access",
					Aliases:  []string{"a"},
					Required: true,
					Usage:    "Access level: 'admin' or 'readonly'",
				},
				&cli.StringFlag{
					Name:     "user",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "Principal user name",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupDetach(ctx, manager, logger, os.Stdout, cmd.String("access"), cmd.String("user"))
				})
			},
		},
		{
			Name:  "group-backup",
			Usage: "Copy every entry of the group's store into an encrypted backup file",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "path",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Backup file path",
				},
				&cli.StringFlag{
					Name:     "passphrase",
					Required: true,
					Usage:    "Backup file passphrase",
				},
				&cli.BoolFlag{
					Name:  "overwrite",
					Value: false,
					Usage: "Destroy a pre-existing backup file first",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupBackup(
						ctx, manager, logger, os.Stdout,
						cmd.String("path"), cmd.String("passphrase"), cmd.Bool("overwrite"),
					)
				})
			},
		},
		{
			Name:  "group-restore",
			Usage: "Copy every entry of an encrypted backup file into the group's store",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "path",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Backup file path",
				},
				&cli.StringFlag{
					Name:     "passphrase",
					Required: true,
					Usage:    "Backup file passphrase",
				},
				&cli.BoolFlag{
					Name:  "overwrite",
					Value: false,
					Usage: "Destroy the group's non-empty store first",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					return commands.RunGroupRestore(
						ctx, manager, logger, os.Stdout,
						cmd.String("path"), cmd.String("passphrase"), cmd.Bool("overwrite"),
					)
				})
			},
		},
		{
			Name:  "group-migrate",
			Usage: "Move the group's entries to a different storage backend",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "backend",
					Aliases:  []string{"b"},
					Required: true,
					Usage:    "Target backend: 'memory', 'file', 'postgresql' or 'dynamodb'",
				},
				&cli.StringFlag{
					Name:  "file-path",
					Usage: "Target file path (file backend only)",
				},
				&cli.StringFlag{
					Name:  "file-passphrase",
					Usage: "Target file passphrase (file backend only)",
				},
				formatFlag,
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runWithContainer(ctx, func(ctx context.Context, container *app.Container, logger *slog.Logger) error {
					manager, err := container.GroupManager()
					if err != nil {
						return err
					}
					target, err := commands.BuildMigrationTarget(
						container, cmd.String("backend"), cmd.String("file-path"), cmd.String("file-passphrase"),
					)
					if err != nil {
						return err
					}
					return commands.RunGroupMigrate(ctx, manager, logger, os.Stdout, target, cmd.String("format"))
				})
			},
		},
	}
}
