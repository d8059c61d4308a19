package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/allisson/strongroom/internal/app"
	"github.com/allisson/strongroom/internal/config"
)

func getCommands() []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getGroupCommands()...)
	cmds = append(cmds, getSecretCommands()...)
	return cmds
}

// runWithContainer assembles the container for one command invocation and
// tears it down afterwards.
func runWithContainer(
	ctx context.Context,
	fn func(ctx context.Context, container *app.Container, logger *slog.Logger) error,
) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()

	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown container", slog.Any("error", err))
		}
	}()

	return fn(ctx, container, logger)
}
