package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
)

// RunGroupCreate provisions the group's backend store, encryption key and
// access policies. With allowKeyReuse a disabled or pending-deletion key left
// over from an earlier group is re-enabled instead of blocking the create.
func RunGroupCreate(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	allowKeyReuse bool,
	format string,
) error {
	logger.Info("creating group", slog.Bool("allow_key_reuse", allowKeyReuse))

	info, err := manager.Create(ctx, allowKeyReuse)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	logger.Info("group created", slog.String("group", info.Group.String()))

	if format != "json" {
		fmt.Fprintf(out, "Group %s created\n", info.Group.String())
	}
	return writeGroupInfo(out, info, format)
}
