package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
)

// RunGroupAttach grants the given access level to a principal by attaching the
// group's access policy.
func RunGroupAttach(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	accessValue, userName string,
) error {
	access, err := parseAccess(accessValue)
	if err != nil {
		return err
	}
	if userName == "" {
		return fmt.Errorf("user name must not be empty")
	}

	if err := manager.Attach(ctx, access, userName); err != nil {
		return fmt.Errorf("failed to attach user: %w", err)
	}

	logger.Info("user attached",
		slog.String("access", string(access)),
		slog.String("user", userName),
	)
	fmt.Fprintf(out, "Attached %s to the %s policy\n", userName, access)
	return nil
}

// RunGroupDetach revokes the given access level from a principal.
func RunGroupDetach(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	accessValue, userName string,
) error {
	access, err := parseAccess(accessValue)
	if err != nil {
		return err
	}
	if userName == "" {
		return fmt.Errorf("user name must not be empty")
	}

	if err := manager.Detach(ctx, access, userName); err != nil {
		return fmt.Errorf("failed to detach user: %w", err)
	}

	logger.Info("user detached",
		slog.String("access", string(access)),
		slog.String("user", userName),
	)
	fmt.Fprintf(out, "Detached %s from the %s policy\n", userName, access)
	return nil
}
