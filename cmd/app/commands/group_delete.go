package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
)

// RunGroupDelete removes the group's sub-resources. Missing sub-resources are
// skipped; the encryption key is scheduled for delayed deletion rather than
// destroyed immediately.
func RunGroupDelete(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
) error {
	logger.Info("deleting group")

	if err := manager.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	logger.Info("group deleted")
	fmt.Fprintln(out, "Group deleted")
	return nil
}
