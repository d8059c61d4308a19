package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
)

// RunSecretDelete removes all versions of a secret.
func RunSecretDelete(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	name string,
) error {
	id, err := domain.NewSecretIdentifier(name)
	if err != nil {
		return fmt.Errorf("invalid secret name: %w", err)
	}

	count, err := manager.DeleteSecret(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	logger.Info("secret deleted",
		slog.String("name", id.Name()),
		slog.Int("versions", count),
	)
	fmt.Fprintf(out, "Deleted %d version(s) of %s\n", count, id.Name())
	return nil
}
