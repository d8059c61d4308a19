package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
)

// RunSecretList prints the distinct secret names of the group, sorted.
func RunSecretList(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	format string,
) error {
	ids, err := manager.ListIdentifiers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}

	logger.Info("secrets listed", slog.Int("count", len(ids)))

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name())
	}

	if format == "json" {
		return printJSON(out, map[string]any{"secrets": names, "count": len(names)})
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

// RunSecretVersions prints all versions of a secret, newest first, with the
// decrypted values.
func RunSecretVersions(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	name string,
	activeOnly bool,
	format string,
) error {
	id, err := domain.NewSecretIdentifier(name)
	if err != nil {
		return fmt.Errorf("invalid secret name: %w", err)
	}

	fetch := manager.GetAllVersions
	if activeOnly {
		fetch = manager.GetAllActiveVersions
	}
	versions, err := fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get versions: %w", err)
	}
	defer shredAll(versions)

	logger.Info("versions retrieved",
		slog.String("name", id.Name()),
		slog.Int("count", len(versions)),
		slog.Bool("active_only", activeOnly),
	)
	return writeEntries(out, versions, format)
}
