package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
)

// RunSecretGet retrieves and decrypts one version of a secret. Version 0 means
// the latest; anyState lifts the active-only filter.
func RunSecretGet(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	name string,
	version uint64,
	anyState bool,
	format string,
) error {
	id, err := domain.NewSecretIdentifier(name)
	if err != nil {
		return fmt.Errorf("invalid secret name: %w", err)
	}

	entry, err := getEntry(ctx, manager, id, version, anyState)
	if err != nil {
		return fmt.Errorf("failed to get secret: %w", err)
	}
	defer entry.Shred()

	logger.Info("secret retrieved",
		slog.String("name", id.Name()),
		slog.Uint64("version", entry.Version),
	)
	return writeEntry(out, entry, format)
}

func getEntry(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	id domain.SecretIdentifier,
	version uint64,
	anyState bool,
) (*domain.SecretEntry, error) {
	switch {
	case version == 0 && anyState:
		return manager.GetLatest(ctx, id)
	case version == 0:
		return manager.GetLatestActive(ctx, id)
	case !anyState:
		return manager.GetActive(ctx, id, version)
	}

	// A specific version regardless of state.
	entries, err := manager.GetAllVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	var found *domain.SecretEntry
	for _, entry := range entries {
		if entry.Version == version {
			found = entry
			continue
		}
		entry.Shred()
	}
	if found == nil {
		return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "version %d", version)
	}
	return found, nil
}
