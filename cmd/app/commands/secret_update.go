package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
)

// RunSecretUpdateMetadata replaces a version's state, comment and activation
// window. The value itself is immutable; add a version to change it.
func RunSecretUpdateMetadata(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	name string,
	version uint64,
	state, comment, notBefore, notAfter, actor, format string,
) error {
	id, err := domain.NewSecretIdentifier(name)
	if err != nil {
		return fmt.Errorf("invalid secret name: %w", err)
	}
	if version == 0 {
		return fmt.Errorf("version must be set")
	}

	update := secretsUsecase.MetadataUpdate{
		Comment: comment,
		Actor:   actor,
	}
	update.State, err = parseState(state)
	if err != nil {
		return err
	}
	if update.State == "" {
		return fmt.Errorf("state must be set, want ENABLED, DISABLED or COMPROMISED")
	}
	update.NotBefore, err = parseTimeFlag("not-before", notBefore)
	if err != nil {
		return err
	}
	update.NotAfter, err = parseTimeFlag("not-after", notAfter)
	if err != nil {
		return err
	}

	entry, err := manager.UpdateMetadata(ctx, id, version, update)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	defer entry.Shred()

	logger.Info("metadata updated",
		slog.String("name", id.Name()),
		slog.Uint64("version", version),
		slog.String("state", string(update.State)),
	)
	return writeEntry(out, entry, format)
}
