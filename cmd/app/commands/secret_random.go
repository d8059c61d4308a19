package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
)

// RunSecretRandom generates secure random bytes from the encryption service
// and prints them base64 encoded, for use as a generated secret value.
func RunSecretRandom(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	length int,
	format string,
) error {
	raw, err := manager.GenerateRandomValue(ctx, length)
	if err != nil {
		return fmt.Errorf("failed to generate random value: %w", err)
	}
	defer domain.Zero(raw)

	logger.Info("random value generated", slog.Int("length", length))

	encoded := base64.StdEncoding.EncodeToString(raw)
	if format == "json" {
		return printJSON(out, map[string]any{"value": encoded, "length": length})
	}
	fmt.Fprintln(out, encoded)
	return nil
}
