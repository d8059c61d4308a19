package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
)

// buildSecretInput assembles a version's material from the raw flag values.
// Exactly one of value (UTF-8 text) and valueBase64 (binary) must be set.
func buildSecretInput(
	value, valueBase64, userDataBase64, comment, notBefore, notAfter, state, actor string,
) (secretsUsecase.SecretInput, error) {
	var input secretsUsecase.SecretInput

	switch {
	case value != "" && valueBase64 != "":
		return input, fmt.Errorf("value and value-base64 are mutually exclusive")
	case value != "":
		input.Value = domain.UTF8Value(value)
	case valueBase64 != "":
		raw, err := parseBase64Flag("value-base64", valueBase64)
		if err != nil {
			return input, err
		}
		input.Value = domain.BinaryValue(raw)
	default:
		return input, fmt.Errorf("a secret value is required, set value or value-base64")
	}

	userData, err := parseBase64Flag("user-data", userDataBase64)
	if err != nil {
		return input, err
	}
	input.UserData = userData

	input.NotBefore, err = parseTimeFlag("not-before", notBefore)
	if err != nil {
		return input, err
	}
	input.NotAfter, err = parseTimeFlag("not-after", notAfter)
	if err != nil {
		return input, err
	}

	input.State, err = parseState(state)
	if err != nil {
		return input, err
	}

	input.Comment = comment
	input.Actor = actor
	return input, nil
}

// RunSecretCreate creates a secret with version 1.
func RunSecretCreate(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	name, value, valueBase64, userDataBase64, comment, notBefore, notAfter, state, actor, format string,
) error {
	id, err := domain.NewSecretIdentifier(name)
	if err != nil {
		return fmt.Errorf("invalid secret name: %w", err)
	}
	input, err := buildSecretInput(value, valueBase64, userDataBase64, comment, notBefore, notAfter, state, actor)
	if err != nil {
		return err
	}

	entry, err := manager.CreateSecret(ctx, id, input)
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	defer entry.Shred()

	logger.Info("secret created",
		slog.String("name", id.Name()),
		slog.Uint64("version", entry.Version),
	)
	return writeEntry(out, entry, format)
}

// RunSecretAddVersion appends a new version to an existing secret.
func RunSecretAddVersion(
	ctx context.Context,
	manager secretsUsecase.SecretManager,
	logger *slog.Logger,
	out io.Writer,
	name, value, valueBase64, userDataBase64, comment, notBefore, notAfter, state, actor, format string,
) error {
	id, err := domain.NewSecretIdentifier(name)
	if err != nil {
		return fmt.Errorf("invalid secret name: %w", err)
	}
	input, err := buildSecretInput(value, valueBase64, userDataBase64, comment, notBefore, notAfter, state, actor)
	if err != nil {
		return err
	}

	entry, err := manager.AddVersion(ctx, id, input)
	if err != nil {
		return fmt.Errorf("failed to add version: %w", err)
	}
	defer entry.Shred()

	logger.Info("version added",
		slog.String("name", id.Name()),
		slog.Uint64("version", entry.Version),
	)
	return writeEntry(out, entry, format)
}
