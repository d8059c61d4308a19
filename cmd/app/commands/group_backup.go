package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
	"github.com/allisson/strongroom/internal/storage"
)

// openBackupFile builds the encrypted file store used as the backup medium.
func openBackupFile(path, passphrase string) (storage.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("backup file path must not be empty")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("backup file passphrase must not be empty")
	}
	return storage.NewFileStore(path, passphrase), nil
}

// RunGroupBackup copies every entry of the group's store into an encrypted
// backup file. A pre-existing backup file fails the command unless overwrite
// is set.
func RunGroupBackup(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	path, passphrase string,
	overwrite bool,
) error {
	target, err := openBackupFile(path, passphrase)
	if err != nil {
		return err
	}
	defer func() {
		if err := target.Close(); err != nil {
			logger.Error("failed to close backup file", slog.Any("error", err))
		}
	}()

	logger.Info("backing up group",
		slog.String("path", path),
		slog.Bool("overwrite", overwrite),
	)

	count, err := manager.Backup(ctx, target, overwrite)
	if err != nil {
		return fmt.Errorf("failed to backup group: %w", err)
	}

	logger.Info("backup completed", slog.Int("entries", count))
	fmt.Fprintf(out, "Backed up %d entry(ies) to %s\n", count, path)
	return nil
}

// RunGroupRestore copies every entry of an encrypted backup file into the
// group's store. A non-empty group store fails the command unless overwrite is
// set, in which case the store is destroyed and recreated first.
func RunGroupRestore(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	path, passphrase string,
	overwrite bool,
) error {
	source, err := openBackupFile(path, passphrase)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Error("failed to close backup file", slog.Any("error", err))
		}
	}()

	logger.Info("restoring group",
		slog.String("path", path),
		slog.Bool("overwrite", overwrite),
	)

	count, err := manager.Restore(ctx, source, overwrite)
	if err != nil {
		return fmt.Errorf("failed to restore group: %w", err)
	}

	logger.Info("restore completed", slog.Int("entries", count))
	fmt.Fprintf(out, "Restored %d entry(ies) from %s\n", count, path)
	return nil
}
