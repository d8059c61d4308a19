package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/allisson/strongroom/internal/app"
	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
	"github.com/allisson/strongroom/internal/storage"
)

// BuildMigrationTarget constructs the store a migration moves the group's
// entries into. The file path and passphrase are only used by the file
// backend; postgresql and dynamodb targets reuse the container's configured
// connections.
func BuildMigrationTarget(
	container *app.Container,
	backend, filePath, filePassphrase string,
) (storage.Store, error) {
	group, err := container.Group()
	if err != nil {
		return nil, err
	}
	cfg := container.Config()

	switch storage.Kind(backend) {
	case storage.KindMemory:
		return storage.NewMemoryStore(group), nil
	case storage.KindFile:
		if filePath == "" {
			filePath = cfg.FileStorePath
		}
		if filePassphrase == "" {
			filePassphrase = cfg.FileStorePassphrase
		}
		return openBackupFile(filePath, filePassphrase)
	case storage.KindPostgreSQL:
		db, err := container.DB()
		if err != nil {
			return nil, err
		}
		return storage.NewPostgreSQLStore(db, group), nil
	case storage.KindDynamoDB:
		awsCfg, err := container.AWSConfig()
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return storage.NewDynamoDBStore(client, group, cfg.DynamoDBScanRatePerSec), nil
	default:
		return nil, fmt.Errorf("unsupported migration target backend: %s", backend)
	}
}

// RunGroupMigrate moves the group's entries into a newly created store of a
// different backend kind and destroys the old one. The target keeps serving
// the group after the move.
func RunGroupMigrate(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	target storage.Store,
	format string,
) error {
	logger.Info("migrating group",
		slog.String("from", string(manager.Store().Kind())),
		slog.String("to", string(target.Kind())),
	)

	info, err := manager.Migrate(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to migrate group: %w", err)
	}

	logger.Info("migration completed", slog.String("store_kind", string(info.StoreKind)))

	if format != "json" {
		fmt.Fprintf(out, "Group migrated to the %s backend\n", info.StoreKind)
	}
	return writeGroupInfo(out, info, format)
}
