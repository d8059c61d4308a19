// Package app provides the dependency injection container assembling the
// group and secret components from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/aws"
	loadconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/allisson/strongroom/internal/config"
	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
	cryptoService "github.com/allisson/strongroom/internal/crypto/service"
	"github.com/allisson/strongroom/internal/database"
	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
	"github.com/allisson/strongroom/internal/metrics"
	"github.com/allisson/strongroom/internal/policy"
	"github.com/allisson/strongroom/internal/secrets/domain"
	secretsUsecase "github.com/allisson/strongroom/internal/secrets/usecase"
	"github.com/allisson/strongroom/internal/storage"
)

// Container holds all application dependencies and provides methods to access
// them. Components are created lazily on first access.
type Container struct {
	config *config.Config

	logger          *slog.Logger
	awsConfig       awsconfig.Config
	db              *sql.DB
	store           storage.Store
	encryptor       cryptoService.Encryptor
	envelope        *cryptoService.Envelope
	policies        groupUsecase.PolicyService
	metricsProvider *metrics.Provider
	metricsServer   *http.Server
	business        metrics.BusinessMetrics
	groupManager    groupUsecase.GroupManager
	secretManager   secretsUsecase.SecretManager

	mu                sync.Mutex
	loggerInit        sync.Once
	awsConfigInit     sync.Once
	dbInit            sync.Once
	storeInit         sync.Once
	encryptorInit     sync.Once
	envelopeInit      sync.Once
	policiesInit      sync.Once
	metricsInit       sync.Once
	groupManagerInit  sync.Once
	secretManagerInit sync.Once
	initErrors        map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Group returns the configured group identity.
func (c *Container) Group() (domain.GroupIdentifier, error) {
	return domain.NewGroupIdentifier(c.config.Region, c.config.GroupName)
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// AWSConfig returns the shared AWS client configuration.
func (c *Container) AWSConfig() (awsconfig.Config, error) {
	c.awsConfigInit.Do(func() {
		cfg, err := loadconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			c.initErrors["awsConfig"] = fmt.Errorf("failed to load aws config: %w", err)
			return
		}
		c.awsConfig = cfg
	})
	if err, exists := c.initErrors["awsConfig"]; exists {
		return awsconfig.Config{}, err
	}
	return c.awsConfig, nil
}

// DB returns the database connection for the postgresql backend.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		if err := storage.MigratePostgreSQL(db); err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to migrate database: %w", err)
			return
		}
		c.db = db
	})
	if err, exists := c.initErrors["db"]; exists {
		return nil, err
	}
	return c.db, nil
}

// Store returns the configured backend store.
func (c *Container) Store() (storage.Store, error) {
	c.storeInit.Do(func() {
		store, err := c.initStore()
		if err != nil {
			c.initErrors["store"] = err
			return
		}
		c.store = store
	})
	if err, exists := c.initErrors["store"]; exists {
		return nil, err
	}
	return c.store, nil
}

// Encryptor returns the configured envelope encryption service.
func (c *Container) Encryptor() (cryptoService.Encryptor, error) {
	c.encryptorInit.Do(func() {
		encryptor, err := c.initEncryptor()
		if err != nil {
			c.initErrors["encryptor"] = err
			return
		}
		c.encryptor = encryptor
	})
	if err, exists := c.initErrors["encryptor"]; exists {
		return nil, err
	}
	return c.encryptor, nil
}

// Envelope returns the integrity-checking envelope over the encryptor.
func (c *Container) Envelope() (*cryptoService.Envelope, error) {
	c.envelopeInit.Do(func() {
		encryptor, err := c.Encryptor()
		if err != nil {
			c.initErrors["envelope"] = err
			return
		}
		envelope, err := cryptoService.NewEnvelope(encryptor, cryptoDomain.Strength(c.config.EncryptionStrength))
		if err != nil {
			c.initErrors["envelope"] = fmt.Errorf("failed to create envelope: %w", err)
			return
		}
		c.envelope = envelope
	})
	if err, exists := c.initErrors["envelope"]; exists {
		return nil, err
	}
	return c.envelope, nil
}

// PolicyService returns the group's access-policy surface.
func (c *Container) PolicyService() (groupUsecase.PolicyService, error) {
	c.policiesInit.Do(func() {
		policies, err := c.initPolicyService()
		if err != nil {
			c.initErrors["policies"] = err
			return
		}
		c.policies = policies
	})
	if err, exists := c.initErrors["policies"]; exists {
		return nil, err
	}
	return c.policies, nil
}

// BusinessMetrics returns the metrics recorder for the usecase decorators.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.metricsInit.Do(func() {
		if !c.config.MetricsEnabled {
			c.business = metrics.NewNoOpBusinessMetrics()
			return
		}
		provider, err := metrics.NewProvider()
		if err != nil {
			c.initErrors["metrics"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		business, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.metricsProvider = provider
		c.business = business
		c.metricsServer = c.startMetricsServer(provider)
	})
	if err, exists := c.initErrors["metrics"]; exists {
		return nil, err
	}
	return c.business, nil
}

// GroupManager returns the group orchestrator.
func (c *Container) GroupManager() (groupUsecase.GroupManager, error) {
	c.groupManagerInit.Do(func() {
		manager, err := c.initGroupManager()
		if err != nil {
			c.initErrors["groupManager"] = err
			return
		}
		c.groupManager = manager
	})
	if err, exists := c.initErrors["groupManager"]; exists {
		return nil, err
	}
	return c.groupManager, nil
}

// SecretManager returns the secret manager. It operates on the group
// manager's current store so a migration is picked up within the process.
func (c *Container) SecretManager() (secretsUsecase.SecretManager, error) {
	c.secretManagerInit.Do(func() {
		manager, err := c.initSecretManager()
		if err != nil {
			c.initErrors["secretManager"] = err
			return
		}
		c.secretManager = manager
	})
	if err, exists := c.initErrors["secretManager"]; exists {
		return nil, err
	}
	return c.secretManager, nil
}

// Shutdown performs cleanup of all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("store close: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}
	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}
	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// startMetricsServer serves the scrape endpoint on the configured port.
func (c *Container) startMetricsServer(provider *metrics.Provider) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.config.MetricsPort),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Logger().Error("metrics server error", slog.Any("error", err))
		}
	}()
	return server
}

// initStore creates the backend store selected by the configuration.
func (c *Container) initStore() (storage.Store, error) {
	group, err := c.Group()
	if err != nil {
		return nil, err
	}

	switch storage.Kind(c.config.StorageBackend) {
	case storage.KindMemory:
		return storage.NewMemoryStore(group), nil
	case storage.KindFile:
		if c.config.FileStorePassphrase == "" {
			return nil, fmt.Errorf("STRONGROOM_FILE_STORE_PASSPHRASE is required for the file backend")
		}
		return storage.NewFileStore(c.config.FileStorePath, c.config.FileStorePassphrase), nil
	case storage.KindPostgreSQL:
		db, err := c.DB()
		if err != nil {
			return nil, err
		}
		return storage.NewPostgreSQLStore(db, group), nil
	case storage.KindDynamoDB:
		awsCfg, err := c.AWSConfig()
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return storage.NewDynamoDBStore(client, group, c.config.DynamoDBScanRatePerSec), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", c.config.StorageBackend)
	}
}

// initEncryptor creates the envelope encryption service selected by the
// configuration.
func (c *Container) initEncryptor() (cryptoService.Encryptor, error) {
	group, err := c.Group()
	if err != nil {
		return nil, err
	}

	switch c.config.EncryptionProvider {
	case "local":
		if c.config.LocalPassphrase == "" {
			return nil, fmt.Errorf("STRONGROOM_LOCAL_PASSPHRASE is required for the local provider")
		}
		return cryptoService.NewLocalEncryptor(c.config.LocalPassphrase, []byte(c.config.LocalKeySalt))
	case "kms":
		awsCfg, err := c.AWSConfig()
		if err != nil {
			return nil, err
		}
		client := kms.NewFromConfig(awsCfg)
		return cryptoService.NewKMSEncryptor(client, group, cryptoDomain.Strength(c.config.EncryptionStrength))
	default:
		return nil, fmt.Errorf("unsupported encryption provider: %s", c.config.EncryptionProvider)
	}
}

// initPolicyService creates the access-policy surface. Deployments on the kms
// provider get the IAM-backed manager; local deployments have no identity
// service and get the no-op manager.
func (c *Container) initPolicyService() (groupUsecase.PolicyService, error) {
	if c.config.EncryptionProvider != "kms" {
		return policy.NewNoOpManager(), nil
	}

	group, err := c.Group()
	if err != nil {
		return nil, err
	}
	awsCfg, err := c.AWSConfig()
	if err != nil {
		return nil, err
	}
	return policy.NewManager(iam.NewFromConfig(awsCfg), sts.NewFromConfig(awsCfg), group), nil
}

// initGroupManager assembles the group orchestrator with metrics recording.
func (c *Container) initGroupManager() (groupUsecase.GroupManager, error) {
	group, err := c.Group()
	if err != nil {
		return nil, err
	}
	store, err := c.Store()
	if err != nil {
		return nil, err
	}
	encryptor, err := c.Encryptor()
	if err != nil {
		return nil, err
	}
	policies, err := c.PolicyService()
	if err != nil {
		return nil, err
	}
	business, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}

	manager := groupUsecase.NewGroupManager(group, store, encryptor, policies)
	return groupUsecase.NewGroupManagerWithMetrics(manager, business), nil
}

// initSecretManager assembles the secret manager with metrics recording.
func (c *Container) initSecretManager() (secretsUsecase.SecretManager, error) {
	group, err := c.Group()
	if err != nil {
		return nil, err
	}
	groupManager, err := c.GroupManager()
	if err != nil {
		return nil, err
	}
	envelope, err := c.Envelope()
	if err != nil {
		return nil, err
	}
	business, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}

	manager := secretsUsecase.NewSecretManager(group, groupManager.Store, envelope)
	return secretsUsecase.NewSecretManagerWithMetrics(manager, business), nil
}
