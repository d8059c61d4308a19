package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/strongroom/internal/config"
	"github.com/allisson/strongroom/internal/storage"
)

func localConfig() *config.Config {
	return &config.Config{
		Region:             "eu-west-1",
		GroupName:          "payments",
		StorageBackend:     "memory",
		EncryptionProvider: "local",
		EncryptionStrength: "AES_256",
		LocalPassphrase:    "correct horse battery staple",
		LocalKeySalt:       "salt",
		LogLevel:           "info",
		MetricsNamespace:   "strongroom",
	}
}

func TestContainerAssembly(t *testing.T) {
	container := NewContainer(localConfig())

	group, err := container.Group()
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1:payments", group.String())

	assert.NotNil(t, container.Logger())
	assert.Same(t, container.Logger(), container.Logger())

	store, err := container.Store()
	require.NoError(t, err)
	assert.Equal(t, storage.KindMemory, store.Kind())

	groupManager, err := container.GroupManager()
	require.NoError(t, err)
	assert.NotNil(t, groupManager)

	secretManager, err := container.SecretManager()
	require.NoError(t, err)
	assert.NotNil(t, secretManager)

	business, err := container.BusinessMetrics()
	require.NoError(t, err)
	assert.NotNil(t, business)

	assert.NoError(t, container.Shutdown(context.Background()))
}

func TestContainerMetricsEnabled(t *testing.T) {
	cfg := localConfig()
	cfg.MetricsEnabled = true
	container := NewContainer(cfg)

	business, err := container.BusinessMetrics()
	require.NoError(t, err)
	assert.NotNil(t, business)

	assert.NoError(t, container.Shutdown(context.Background()))
}

func TestContainerConfigurationErrors(t *testing.T) {
	t.Run("unsupported storage backend", func(t *testing.T) {
		cfg := localConfig()
		cfg.StorageBackend = "tape"
		container := NewContainer(cfg)

		_, err := container.Store()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported storage backend")
	})

	t.Run("file backend requires a passphrase", func(t *testing.T) {
		cfg := localConfig()
		cfg.StorageBackend = "file"
		container := NewContainer(cfg)

		_, err := container.Store()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STRONGROOM_FILE_STORE_PASSPHRASE")
	})

	t.Run("local provider requires a passphrase", func(t *testing.T) {
		cfg := localConfig()
		cfg.LocalPassphrase = ""
		container := NewContainer(cfg)

		_, err := container.Encryptor()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STRONGROOM_LOCAL_PASSPHRASE")
	})

	t.Run("initialization error is sticky", func(t *testing.T) {
		cfg := localConfig()
		cfg.EncryptionProvider = "vault"
		container := NewContainer(cfg)

		_, err := container.Encryptor()
		require.Error(t, err)
		_, again := container.Encryptor()
		assert.Equal(t, err, again)
	})
}
