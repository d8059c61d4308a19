package usecase

import (
	"context"
	"time"

	"github.com/allisson/strongroom/internal/metrics"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// secretManagerWithMetrics decorates SecretManager with metrics recording.
type secretManagerWithMetrics struct {
	next    SecretManager
	metrics metrics.BusinessMetrics
}

// NewSecretManagerWithMetrics wraps a SecretManager with metrics recording.
func NewSecretManagerWithMetrics(manager SecretManager, m metrics.BusinessMetrics) SecretManager {
	return &secretManagerWithMetrics{next: manager, metrics: m}
}

// record reports one operation's status and duration.
func (s *secretManagerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordOperation(ctx, "secrets", operation, status)
	s.metrics.RecordDuration(ctx, "secrets", operation, time.Since(start), status)
}

func (s *secretManagerWithMetrics) CreateSecret(
	ctx context.Context,
	id domain.SecretIdentifier,
	input SecretInput,
) (*domain.SecretEntry, error) {
	start := time.Now()
	entry, err := s.next.CreateSecret(ctx, id, input)
	s.record(ctx, "secret_create", start, err)
	return entry, err
}

func (s *secretManagerWithMetrics) AddVersion(
	ctx context.Context,
	id domain.SecretIdentifier,
	input SecretInput,
) (*domain.SecretEntry, error) {
	start := time.Now()
	entry, err := s.next.AddVersion(ctx, id, input)
	s.record(ctx, "secret_add_version", start, err)
	return entry, err
}

func (s *secretManagerWithMetrics) GetLatest(ctx context.Context, id domain.SecretIdentifier) (*domain.SecretEntry, error) {
	start := time.Now()
	entry, err := s.next.GetLatest(ctx, id)
	s.record(ctx, "secret_get_latest", start, err)
	return entry, err
}

func (s *secretManagerWithMetrics) GetLatestActive(ctx context.Context, id domain.SecretIdentifier) (*domain.SecretEntry, error) {
	start := time.Now()
	entry, err := s.next.GetLatestActive(ctx, id)
	s.record(ctx, "secret_get_latest_active", start, err)
	return entry, err
}

func (s *secretManagerWithMetrics) GetActive(
	ctx context.Context,
	id domain.SecretIdentifier,
	version uint64,
) (*domain.SecretEntry, error) {
	start := time.Now()
	entry, err := s.next.GetActive(ctx, id, version)
	s.record(ctx, "secret_get_active", start, err)
	return entry, err
}

func (s *secretManagerWithMetrics) GetAllActiveVersions(
	ctx context.Context,
	id domain.SecretIdentifier,
) ([]*domain.SecretEntry, error) {
	start := time.Now()
	entries, err := s.next.GetAllActiveVersions(ctx, id)
	s.record(ctx, "secret_get_all_active_versions", start, err)
	return entries, err
}

func (s *secretManagerWithMetrics) GetAllVersions(
	ctx context.Context,
	id domain.SecretIdentifier,
) ([]*domain.SecretEntry, error) {
	start := time.Now()
	entries, err := s.next.GetAllVersions(ctx, id)
	s.record(ctx, "secret_get_all_versions", start, err)
	return entries, err
}

func (s *secretManagerWithMetrics) UpdateMetadata(
	ctx context.Context,
	id domain.SecretIdentifier,
	version uint64,
	update MetadataUpdate,
) (*domain.SecretEntry, error) {
	start := time.Now()
	entry, err := s.next.UpdateMetadata(ctx, id, version, update)
	s.record(ctx, "secret_update_metadata", start, err)
	return entry, err
}

func (s *secretManagerWithMetrics) DeleteSecret(ctx context.Context, id domain.SecretIdentifier) (int, error) {
	start := time.Now()
	count, err := s.next.DeleteSecret(ctx, id)
	s.record(ctx, "secret_delete", start, err)
	return count, err
}

func (s *secretManagerWithMetrics) ListIdentifiers(ctx context.Context) ([]domain.SecretIdentifier, error) {
	start := time.Now()
	ids, err := s.next.ListIdentifiers(ctx)
	s.record(ctx, "secret_list_identifiers", start, err)
	return ids, err
}

func (s *secretManagerWithMetrics) GenerateRandomValue(ctx context.Context, n int) ([]byte, error) {
	start := time.Now()
	value, err := s.next.GenerateRandomValue(ctx, n)
	s.record(ctx, "secret_generate_random_value", start, err)
	return value, err
}
