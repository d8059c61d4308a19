package usecase

import (
	"context"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
	cryptoService "github.com/allisson/strongroom/internal/crypto/service"
	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
	"github.com/allisson/strongroom/internal/storage"
)

// secretManager implements SecretManager over one group's store and envelope.
// The store is resolved per operation, so a backend migration completed by
// the group manager is picked up by subsequent calls.
type secretManager struct {
	group    domain.GroupIdentifier
	store    func() storage.Store
	envelope *cryptoService.Envelope
	now      func() time.Time

	keyOnce sync.Once
	keyARN  string
	keyErr  error
}

// NewSecretManager creates the secret manager for one group. store resolves
// the group's current backend store on each operation.
func NewSecretManager(
	group domain.GroupIdentifier,
	store func() storage.Store,
	envelope *cryptoService.Envelope,
) SecretManager {
	return &secretManager{
		group:    group,
		store:    store,
		envelope: envelope,
		now:      time.Now,
	}
}

// CreateSecret creates a secret with version 1.
func (s *secretManager) CreateSecret(
	ctx context.Context,
	id domain.SecretIdentifier,
	input SecretInput,
) (*domain.SecretEntry, error) {
	state, err := initialState(input.State)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(input.NotBefore, input.NotAfter); err != nil {
		return nil, err
	}

	existing, err := s.store().Stream(ctx, s.versionsFilter(id, nil), storage.QueryOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperrors.Wrapf(apperrors.ErrAlreadyExists, "secret %s", id)
	}

	now := s.now().UTC()
	payload := &domain.EncryptionPayload{
		Value:      input.Value,
		UserData:   input.UserData,
		Created:    now,
		Modified:   now,
		CreatedBy:  input.Actor,
		ModifiedBy: input.Actor,
		Comment:    input.Comment,
	}
	return s.sealAndCreate(ctx, id, 1, state, input.NotBefore, input.NotAfter, payload)
}

// AddVersion appends a version numbered current max + 1. The creation
// metadata of the secret is carried over from the latest version.
func (s *secretManager) AddVersion(
	ctx context.Context,
	id domain.SecretIdentifier,
	input SecretInput,
) (*domain.SecretEntry, error) {
	state, err := initialState(input.State)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(input.NotBefore, input.NotAfter); err != nil {
		return nil, err
	}

	latest, err := s.latestRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	previous, err := s.open(ctx, latest)
	if err != nil {
		return nil, err
	}
	defer previous.Shred()

	now := s.now().UTC()
	payload := &domain.EncryptionPayload{
		Value:      input.Value,
		UserData:   input.UserData,
		Created:    previous.Created,
		Modified:   now,
		CreatedBy:  previous.CreatedBy,
		ModifiedBy: input.Actor,
		Comment:    input.Comment,
	}
	return s.sealAndCreate(ctx, id, latest.Version+1, state, input.NotBefore, input.NotAfter, payload)
}

// GetLatest returns the highest version regardless of state or window.
func (s *secretManager) GetLatest(ctx context.Context, id domain.SecretIdentifier) (*domain.SecretEntry, error) {
	return s.one(ctx, s.versionsFilter(id, nil))
}

// GetLatestActive returns the highest currently active version.
func (s *secretManager) GetLatestActive(ctx context.Context, id domain.SecretIdentifier) (*domain.SecretEntry, error) {
	filter, err := s.activeFilter(id, nil)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, filter)
}

// GetActive returns the given version if it is currently active.
func (s *secretManager) GetActive(
	ctx context.Context,
	id domain.SecretIdentifier,
	version uint64,
) (*domain.SecretEntry, error) {
	filter, err := s.activeFilter(id, &version)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, filter)
}

// GetAllActiveVersions returns all currently active versions, newest first.
func (s *secretManager) GetAllActiveVersions(
	ctx context.Context,
	id domain.SecretIdentifier,
) ([]*domain.SecretEntry, error) {
	filter, err := s.activeFilter(id, nil)
	if err != nil {
		return nil, err
	}
	return s.all(ctx, filter)
}

// GetAllVersions returns all versions regardless of state, newest first.
func (s *secretManager) GetAllVersions(
	ctx context.Context,
	id domain.SecretIdentifier,
) ([]*domain.SecretEntry, error) {
	return s.all(ctx, s.versionsFilter(id, nil))
}

// UpdateMetadata replaces a version's state, comment and window. The stored
// payload digest guards against concurrent modification; the entry is
// re-sealed because the state and window are bound into the encryption
// context.
func (s *secretManager) UpdateMetadata(
	ctx context.Context,
	id domain.SecretIdentifier,
	version uint64,
	update MetadataUpdate,
) (*domain.SecretEntry, error) {
	if _, err := update.State.Digit(); err != nil {
		return nil, err
	}
	if err := validateWindow(update.NotBefore, update.NotAfter); err != nil {
		return nil, err
	}

	store := s.store()
	entries, err := store.Stream(ctx, s.versionsFilter(id, &version), storage.QueryOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "secret %s v%d", id, version)
	}
	current := entries[0]

	payload, err := s.openPayload(ctx, current)
	if err != nil {
		return nil, err
	}

	payload.Modified = s.now().UTC()
	payload.ModifiedBy = update.Actor
	payload.Comment = update.Comment

	updated := &domain.RawSecretEntry{
		Identifier: id,
		Version:    version,
		State:      update.State,
		NotBefore:  cloneTime(update.NotBefore),
		NotAfter:   cloneTime(update.NotAfter),
	}
	if err := s.seal(ctx, updated, payload); err != nil {
		payload.Shred()
		return nil, err
	}
	if err := store.UpdateEntry(ctx, updated, current.Digest()); err != nil {
		payload.Shred()
		return nil, err
	}
	return compose(updated, payload), nil
}

// DeleteSecret removes all versions of a secret.
func (s *secretManager) DeleteSecret(ctx context.Context, id domain.SecretIdentifier) (int, error) {
	count, err := s.store().DeleteEntries(ctx, id)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, apperrors.Wrapf(apperrors.ErrDoesNotExist, "secret %s", id)
	}
	return count, nil
}

// ListIdentifiers returns the distinct secret identifiers, sorted.
func (s *secretManager) ListIdentifiers(ctx context.Context) ([]domain.SecretIdentifier, error) {
	return s.store().KeySet(ctx)
}

// GenerateRandomValue returns n secure random bytes from the encryption
// service.
func (s *secretManager) GenerateRandomValue(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 || n > domain.MaxValueLength {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"random value length %d outside (0, %d]", n, domain.MaxValueLength)
	}
	return s.envelope.GenerateRandom(ctx, n)
}

// sealAndCreate seals a payload into a new entry and inserts it.
func (s *secretManager) sealAndCreate(
	ctx context.Context,
	id domain.SecretIdentifier,
	version uint64,
	state domain.State,
	notBefore, notAfter *time.Time,
	payload *domain.EncryptionPayload,
) (*domain.SecretEntry, error) {
	entry := &domain.RawSecretEntry{
		Identifier: id,
		Version:    version,
		State:      state,
		NotBefore:  cloneTime(notBefore),
		NotAfter:   cloneTime(notAfter),
	}
	if err := s.seal(ctx, entry, payload); err != nil {
		return nil, err
	}
	if err := s.store().CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return compose(entry, payload), nil
}

// seal encodes and encrypts a payload into the entry, binding the entry's
// identity and metadata as the encryption context.
func (s *secretManager) seal(ctx context.Context, entry *domain.RawSecretEntry, payload *domain.EncryptionPayload) error {
	ec, err := cryptoDomain.NewEncryptionContext(s.group, entry)
	if err != nil {
		return err
	}

	plaintext, err := payload.Encode(s.envelope.RandomSource(ctx))
	if err != nil {
		return err
	}
	defer domain.Zero(plaintext)

	ciphertext, err := s.envelope.Seal(ctx, plaintext, ec)
	if err != nil {
		return err
	}
	entry.EncryptedPayload = ciphertext
	return nil
}

// open decrypts an entry into its caller-facing composite.
func (s *secretManager) open(ctx context.Context, entry *domain.RawSecretEntry) (*domain.SecretEntry, error) {
	payload, err := s.openPayload(ctx, entry)
	if err != nil {
		return nil, err
	}
	return compose(entry, payload), nil
}

// openPayload decrypts and decodes an entry's payload, verifying the
// encryption context and key identity.
func (s *secretManager) openPayload(ctx context.Context, entry *domain.RawSecretEntry) (*domain.EncryptionPayload, error) {
	ec, err := cryptoDomain.NewEncryptionContext(s.group, entry)
	if err != nil {
		return nil, err
	}
	expectedKeyID, err := s.groupKeyARN(ctx)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.envelope.Open(ctx, entry.EncryptedPayload, ec, expectedKeyID)
	if err != nil {
		return nil, err
	}
	defer domain.Zero(plaintext)

	return domain.DecodeEncryptionPayload(plaintext)
}

// groupKeyARN resolves and caches the group key identity.
func (s *secretManager) groupKeyARN(ctx context.Context) (string, error) {
	s.keyOnce.Do(func() {
		s.keyARN, s.keyErr = s.envelope.KeyARN(ctx)
	})
	return s.keyARN, s.keyErr
}

// latestRaw fetches the highest stored version without decrypting it.
func (s *secretManager) latestRaw(ctx context.Context, id domain.SecretIdentifier) (*domain.RawSecretEntry, error) {
	entries, err := s.store().Stream(ctx, s.versionsFilter(id, nil), storage.QueryOptions{Reverse: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "secret %s", id)
	}
	return entries[0], nil
}

// one streams newest-first and decrypts the first match.
func (s *secretManager) one(ctx context.Context, filter *storage.Filter) (*domain.SecretEntry, error) {
	entries, err := s.store().Stream(ctx, filter, storage.QueryOptions{Reverse: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrDoesNotExist, "no matching secret version")
	}
	return s.open(ctx, entries[0])
}

// all streams newest-first and decrypts every match.
func (s *secretManager) all(ctx context.Context, filter *storage.Filter) ([]*domain.SecretEntry, error) {
	raws, err := s.store().Stream(ctx, filter, storage.QueryOptions{Reverse: true})
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.SecretEntry, 0, len(raws))
	for _, raw := range raws {
		entry, err := s.open(ctx, raw)
		if err != nil {
			for _, opened := range entries {
				opened.Shred()
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// versionsFilter scopes to one secret, optionally to one version.
func (s *secretManager) versionsFilter(id domain.SecretIdentifier, version *uint64) *storage.Filter {
	kc := query.NewKeyCondition(storage.Schema.Name.Equal(query.StringValue(id.Name())))
	if version != nil {
		kc = kc.WithSort(storage.Schema.Version.Equal(query.NumberValue(int64(*version))))
	}
	return &storage.Filter{Key: kc}
}

// activeFilter scopes to the currently active versions of one secret: state
// ENABLED and now inside the [notBefore, notAfter] window where present.
func (s *secretManager) activeFilter(id domain.SecretIdentifier, version *uint64) (*storage.Filter, error) {
	now := s.now().UTC().Unix()
	enabledDigit, err := domain.StateEnabled.Digit()
	if err != nil {
		return nil, err
	}

	started, err := query.Where(storage.Schema.NotBefore.NotExists()).
		Or(storage.Schema.NotBefore.LessOrEqual(query.NumberValue(now))).
		Parse()
	if err != nil {
		return nil, err
	}
	notEnded, err := query.Where(storage.Schema.NotAfter.NotExists()).
		Or(storage.Schema.NotAfter.GreaterOrEqual(query.NumberValue(now))).
		Parse()
	if err != nil {
		return nil, err
	}
	active, err := query.Where(storage.Schema.State.Equal(query.StringValue(string(enabledDigit)))).
		And(started).
		And(notEnded).
		Parse()
	if err != nil {
		return nil, err
	}

	filter := s.versionsFilter(id, version)
	filter.Attr = active
	return filter, nil
}

// compose merges a decrypted payload with its entry metadata.
func compose(entry *domain.RawSecretEntry, payload *domain.EncryptionPayload) *domain.SecretEntry {
	return &domain.SecretEntry{
		Identifier: entry.Identifier,
		Version:    entry.Version,
		State:      entry.State,
		NotBefore:  cloneTime(entry.NotBefore),
		NotAfter:   cloneTime(entry.NotAfter),
		Value:      payload.Value,
		UserData:   payload.UserData,
		Created:    payload.Created,
		Modified:   payload.Modified,
		CreatedBy:  payload.CreatedBy,
		ModifiedBy: payload.ModifiedBy,
		Comment:    payload.Comment,
	}
}

// initialState resolves the state of a new version, defaulting to ENABLED.
func initialState(s domain.State) (domain.State, error) {
	if s == "" {
		return domain.StateEnabled, nil
	}
	if _, err := s.Digit(); err != nil {
		return "", err
	}
	return s, nil
}

// validateWindow rejects an inverted activation window.
func validateWindow(notBefore, notAfter *time.Time) error {
	if notBefore != nil && notAfter != nil && notAfter.Before(*notBefore) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "activation window ends before it starts")
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
