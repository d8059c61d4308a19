package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/secrets"
	"gocloud.dev/secrets/localsecrets"
	"golang.org/x/crypto/scrypt"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// File store key derivation parameters.
const (
	fileSaltSize   = 16
	fileKeySize    = 32
	fileScryptN    = 1 << 15
	fileScryptR    = 8
	fileScryptP    = 1
	fileMode       = 0o600
	fileVersionTag = 1
)

// fileEntry is the serialized form of one entry inside the store document.
type fileEntry struct {
	Name      string `json:"name"`
	Version   uint64 `json:"version"`
	State     string `json:"state"`
	NotBefore *int64 `json:"notBefore,omitempty"`
	NotAfter  *int64 `json:"notAfter,omitempty"`
	Payload   []byte `json:"payload"`
}

// fileDocument is the plaintext content of the store file.
type fileDocument struct {
	Version int         `json:"version"`
	Entries []fileEntry `json:"entries"`
}

// FileStore is a Store holding all of a group's entries in one encrypted
// file. The whole document is sealed with a passphrase-derived key; writes
// go through a temp file and an atomic rename.
type FileStore struct {
	path       string
	passphrase string

	mu sync.Mutex
}

// NewFileStore creates a store over the file at path, sealed with the given
// passphrase.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// Kind implements Store.
func (f *FileStore) Kind() Kind {
	return KindFile
}

// Create implements Store.
func (f *FileStore) Create(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); err == nil {
		return apperrors.Wrapf(apperrors.ErrAlreadyExists, "store file %s", f.path)
	}

	salt := make([]byte, fileSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return apperrors.Wrap(err, "failed to generate salt")
	}
	return f.save(ctx, salt, &fileDocument{Version: fileVersionTag})
}

// Destroy implements Store.
func (f *FileStore) Destroy(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.Wrapf(apperrors.ErrDoesNotExist, "store file %s", f.path)
		}
		return apperrors.Wrap(err, "failed to remove store file")
	}
	return nil
}

// Exists implements Store.
func (f *FileStore) Exists(context.Context) (bool, error) {
	if _, err := os.Stat(f.path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "failed to stat store file")
	}
	return true, nil
}

// ARN implements Store.
func (f *FileStore) ARN(context.Context) (string, error) {
	if _, err := os.Stat(f.path); err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Wrapf(apperrors.ErrDoesNotExist, "store file %s", f.path)
		}
		return "", apperrors.Wrap(err, "failed to stat store file")
	}
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to resolve store path")
	}
	return "file://" + abs, nil
}

// CreateEntry implements Store.
func (f *FileStore) CreateEntry(ctx context.Context, entry *domain.RawSecretEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	salt, doc, err := f.load(ctx)
	if err != nil {
		return err
	}

	for _, existing := range doc.Entries {
		if existing.Name == entry.Identifier.Name() && existing.Version == entry.Version {
			return apperrors.Wrapf(apperrors.ErrAlreadyExists,
				"entry %s v%d", entry.Identifier, entry.Version)
		}
	}

	serialized, err := serializeEntry(entry)
	if err != nil {
		return err
	}
	doc.Entries = append(doc.Entries, serialized)
	return f.save(ctx, salt, doc)
}

// UpdateEntry implements Store.
func (f *FileStore) UpdateEntry(ctx context.Context, entry *domain.RawSecretEntry, expectedDigest []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	salt, doc, err := f.load(ctx)
	if err != nil {
		return err
	}

	for i, existing := range doc.Entries {
		if existing.Name != entry.Identifier.Name() || existing.Version != entry.Version {
			continue
		}
		stored := &domain.RawSecretEntry{EncryptedPayload: existing.Payload}
		if !bytes.Equal(stored.Digest(), expectedDigest) {
			return apperrors.Wrapf(apperrors.ErrConflict,
				"entry %s v%d was modified concurrently", entry.Identifier, entry.Version)
		}
		serialized, err := serializeEntry(entry)
		if err != nil {
			return err
		}
		doc.Entries[i] = serialized
		return f.save(ctx, salt, doc)
	}
	return apperrors.Wrapf(apperrors.ErrDoesNotExist,
		"entry %s v%d", entry.Identifier, entry.Version)
}

// DeleteEntries implements Store.
func (f *FileStore) DeleteEntries(ctx context.Context, id domain.SecretIdentifier) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	salt, doc, err := f.load(ctx)
	if err != nil {
		return 0, err
	}

	kept := doc.Entries[:0]
	removed := 0
	for _, existing := range doc.Entries {
		if existing.Name == id.Name() {
			removed++
			continue
		}
		kept = append(kept, existing)
	}
	if removed == 0 {
		return 0, nil
	}
	doc.Entries = kept
	if err := f.save(ctx, salt, doc); err != nil {
		return 0, err
	}
	return removed, nil
}

// KeySet implements Store.
func (f *FileStore) KeySet(ctx context.Context) ([]domain.SecretIdentifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, doc, err := f.load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, existing := range doc.Entries {
		seen[existing.Name] = struct{}{}
	}

	ids := make([]domain.SecretIdentifier, 0, len(seen))
	for name := range seen {
		id, err := domain.NewSecretIdentifier(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sortIdentifiers(ids)
	return ids, nil
}

// Stream implements Store.
func (f *FileStore) Stream(ctx context.Context, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error) {
	if err := filter.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	_, doc, err := f.load(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*domain.RawSecretEntry
	for _, serialized := range doc.Entries {
		entry, err := deserializeEntry(serialized)
		if err != nil {
			return nil, err
		}
		rec := RecordOf(entry)
		if filter.Key != nil && !filter.Key.Evaluate(rec) {
			continue
		}
		if filter.Attr != nil && !filter.Attr.Evaluate(rec) {
			continue
		}
		matched = append(matched, entry)
	}
	return finalize(matched, filter, opts)
}

// Close implements Store.
func (f *FileStore) Close() error {
	return nil
}

// load reads and opens the store file.
func (f *FileStore) load(ctx context.Context) ([]byte, *fileDocument, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "store file %s", f.path)
		}
		return nil, nil, apperrors.Wrap(err, "failed to read store file")
	}
	if len(raw) < fileSaltSize {
		return nil, nil, apperrors.Wrapf(apperrors.ErrIntegrity, "store file %s is truncated", f.path)
	}

	salt := raw[:fileSaltSize]
	keeper, err := f.keeper(salt)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := keeper.Decrypt(ctx, raw[fileSaltSize:])
	if err != nil {
		return nil, nil, apperrors.Wrapf(apperrors.ErrIntegrity,
			"store file %s cannot be opened: %s", f.path, err)
	}
	defer domain.Zero(plaintext)

	var doc fileDocument
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, nil, apperrors.Wrapf(apperrors.ErrIntegrity,
			"store file %s is malformed", f.path)
	}
	if doc.Version != fileVersionTag {
		return nil, nil, apperrors.Wrapf(apperrors.ErrIntegrity,
			"store file %s has unsupported version %d", f.path, doc.Version)
	}
	return append([]byte(nil), salt...), &doc, nil
}

// save seals the document and writes it through a temp file and rename.
func (f *FileStore) save(ctx context.Context, salt []byte, doc *fileDocument) error {
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode store document")
	}
	defer domain.Zero(plaintext)

	keeper, err := f.keeper(salt)
	if err != nil {
		return err
	}
	ciphertext, err := keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return apperrors.Wrap(err, "failed to encrypt store document")
	}

	raw := make([]byte, 0, len(salt)+len(ciphertext))
	raw = append(raw, salt...)
	raw = append(raw, ciphertext...)

	tmp := f.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, raw, fileMode); err != nil {
		return apperrors.Wrap(err, "failed to write store file")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, "failed to replace store file")
	}
	return nil
}

// keeper derives the document keeper from the passphrase and salt.
func (f *FileStore) keeper(salt []byte) (*secrets.Keeper, error) {
	derived, err := scrypt.Key([]byte(f.passphrase), salt, fileScryptN, fileScryptR, fileScryptP, fileKeySize)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to derive store key")
	}
	defer domain.Zero(derived)

	var key [fileKeySize]byte
	copy(key[:], derived)
	return localsecrets.NewKeeper(key), nil
}

// serializeEntry renders an entry for the store document.
func serializeEntry(entry *domain.RawSecretEntry) (fileEntry, error) {
	digit, err := entry.State.Digit()
	if err != nil {
		return fileEntry{}, err
	}
	serialized := fileEntry{
		Name:    entry.Identifier.Name(),
		Version: entry.Version,
		State:   string(digit),
		Payload: append([]byte(nil), entry.EncryptedPayload...),
	}
	if entry.NotBefore != nil {
		epoch := entry.NotBefore.Unix()
		serialized.NotBefore = &epoch
	}
	if entry.NotAfter != nil {
		epoch := entry.NotAfter.Unix()
		serialized.NotAfter = &epoch
	}
	return serialized, nil
}

// deserializeEntry parses a stored entry.
func deserializeEntry(serialized fileEntry) (*domain.RawSecretEntry, error) {
	id, err := domain.NewSecretIdentifier(serialized.Name)
	if err != nil {
		return nil, err
	}
	if len(serialized.State) != 1 {
		return nil, apperrors.Wrapf(apperrors.ErrIntegrity,
			"entry %s v%d has malformed state", serialized.Name, serialized.Version)
	}
	state, err := domain.StateFromDigit(serialized.State[0])
	if err != nil {
		return nil, err
	}

	entry := &domain.RawSecretEntry{
		Identifier:       id,
		Version:          serialized.Version,
		State:            state,
		EncryptedPayload: append([]byte(nil), serialized.Payload...),
	}
	if serialized.NotBefore != nil {
		t := time.Unix(*serialized.NotBefore, 0).UTC()
		entry.NotBefore = &t
	}
	if serialized.NotAfter != nil {
		t := time.Unix(*serialized.NotAfter, 0).UTC()
		entry.NotAfter = &t
	}
	return entry, nil
}
