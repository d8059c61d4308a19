package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/allisson/strongroom/internal/errors"
	secretsDomain "github.com/allisson/strongroom/internal/secrets/domain"
)

// Fixed field widths of the encryption context values. Strings are space-padded
// to the right, numbers zero-padded to the left.
const (
	regionWidth     = 14
	groupNameWidth  = 64
	secretNameWidth = 128
	numberWidth     = 20
)

// Positional context keys. The context binds a ciphertext to the group, the
// entry identity and the entry metadata; any mismatch on decrypt indicates
// tampering or misuse.
const (
	ctxRegion       = "0"
	ctxGroupName    = "1"
	ctxSecretName   = "2"
	ctxVersion      = "3"
	ctxState        = "4"
	ctxNotBeforeSet = "5"
	ctxNotBefore    = "6"
	ctxNotAfterSet  = "7"
	ctxNotAfter     = "8"
)

// EncryptionContext is the authenticated (but not secret) metadata bound to a
// ciphertext, keyed by fixed positions "0" through "8".
type EncryptionContext map[string]string

// NewEncryptionContext builds the context binding a ciphertext to its group
// and entry metadata.
func NewEncryptionContext(
	group secretsDomain.GroupIdentifier,
	entry *secretsDomain.RawSecretEntry,
) (EncryptionContext, error) {
	stateDigit, err := entry.State.Digit()
	if err != nil {
		return nil, err
	}

	ec := EncryptionContext{
		ctxRegion:     padString(group.Region(), regionWidth),
		ctxGroupName:  padString(group.Name(), groupNameWidth),
		ctxSecretName: padString(entry.Identifier.Name(), secretNameWidth),
		ctxVersion:    fmt.Sprintf("%020d", entry.Version),
		ctxState:      string(stateDigit),
	}

	ec[ctxNotBeforeSet], ec[ctxNotBefore] = padOptionalEpoch(entry.NotBefore)
	ec[ctxNotAfterSet], ec[ctxNotAfter] = padOptionalEpoch(entry.NotAfter)
	return ec, nil
}

// VerifyReturned checks that every key/value pair of the expected context is
// present and equal in the context returned by the encryption service. Any
// mismatch is a fatal integrity error.
func (c EncryptionContext) VerifyReturned(returned map[string]string) error {
	for key, want := range c {
		got, ok := returned[key]
		if !ok {
			return apperrors.Wrapf(apperrors.ErrIntegrity,
				"encryption context key %q missing from decryption result", key)
		}
		if got != want {
			return apperrors.Wrapf(apperrors.ErrIntegrity,
				"encryption context key %q mismatch", key)
		}
	}
	return nil
}

// Canonical returns a deterministic byte serialization of the context, usable
// as additional authenticated data.
func (c EncryptionContext) Canonical() []byte {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func padString(s string, width int) string {
	return fmt.Sprintf("%-*s", width, s)
}

// padOptionalEpoch renders a presence flag and a zero-padded epoch value; an
// absent timestamp renders as flag "0" with a zero epoch.
func padOptionalEpoch(t *time.Time) (string, string) {
	if t == nil {
		return "0", fmt.Sprintf("%020d", 0)
	}
	return "1", fmt.Sprintf("%020d", t.Unix())
}
