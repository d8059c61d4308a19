// Package domain defines the encryption-layer domain types: key strengths and
// the encryption context binding a ciphertext to its entry.
package domain

import apperrors "github.com/allisson/strongroom/internal/errors"

// Strength selects the symmetric data-key strength used for a group's
// ciphertexts. Chosen once per group manager instance and fixed for the
// group's lifetime.
type Strength string

const (
	// AES128 uses 128-bit data keys.
	AES128 Strength = "AES_128"
	// AES256 uses 256-bit data keys.
	AES256 Strength = "AES_256"
)

// KeyLength returns the data-key length in bytes.
func (s Strength) KeyLength() (int, error) {
	switch s {
	case AES128:
		return 16, nil
	case AES256:
		return 32, nil
	default:
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"unsupported encryption strength %q", string(s))
	}
}

// DataKeySpec returns the key-management service key spec name.
func (s Strength) DataKeySpec() string {
	return string(s)
}
