package domain

import "errors"

var (
	// ErrDecryptionFailed indicates a ciphertext failed to decrypt or
	// authenticate. The underlying cause is intentionally not exposed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUnlimitedStrengthCrypto indicates the selected key strength is not
	// usable with the underlying cryptographic primitive.
	ErrUnlimitedStrengthCrypto = errors.New("unlimited-strength cryptography is not enabled")
)
