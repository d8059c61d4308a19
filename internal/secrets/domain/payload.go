package domain

import (
	"bytes"
	"encoding/binary"
	"time"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

// payloadVersionTag is the only supported serialization version.
const payloadVersionTag byte = 1

// Field length ceilings. A field exceeding its ceiling is a fatal formatting
// error before any padding is computed.
const (
	MaxValueLength    = 50000
	MaxUserDataLength = 50000
	MaxCommentLength  = 1000
	MaxAliasLength    = 32

	// valuePaddingModulo is the quantum the secret value is padded up to.
	valuePaddingModulo = 1000
	// randomPaddingBound bounds the random sample drawn for the user-data
	// padding term.
	randomPaddingBound = 50000
)

// ValueEncoding is the byte-level encoding of a secret value.
type ValueEncoding byte

const (
	// ValueEncodingUTF8 marks a value holding UTF-8 text.
	ValueEncodingUTF8 ValueEncoding = 1
	// ValueEncodingBinary marks an arbitrary byte value.
	ValueEncodingBinary ValueEncoding = 2
)

// ValueType is the semantic type of a secret value.
type ValueType byte

// ValueTypeOpaque is the only value type currently defined.
const ValueTypeOpaque ValueType = 1

// SecretValue is a typed secret value.
type SecretValue struct {
	Data     []byte
	Encoding ValueEncoding
	Type     ValueType
}

// UTF8Value returns an opaque UTF-8 encoded secret value.
func UTF8Value(s string) SecretValue {
	return SecretValue{Data: []byte(s), Encoding: ValueEncodingUTF8, Type: ValueTypeOpaque}
}

// BinaryValue returns an opaque binary secret value.
func BinaryValue(b []byte) SecretValue {
	return SecretValue{Data: b, Encoding: ValueEncodingBinary, Type: ValueTypeOpaque}
}

// RandomSource supplies cryptographically secure random bytes. The envelope
// encryption service's generateRandom is the production source.
type RandomSource func(n int) ([]byte, error)

// EncryptionPayload is the plaintext structure sealed inside a RawSecretEntry's
// encrypted payload. It serializes to a fixed-order binary layout with a
// trailing length-obfuscating padding block.
type EncryptionPayload struct {
	// Value is the secret value.
	Value SecretValue
	// UserData is optional free-form caller data.
	UserData []byte
	// Created is when the first version of the secret was created.
	Created time.Time
	// Modified is when this version was created.
	Modified time.Time
	// CreatedBy is the optional alias of the creating user.
	CreatedBy string
	// ModifiedBy is the optional alias of the modifying user.
	ModifiedBy string
	// Comment is an optional human comment.
	Comment string
}

// Shred best-effort zeroes the secret material held by the payload.
func (p *EncryptionPayload) Shred() {
	Zero(p.Value.Data)
	Zero(p.UserData)
}

// validate rejects any field exceeding its declared ceiling.
func (p *EncryptionPayload) validate() error {
	switch {
	case len(p.Value.Data) > MaxValueLength:
		return apperrors.Wrapf(apperrors.ErrInvalidInput,
			"secret value length %d exceeds %d", len(p.Value.Data), MaxValueLength)
	case len(p.UserData) > MaxUserDataLength:
		return apperrors.Wrapf(apperrors.ErrInvalidInput,
			"user data length %d exceeds %d", len(p.UserData), MaxUserDataLength)
	case len(p.Comment) > MaxCommentLength:
		return apperrors.Wrapf(apperrors.ErrInvalidInput,
			"comment length %d exceeds %d", len(p.Comment), MaxCommentLength)
	case len(p.CreatedBy) > MaxAliasLength:
		return apperrors.Wrapf(apperrors.ErrInvalidInput,
			"created-by alias length %d exceeds %d", len(p.CreatedBy), MaxAliasLength)
	case len(p.ModifiedBy) > MaxAliasLength:
		return apperrors.Wrapf(apperrors.ErrInvalidInput,
			"modified-by alias length %d exceeds %d", len(p.ModifiedBy), MaxAliasLength)
	}
	return nil
}

// Encode serializes the payload to its binary layout: version tag, two epoch
// second timestamps, length-prefixed aliases, encoding and type tags,
// length-prefixed value, user data and comment, then a length-prefixed padding
// block whose size obfuscates the value length. The random source must be
// cryptographically secure.
func (p *EncryptionPayload) Encode(random RandomSource) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	padLen, err := p.paddingLength(random)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(payloadVersionTag)
	writeEpoch(&buf, p.Created)
	writeEpoch(&buf, p.Modified)
	writeLengthPrefixed(&buf, []byte(p.CreatedBy))
	writeLengthPrefixed(&buf, []byte(p.ModifiedBy))
	buf.WriteByte(byte(p.Value.Encoding))
	buf.WriteByte(byte(p.Value.Type))
	writeLengthPrefixed(&buf, p.Value.Data)
	writeLengthPrefixed(&buf, p.UserData)
	writeLengthPrefixed(&buf, []byte(p.Comment))
	writeLengthPrefixed(&buf, make([]byte, padLen))

	return buf.Bytes(), nil
}

// paddingLength computes the total padding block size: the secret value is
// padded up to a multiple of the quantum, the user data contributes a random
// term below one quantum, and comment and aliases are padded to their absolute
// ceilings so their lengths are never observable.
func (p *EncryptionPayload) paddingLength(random RandomSource) (int, error) {
	randomTerm, err := randomPaddingTerm(random)
	if err != nil {
		return 0, err
	}
	return moduloPadding(len(p.Value.Data), valuePaddingModulo) +
		randomTerm +
		(MaxCommentLength - len(p.Comment)) +
		(MaxAliasLength - len(p.CreatedBy)) +
		(MaxAliasLength - len(p.ModifiedBy)), nil
}

// moduloPadding rounds length up to a multiple of modulo and returns the
// difference.
func moduloPadding(length, modulo int) int {
	rem := length % modulo
	if rem == 0 {
		return 0
	}
	return modulo - rem
}

// randomPaddingTerm draws a secure sample below randomPaddingBound and reduces
// it modulo the padding quantum, keeping the variable part of the total length
// within one quantum.
func randomPaddingTerm(random RandomSource) (int, error) {
	if random == nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "nil random source")
	}
	b, err := random(4)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to draw padding randomness")
	}
	if len(b) != 4 {
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"random source returned %d bytes, want 4", len(b))
	}
	sample := binary.BigEndian.Uint32(b) % randomPaddingBound
	return int(sample % valuePaddingModulo), nil
}

// DecodeEncryptionPayload parses the binary layout produced by Encode. A
// version tag other than 1 is rejected. Padding bytes are discarded.
func DecodeEncryptionPayload(data []byte) (*EncryptionPayload, error) {
	r := &payloadReader{data: data}

	tag := r.readByte()
	if r.err != nil {
		return nil, r.err
	}
	if tag != payloadVersionTag {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"unsupported payload version tag %d", tag)
	}

	created := r.readEpoch()
	modified := r.readEpoch()
	createdBy := r.readLengthPrefixed()
	modifiedBy := r.readLengthPrefixed()
	encoding := ValueEncoding(r.readByte())
	valueType := ValueType(r.readByte())
	value := r.readLengthPrefixed()
	userData := r.readLengthPrefixed()
	comment := r.readLengthPrefixed()
	r.readLengthPrefixed() // padding, opaque
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"%d trailing bytes after payload", r.remaining())
	}

	switch encoding {
	case ValueEncodingUTF8, ValueEncodingBinary:
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"unknown value encoding tag %d", encoding)
	}
	if valueType != ValueTypeOpaque {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"unknown value type tag %d", valueType)
	}

	payload := &EncryptionPayload{
		Value:      SecretValue{Data: value, Encoding: encoding, Type: valueType},
		UserData:   userData,
		Created:    created,
		Modified:   modified,
		CreatedBy:  string(createdBy),
		ModifiedBy: string(modifiedBy),
		Comment:    string(comment),
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeEpoch(buf *bytes.Buffer, t time.Time) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.Unix()))
	buf.Write(b[:])
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

// payloadReader is a cursor over the serialized payload that records the first
// error and turns subsequent reads into no-ops.
type payloadReader struct {
	data []byte
	pos  int
	err  error
}

func (r *payloadReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *payloadReader) fail(message string) {
	if r.err == nil {
		r.err = apperrors.Wrap(apperrors.ErrInvalidInput, message)
	}
}

func (r *payloadReader) readByte() byte {
	if r.err != nil {
		return 0
	}
	if r.remaining() < 1 {
		r.fail("truncated payload: missing tag byte")
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *payloadReader) readEpoch() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	if r.remaining() < 8 {
		r.fail("truncated payload: missing timestamp")
		return time.Time{}
	}
	sec := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return time.Unix(int64(sec), 0).UTC()
}

func (r *payloadReader) readLengthPrefixed() []byte {
	if r.err != nil {
		return nil
	}
	if r.remaining() < 4 {
		r.fail("truncated payload: missing length prefix")
		return nil
	}
	length := int(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4
	if length > r.remaining() {
		r.fail("truncated payload: field length exceeds remaining bytes")
		return nil
	}
	b := append([]byte(nil), r.data[r.pos:r.pos+length]...)
	r.pos += length
	return b
}
