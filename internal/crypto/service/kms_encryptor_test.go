package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
	apperrors "github.com/allisson/strongroom/internal/errors"
	secretsDomain "github.com/allisson/strongroom/internal/secrets/domain"
)

// fakeKMS simulates the key-management API with a single in-memory key.
type fakeKMS struct {
	dataKey  []byte
	keyState kmstypes.KeyState
	missing  bool

	cancelCalls int
	enableCalls int
}

func newFakeKMS() *fakeKMS {
	return &fakeKMS{
		dataKey:  bytes.Repeat([]byte{0x11}, 32),
		keyState: kmstypes.KeyStateEnabled,
	}
}

func (f *fakeKMS) metadata() *kmstypes.KeyMetadata {
	return &kmstypes.KeyMetadata{
		KeyId:    aws.String("key-1"),
		Arn:      aws.String("arn:aws:kms:eu-west-1:123456789012:key/key-1"),
		KeyState: f.keyState,
	}
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	return &kms.GenerateDataKeyOutput{
		KeyId:          aws.String("arn:aws:kms:eu-west-1:123456789012:key/key-1"),
		Plaintext:      append([]byte(nil), f.dataKey...),
		CiphertextBlob: []byte("wrapped-data-key"),
	}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if !bytes.Equal(in.CiphertextBlob, []byte("wrapped-data-key")) {
		return nil, &kmstypes.InvalidCiphertextException{}
	}
	return &kms.DecryptOutput{
		KeyId:     aws.String("arn:aws:kms:eu-west-1:123456789012:key/key-1"),
		Plaintext: append([]byte(nil), f.dataKey...),
	}, nil
}

func (f *fakeKMS) GenerateRandom(_ context.Context, in *kms.GenerateRandomInput, _ ...func(*kms.Options)) (*kms.GenerateRandomOutput, error) {
	return &kms.GenerateRandomOutput{Plaintext: make([]byte, aws.ToInt32(in.NumberOfBytes))}, nil
}

func (f *fakeKMS) CreateKey(_ context.Context, _ *kms.CreateKeyInput, _ ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	f.missing = false
	f.keyState = kmstypes.KeyStateEnabled
	return &kms.CreateKeyOutput{KeyMetadata: f.metadata()}, nil
}

func (f *fakeKMS) CreateAlias(_ context.Context, _ *kms.CreateAliasInput, _ ...func(*kms.Options)) (*kms.CreateAliasOutput, error) {
	return &kms.CreateAliasOutput{}, nil
}

func (f *fakeKMS) DescribeKey(_ context.Context, _ *kms.DescribeKeyInput, _ ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	if f.missing {
		return nil, &kmstypes.NotFoundException{}
	}
	return &kms.DescribeKeyOutput{KeyMetadata: f.metadata()}, nil
}

func (f *fakeKMS) EnableKey(_ context.Context, _ *kms.EnableKeyInput, _ ...func(*kms.Options)) (*kms.EnableKeyOutput, error) {
	f.enableCalls++
	f.keyState = kmstypes.KeyStateEnabled
	return &kms.EnableKeyOutput{}, nil
}

func (f *fakeKMS) CancelKeyDeletion(_ context.Context, _ *kms.CancelKeyDeletionInput, _ ...func(*kms.Options)) (*kms.CancelKeyDeletionOutput, error) {
	f.cancelCalls++
	f.keyState = kmstypes.KeyStateDisabled
	return &kms.CancelKeyDeletionOutput{}, nil
}

func (f *fakeKMS) ScheduleKeyDeletion(_ context.Context, in *kms.ScheduleKeyDeletionInput, _ ...func(*kms.Options)) (*kms.ScheduleKeyDeletionOutput, error) {
	f.keyState = kmstypes.KeyStatePendingDeletion
	deletion := time.Now().AddDate(0, 0, int(aws.ToInt32(in.PendingWindowInDays)))
	return &kms.ScheduleKeyDeletionOutput{DeletionDate: aws.Time(deletion)}, nil
}

func newTestKMSEncryptor(t *testing.T, client kmsAPI) *KMSEncryptor {
	t.Helper()
	group, err := secretsDomain.NewGroupIdentifier("eu-west-1", "payments")
	require.NoError(t, err)
	enc, err := NewKMSEncryptor(client, group, cryptoDomain.AES256)
	require.NoError(t, err)
	return enc
}

func TestKeyAlias(t *testing.T) {
	group, err := secretsDomain.NewGroupIdentifier("eu-west-1", "payments.billing")
	require.NoError(t, err)
	assert.Equal(t, "alias/strongroom_eu-west-1_payments.billing", KeyAlias(group))
}

func TestKMSEncryptorRoundTrip(t *testing.T) {
	ctx := context.Background()
	enc := newTestKMSEncryptor(t, newFakeKMS())
	ec := cryptoDomain.EncryptionContext{"0": "eu-west-1", "1": "payments"}

	ciphertext, err := enc.Encrypt(ctx, []byte("secret"), ec)
	require.NoError(t, err)

	plaintext, keyID, returned, err := enc.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plaintext)
	assert.Equal(t, "arn:aws:kms:eu-west-1:123456789012:key/key-1", keyID)
	assert.Equal(t, map[string]string(ec), returned)

	t.Run("tampered blob fails", func(t *testing.T) {
		ciphertext[len(ciphertext)-1] ^= 0xff
		_, _, _, err := enc.Decrypt(ctx, ciphertext)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestKMSEncryptorCreateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing key", func(t *testing.T) {
		client := newFakeKMS()
		client.missing = true
		enc := newTestKMSEncryptor(t, client)

		arn, err := enc.CreateKey(ctx, false)
		require.NoError(t, err)
		assert.NotEmpty(t, arn)
	})

	t.Run("enabled key conflicts", func(t *testing.T) {
		enc := newTestKMSEncryptor(t, newFakeKMS())

		_, err := enc.CreateKey(ctx, false)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("enabled key conflicts even with reuse", func(t *testing.T) {
		enc := newTestKMSEncryptor(t, newFakeKMS())

		_, err := enc.CreateKey(ctx, true)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("reuse re-enables disabled key", func(t *testing.T) {
		client := newFakeKMS()
		client.keyState = kmstypes.KeyStateDisabled
		enc := newTestKMSEncryptor(t, client)

		arn, err := enc.CreateKey(ctx, true)
		require.NoError(t, err)
		assert.NotEmpty(t, arn)
		assert.Equal(t, 1, client.enableCalls)
		assert.Equal(t, 0, client.cancelCalls)
	})

	t.Run("reuse cancels pending deletion", func(t *testing.T) {
		client := newFakeKMS()
		client.keyState = kmstypes.KeyStatePendingDeletion
		enc := newTestKMSEncryptor(t, client)

		_, err := enc.CreateKey(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 1, client.cancelCalls)
		assert.Equal(t, 1, client.enableCalls)
	})

	t.Run("without reuse a disabled key conflicts", func(t *testing.T) {
		client := newFakeKMS()
		client.keyState = kmstypes.KeyStateDisabled
		enc := newTestKMSEncryptor(t, client)

		_, err := enc.CreateKey(ctx, false)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})
}

func TestKMSEncryptorExists(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		missing       bool
		state         kmstypes.KeyState
		allowKeyReuse bool
		want          bool
	}{
		{name: "missing key", missing: true, want: false},
		{name: "enabled key", state: kmstypes.KeyStateEnabled, want: true},
		{name: "enabled key with reuse", state: kmstypes.KeyStateEnabled, allowKeyReuse: true, want: true},
		{name: "disabled key", state: kmstypes.KeyStateDisabled, want: true},
		{name: "disabled key with reuse", state: kmstypes.KeyStateDisabled, allowKeyReuse: true, want: false},
		{name: "pending deletion with reuse", state: kmstypes.KeyStatePendingDeletion, allowKeyReuse: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeKMS()
			client.missing = tt.missing
			client.keyState = tt.state
			enc := newTestKMSEncryptor(t, client)

			got, err := enc.Exists(ctx, tt.allowKeyReuse)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKMSEncryptorARN(t *testing.T) {
	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		enc := newTestKMSEncryptor(t, newFakeKMS())

		arn, err := enc.ARN(ctx)
		require.NoError(t, err)
		assert.Equal(t, "arn:aws:kms:eu-west-1:123456789012:key/key-1", arn)
	})

	t.Run("missing key", func(t *testing.T) {
		client := newFakeKMS()
		client.missing = true
		enc := newTestKMSEncryptor(t, client)

		_, err := enc.ARN(ctx)
		assert.ErrorIs(t, err, apperrors.ErrDoesNotExist)
	})
}

func TestEnvelopeBlobCodec(t *testing.T) {
	ec := cryptoDomain.EncryptionContext{"0": "region"}

	blob, err := packEnvelope([]byte("key"), []byte("nonce"), ec, []byte("ciphertext"))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		got, err := unpackEnvelope(blob)
		require.NoError(t, err)
		assert.Equal(t, []byte("key"), got.encryptedKey)
		assert.Equal(t, []byte("nonce"), got.nonce)
		assert.Equal(t, map[string]string(ec), got.context)
		assert.Equal(t, []byte("ciphertext"), got.ciphertext)
	})

	t.Run("empty blob", func(t *testing.T) {
		_, err := unpackEnvelope(nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("unknown version tag", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[0] = 9
		_, err := unpackEnvelope(bad)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("truncated blob", func(t *testing.T) {
		_, err := unpackEnvelope(blob[:6])
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}
