package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/strongroom/internal/errors"
	secretsDomain "github.com/allisson/strongroom/internal/secrets/domain"
)

func testGroup(t *testing.T) secretsDomain.GroupIdentifier {
	t.Helper()
	group, err := secretsDomain.NewGroupIdentifier("eu-west-1", "payments.billing")
	require.NoError(t, err)
	return group
}

func testEntry(t *testing.T) *secretsDomain.RawSecretEntry {
	t.Helper()
	id, err := secretsDomain.NewSecretIdentifier("api-key")
	require.NoError(t, err)
	return &secretsDomain.RawSecretEntry{
		Identifier:       id,
		Version:          7,
		State:            secretsDomain.StateEnabled,
		EncryptedPayload: []byte("ciphertext"),
	}
}

func TestNewEncryptionContext(t *testing.T) {
	group := testGroup(t)

	t.Run("binds all nine fields with fixed widths", func(t *testing.T) {
		entry := testEntry(t)
		notBefore := time.Unix(1700000000, 0)
		entry.NotBefore = &notBefore

		ec, err := NewEncryptionContext(group, entry)
		require.NoError(t, err)

		require.Len(t, ec, 9)
		assert.Equal(t, fmt.Sprintf("%-14s", "eu-west-1"), ec["0"])
		assert.Equal(t, fmt.Sprintf("%-64s", "payments.billing"), ec["1"])
		assert.Equal(t, fmt.Sprintf("%-128s", "api-key"), ec["2"])
		assert.Equal(t, "00000000000000000007", ec["3"])
		assert.Equal(t, "1", ec["4"])
		assert.Equal(t, "1", ec["5"])
		assert.Equal(t, "00000000001700000000", ec["6"])
		assert.Equal(t, "0", ec["7"])
		assert.Equal(t, "00000000000000000000", ec["8"])
	})

	t.Run("absent window bounds render as unset", func(t *testing.T) {
		ec, err := NewEncryptionContext(group, testEntry(t))
		require.NoError(t, err)

		assert.Equal(t, "0", ec["5"])
		assert.Equal(t, "00000000000000000000", ec["6"])
		assert.Equal(t, "0", ec["7"])
		assert.Equal(t, "00000000000000000000", ec["8"])
	})

	t.Run("state digit per state", func(t *testing.T) {
		for state, digit := range map[secretsDomain.State]string{
			secretsDomain.StateEnabled:     "1",
			secretsDomain.StateDisabled:    "2",
			secretsDomain.StateCompromised: "3",
		} {
			entry := testEntry(t)
			entry.State = state

			ec, err := NewEncryptionContext(group, entry)
			require.NoError(t, err)
			assert.Equal(t, digit, ec["4"])
		}
	})

	t.Run("invalid state fails", func(t *testing.T) {
		entry := testEntry(t)
		entry.State = secretsDomain.State("BOGUS")

		_, err := NewEncryptionContext(group, entry)
		assert.Error(t, err)
	})
}

func TestEncryptionContextVerifyReturned(t *testing.T) {
	group := testGroup(t)
	ec, err := NewEncryptionContext(group, testEntry(t))
	require.NoError(t, err)

	returned := func() map[string]string {
		m := make(map[string]string, len(ec))
		for k, v := range ec {
			m[k] = v
		}
		return m
	}

	t.Run("exact match passes", func(t *testing.T) {
		assert.NoError(t, ec.VerifyReturned(returned()))
	})

	t.Run("extra returned keys are tolerated", func(t *testing.T) {
		m := returned()
		m["x-amz-extra"] = "anything"
		assert.NoError(t, ec.VerifyReturned(m))
	})

	t.Run("missing key is an integrity error", func(t *testing.T) {
		m := returned()
		delete(m, "2")
		assert.ErrorIs(t, ec.VerifyReturned(m), apperrors.ErrIntegrity)
	})

	t.Run("altered value is an integrity error", func(t *testing.T) {
		m := returned()
		m["3"] = "00000000000000000008"
		assert.ErrorIs(t, ec.VerifyReturned(m), apperrors.ErrIntegrity)
	})
}

func TestEncryptionContextCanonical(t *testing.T) {
	ec := EncryptionContext{"1": "b", "0": "a", "2": "c"}

	canonical := string(ec.Canonical())
	assert.Equal(t, "0=a\n1=b\n2=c\n", canonical)

	t.Run("deterministic across calls", func(t *testing.T) {
		assert.Equal(t, canonical, string(ec.Canonical()))
	})

	t.Run("one line per key", func(t *testing.T) {
		assert.Equal(t, len(ec), strings.Count(canonical, "\n"))
	})
}

func TestStrengthKeyLength(t *testing.T) {
	tests := []struct {
		strength Strength
		want     int
		wantErr  bool
	}{
		{strength: AES128, want: 16},
		{strength: AES256, want: 32},
		{strength: Strength("AES_512"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.strength), func(t *testing.T) {
			got, err := tt.strength.KeyLength()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
