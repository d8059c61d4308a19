package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(t *testing.T, version uint64, state State) *RawSecretEntry {
	t.Helper()
	id, err := NewSecretIdentifier("mySecret")
	require.NoError(t, err)
	return &RawSecretEntry{
		Identifier:       id,
		Version:          version,
		State:            state,
		EncryptedPayload: []byte("ciphertext-" + string(rune('0'+version))),
	}
}

func TestRawSecretEntryDigest(t *testing.T) {
	entry := testEntry(t, 1, StateEnabled)

	t.Run("digest is stable", func(t *testing.T) {
		assert.Equal(t, entry.Digest(), entry.Digest())
		assert.Len(t, entry.Digest(), 32)
	})

	t.Run("digest changes with the payload", func(t *testing.T) {
		other := entry.Clone()
		other.EncryptedPayload[0] ^= 0xff
		assert.NotEqual(t, entry.Digest(), other.Digest())
	})
}

func TestRawSecretEntryActive(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := map[string]struct {
		state     State
		notBefore *time.Time
		notAfter  *time.Time
		active    bool
	}{
		"enabled no window":        {StateEnabled, nil, nil, true},
		"disabled":                 {StateDisabled, nil, nil, false},
		"compromised":              {StateCompromised, nil, nil, false},
		"inside window":            {StateEnabled, &past, &future, true},
		"before window":            {StateEnabled, &future, nil, false},
		"after window":             {StateEnabled, nil, &past, false},
		"open ended after start":   {StateEnabled, &past, nil, true},
		"open started before end":  {StateEnabled, nil, &future, true},
		"disabled inside a window": {StateDisabled, &past, &future, false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			entry := testEntry(t, 1, tc.state)
			entry.NotBefore = tc.notBefore
			entry.NotAfter = tc.notAfter
			assert.Equal(t, tc.active, entry.Active(now))
		})
	}
}

func TestRawSecretEntryClone(t *testing.T) {
	nb := time.Unix(100, 0).UTC()
	entry := testEntry(t, 1, StateEnabled)
	entry.NotBefore = &nb

	clone := entry.Clone()
	clone.EncryptedPayload[0] ^= 0xff
	*clone.NotBefore = time.Unix(200, 0).UTC()

	assert.Equal(t, byte('c'), entry.EncryptedPayload[0])
	assert.True(t, entry.NotBefore.Equal(nb))
}

func TestStateDigits(t *testing.T) {
	for _, state := range []State{StateEnabled, StateDisabled, StateCompromised} {
		d, err := state.Digit()
		require.NoError(t, err)
		back, err := StateFromDigit(d)
		require.NoError(t, err)
		assert.Equal(t, state, back)
	}

	_, err := State("BROKEN").Digit()
	assert.Error(t, err)
	_, err = StateFromDigit('9')
	assert.Error(t, err)
	_, err = ParseState("BROKEN")
	assert.Error(t, err)
}
