package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/strongroom/internal/policy"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

func TestParseTimeFlag(t *testing.T) {
	t.Run("empty value", func(t *testing.T) {
		parsed, err := parseTimeFlag("not-before", "")
		require.NoError(t, err)
		assert.Nil(t, parsed)
	})

	t.Run("valid value", func(t *testing.T) {
		parsed, err := parseTimeFlag("not-before", "2026-08-30T12:00:00Z")
		require.NoError(t, err)
		require.NotNil(t, parsed)
		assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), parsed.UTC())
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := parseTimeFlag("not-after", "tomorrow")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not-after")
	})
}

func TestParseState(t *testing.T) {
	t.Run("empty stays empty", func(t *testing.T) {
		state, err := parseState("")
		require.NoError(t, err)
		assert.Equal(t, domain.State(""), state)
	})

	t.Run("lowercase is accepted", func(t *testing.T) {
		state, err := parseState("disabled")
		require.NoError(t, err)
		assert.Equal(t, domain.StateDisabled, state)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := parseState("ARCHIVED")
		require.Error(t, err)
	})
}

func TestParseAccess(t *testing.T) {
	access, err := parseAccess("admin")
	require.NoError(t, err)
	assert.Equal(t, policy.AccessAdmin, access)

	access, err = parseAccess("readonly")
	require.NoError(t, err)
	assert.Equal(t, policy.AccessReadOnly, access)

	_, err = parseAccess("root")
	require.Error(t, err)
}

func TestRenderEntry(t *testing.T) {
	id, err := domain.NewSecretIdentifier("mySecret")
	require.NoError(t, err)

	t.Run("text value", func(t *testing.T) {
		entry := &domain.SecretEntry{
			Identifier: id,
			Version:    2,
			State:      domain.StateEnabled,
			Value:      domain.UTF8Value("0123"),
		}
		rendered := renderEntry(entry)
		assert.Equal(t, "mySecret", rendered.Name)
		assert.Equal(t, "0123", rendered.Value)
		assert.False(t, rendered.Binary)
	})

	t.Run("binary value", func(t *testing.T) {
		entry := &domain.SecretEntry{
			Identifier: id,
			Version:    1,
			State:      domain.StateEnabled,
			Value:      domain.BinaryValue([]byte{0x00, 0x01, 0x02}),
			UserData:   []byte("extra"),
		}
		rendered := renderEntry(entry)
		assert.Equal(t, "AAEC", rendered.Value)
		assert.True(t, rendered.Binary)
		assert.Equal(t, "ZXh0cmE=", rendered.UserData)
	})
}
