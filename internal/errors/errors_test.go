package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("wrapping nil returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, "context"))
	})

	t.Run("wrapped error preserves the chain", func(t *testing.T) {
		err := Wrap(ErrConflict, "updating entry")
		assert.True(t, Is(err, ErrConflict))
		assert.Equal(t, "updating entry: conflict", err.Error())
	})

	t.Run("double wrapping preserves the sentinel", func(t *testing.T) {
		err := Wrap(Wrap(ErrIntegrity, "decrypting payload"), "reading secret")
		assert.True(t, Is(err, ErrIntegrity))
	})
}

func TestWrapf(t *testing.T) {
	t.Run("wrapping nil returns nil", func(t *testing.T) {
		assert.Nil(t, Wrapf(nil, "group %s", "g"))
	})

	t.Run("formats the message", func(t *testing.T) {
		err := Wrapf(ErrPartialFailure, "creating group %q", "eu.sg")
		assert.True(t, Is(err, ErrPartialFailure))
		assert.Contains(t, err.Error(), `creating group "eu.sg"`)
	})
}
