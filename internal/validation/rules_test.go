package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

func TestSecretName(t *testing.T) {
	valid := []string{"a", "mySecret", "my.secret", "my-secret_v2", "0123", "a.b-c_d"}
	for _, name := range valid {
		t.Run("valid "+name, func(t *testing.T) {
			assert.NoError(t, validation.Validate(name, SecretName...))
		})
	}

	invalid := []string{"", ".secret", "secret.", "my..secret", "my.-secret", "my secret", "sécret"}
	for _, name := range invalid {
		t.Run("invalid "+name, func(t *testing.T) {
			assert.Error(t, validation.Validate(name, SecretName...))
		})
	}

	t.Run("too long", func(t *testing.T) {
		long := make([]byte, 129)
		for i := range long {
			long[i] = 'a'
		}
		assert.Error(t, validation.Validate(string(long), SecretName...))
	})
}

func TestGroupName(t *testing.T) {
	valid := []string{"team.service", "abc", "a.b.c0"}
	for _, name := range valid {
		t.Run("valid "+name, func(t *testing.T) {
			assert.NoError(t, validation.Validate(name, GroupName...))
		})
	}

	invalid := []string{"", "ab", "Team.service", "team..service", ".team", "team."}
	for _, name := range invalid {
		t.Run("invalid "+name, func(t *testing.T) {
			assert.Error(t, validation.Validate(name, GroupName...))
		})
	}
}

func TestWrapValidationError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, WrapValidationError(nil))
	})

	t.Run("wraps as invalid input", func(t *testing.T) {
		err := WrapValidationError(validation.Validate("", SecretName...))
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})
}
