// Package validation provides custom validation rules for identifiers and
// user-supplied secret metadata.
package validation

import (
	"regexp"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

var (
	// secretNameRegex allows alphanumerics with single '.', '-' or '_' separators;
	// no leading, trailing or doubled separators.
	secretNameRegex = regexp.MustCompile(`^[A-Za-z0-9]+([._\-][A-Za-z0-9]+)*$`)

	// groupNameRegex allows lowercase dot-segmented names (e.g. "team.service").
	groupNameRegex = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9]+)*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// SecretName validates a secret identifier: 1-128 characters, alphanumerics
// separated by at most one '.', '-' or '_' at a time.
var SecretName = []validation.Rule{
	validation.Required,
	validation.Length(1, 128),
	validation.Match(secretNameRegex).ErrorObject(
		validation.NewError(
			"validation_secret_name",
			"must be alphanumeric with single '.', '-' or '_' separators",
		),
	),
}

// GroupName validates a secrets group name: 3-64 characters, lowercase
// alphanumeric segments separated by dots.
var GroupName = []validation.Rule{
	validation.Required,
	validation.Length(3, 64),
	validation.Match(groupNameRegex).ErrorObject(
		validation.NewError(
			"validation_group_name",
			"must be lowercase alphanumeric segments separated by dots",
		),
	),
}

// Region validates a backend region name. The encryption context reserves 14
// characters for it, so longer names cannot be bound to a ciphertext.
var Region = []validation.Rule{
	validation.Required,
	validation.Length(1, 14),
}
