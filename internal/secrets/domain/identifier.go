// Package domain defines the core domain models for versioned encrypted secrets:
// identifiers, the persisted entry format, and the binary encryption payload.
// Entries are immutable snapshots; each update of a secret creates a new version.
package domain

import (
	"fmt"
	"strings"

	validation "github.com/jellydator/validation"

	appvalidation "github.com/allisson/strongroom/internal/validation"
)

// SecretIdentifier is the validated logical name of a secret. Immutable;
// equality is by name.
type SecretIdentifier struct {
	name string
}

// NewSecretIdentifier validates name and returns the identifier.
// Names are 1-128 characters of alphanumerics with single '.', '-' or '_'
// separators, no leading, trailing or doubled separators.
func NewSecretIdentifier(name string) (SecretIdentifier, error) {
	if err := validation.Validate(name, appvalidation.SecretName...); err != nil {
		return SecretIdentifier{}, appvalidation.WrapValidationError(
			fmt.Errorf("secret name %q: %s", name, err),
		)
	}
	return SecretIdentifier{name: name}, nil
}

// Name returns the secret name.
func (s SecretIdentifier) Name() string {
	return s.name
}

// IsZero reports whether the identifier is the zero value.
func (s SecretIdentifier) IsZero() bool {
	return s.name == ""
}

// String implements fmt.Stringer.
func (s SecretIdentifier) String() string {
	return s.name
}

// GroupIdentifier identifies a secrets group by (region, name). Immutable;
// total ordering by region then name.
type GroupIdentifier struct {
	region string
	name   string
}

// NewGroupIdentifier validates region and name and returns the identifier.
// Group names are 3-64 characters of lowercase alphanumeric dot-separated
// segments; regions are 1-14 characters.
func NewGroupIdentifier(region, name string) (GroupIdentifier, error) {
	if err := validation.Validate(region, appvalidation.Region...); err != nil {
		return GroupIdentifier{}, appvalidation.WrapValidationError(
			fmt.Errorf("group region %q: %s", region, err),
		)
	}
	if err := validation.Validate(name, appvalidation.GroupName...); err != nil {
		return GroupIdentifier{}, appvalidation.WrapValidationError(
			fmt.Errorf("group name %q: %s", name, err),
		)
	}
	return GroupIdentifier{region: region, name: name}, nil
}

// Region returns the group's region.
func (g GroupIdentifier) Region() string {
	return g.region
}

// Name returns the group's name.
func (g GroupIdentifier) Name() string {
	return g.name
}

// IsZero reports whether the identifier is the zero value.
func (g GroupIdentifier) IsZero() bool {
	return g.region == "" && g.name == ""
}

// Compare orders group identifiers by (region, name).
func (g GroupIdentifier) Compare(other GroupIdentifier) int {
	if c := strings.Compare(g.region, other.region); c != 0 {
		return c
	}
	return strings.Compare(g.name, other.name)
}

// String implements fmt.Stringer as "region:name".
func (g GroupIdentifier) String() string {
	return g.region + ":" + g.name
}
