package policy

import (
	"context"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

// NoOpManager is the policy surface of deployments without an identity
// service, such as the local file backend. Policies never exist; lifecycle
// calls succeed without effect and principal operations are rejected.
type NoOpManager struct{}

// NewNoOpManager creates a policy manager that manages nothing.
func NewNoOpManager() *NoOpManager {
	return &NoOpManager{}
}

// CreatePolicy does nothing.
func (n *NoOpManager) CreatePolicy(context.Context, Access, string, string) (string, error) {
	return "", nil
}

// DeletePolicy reports the policy as already gone.
func (n *NoOpManager) DeletePolicy(_ context.Context, access Access) error {
	return apperrors.Wrapf(apperrors.ErrDoesNotExist, "policy %s", string(access))
}

// Exists reports false.
func (n *NoOpManager) Exists(context.Context, Access) (bool, error) {
	return false, nil
}

// Attach fails; there is no identity service to attach principals to.
func (n *NoOpManager) Attach(context.Context, Access, string) error {
	return apperrors.Wrap(apperrors.ErrInvalidInput, "no identity service configured")
}

// Detach fails; there is no identity service to detach principals from.
func (n *NoOpManager) Detach(context.Context, Access, string) error {
	return apperrors.Wrap(apperrors.ErrInvalidInput, "no identity service configured")
}

// ListAttachedUsers reports the policy as absent.
func (n *NoOpManager) ListAttachedUsers(_ context.Context, access Access) ([]string, error) {
	return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "policy %s", string(access))
}
