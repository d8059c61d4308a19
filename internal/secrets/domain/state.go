package domain

import apperrors "github.com/allisson/strongroom/internal/errors"

// State is the lifecycle state of a secret entry version.
type State string

const (
	// StateEnabled marks a version usable by consumers.
	StateEnabled State = "ENABLED"
	// StateDisabled marks a version that must not be served.
	StateDisabled State = "DISABLED"
	// StateCompromised marks a version known to be leaked; kept for audit.
	StateCompromised State = "COMPROMISED"
)

// ParseState converts a stored state string back into a State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateEnabled, StateDisabled, StateCompromised:
		return State(s), nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown state %q", s)
	}
}

// Digit returns the single-digit encoding used in the encryption context and
// backend rows.
func (s State) Digit() (byte, error) {
	switch s {
	case StateEnabled:
		return '1', nil
	case StateDisabled:
		return '2', nil
	case StateCompromised:
		return '3', nil
	default:
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown state %q", string(s))
	}
}

// StateFromDigit is the inverse of Digit.
func StateFromDigit(d byte) (State, error) {
	switch d {
	case '1':
		return StateEnabled, nil
	case '2':
		return StateDisabled, nil
	case '3':
		return StateCompromised, nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown state digit %q", string(d))
	}
}
