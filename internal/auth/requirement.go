package auth

import "errors"

var ErrBackwardTransition = errors.New("auth requirement cannot be relaxed")

// Requirement is how strictly a session treats identity verification.
//
//	Unrequired – anonymous play, no verification attempted.
//	Optional   – verification attempted; failure only disables
//	             result persistence.
//	Required   – verification failure or absence terminates the
//	             connection. Used once both seats are known accounts so
//	             persistence stays symmetric.
type Requirement int

const (
	Unrequired Requirement = iota
	Optional
	Required
)

func (r Requirement) String() string {
	switch r {
	case Unrequired:
		return "unrequired"
	case Optional:
		return "optional"
	case Required:
		return "required"
	default:
		return "unknown"
	}
}

// Escalate moves the requirement strictly forward. Relaxing an already
// stricter requirement is a programming error and is rejected.
func (r Requirement) Escalate(to Requirement) (Requirement, error) {
	if to < r {
		return r, ErrBackwardTransition
	}
	return to, nil
}

// PersistAllowed reports whether a match under this requirement may have
// its result persisted when verification succeeded for both seats.
func (r Requirement) PersistAllowed() bool {
	return r != Unrequired
}
