// ABOUTME: Pure authorization state machine combining a validation result with a role requirement
// ABOUTME: Every request ends in exactly one outcome: allowed, redirected to auth, or forbidden

package auth

// Outcome is the terminal state of one gated request.
type Outcome int

const (
	// OutcomeAllowed lets the wrapped handler run.
	OutcomeAllowed Outcome = iota
	// OutcomeUnauthenticated sends the visitor to the authentication entry point.
	OutcomeUnauthenticated
	// OutcomeForbidden rejects a valid session that lacks the required role.
	OutcomeForbidden
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decide maps a validation result and an optional required role to an outcome.
// An empty requiredRole only requires authentication.
func Decide(res Result, requiredRole string) Outcome {
	if !res.Authenticated() {
		return OutcomeUnauthenticated
	}
	if requiredRole != "" && !res.Identity.HasRole(requiredRole) {
		return OutcomeForbidden
	}
	return OutcomeAllowed
}

// Err returns the error for an outcome, nil when allowed.
func (o Outcome) Err() error {
	switch o {
	case OutcomeAllowed:
		return nil
	case OutcomeForbidden:
		return ErrForbidden
	default:
		return ErrUnauthenticated
	}
}
