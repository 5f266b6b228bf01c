package policy

import "errors"

// Denial kinds. Match with errors.Is.
var (
	// ErrForbidden: the actor's role grants no permission for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrOutOfScope: the role allows the action but the target lies outside the actor's region or location.
	ErrOutOfScope = errors.New("out of scope")
	// ErrInvalidActorState: the actor's own profile lacks required scoping data.
	ErrInvalidActorState = errors.New("invalid actor state")
	// ErrInvalidTarget: a required target parameter is missing or does not resolve.
	ErrInvalidTarget = errors.New("invalid target")
)

// Denial is a terminal authorization failure with a user-visible reason.
type Denial struct {
	Kind   error
	Reason string
}

func (d *Denial) Error() string {
	if d.Reason == "" {
		return d.Kind.Error()
	}
	return d.Reason
}

func (d *Denial) Unwrap() error { return d.Kind }

func deny(kind error, reason string) error {
	return &Denial{Kind: kind, Reason: reason}
}

// Outcome labels a decision for metrics: allow, forbidden, out_of_scope,
// invalid_actor_state, invalid_target or error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrOutOfScope):
		return "out_of_scope"
	case errors.Is(err, ErrInvalidActorState):
		return "invalid_actor_state"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	default:
		return "error"
	}
}

// IsDenial reports whether err carries one of the denial kinds.
func IsDenial(err error) bool {
	var d *Denial
	return errors.As(err, &d)
}
