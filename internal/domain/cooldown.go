package domain

import (
	"context"
	"time"
)

// Admission is the outcome of a cooldown check.
type Admission struct {
	Admitted  bool
	Remaining time.Duration // zero when admitted
}

// Admit is the admitted outcome.
func Admit() Admission { return Admission{Admitted: true} }

// Reject is the rejected outcome carrying the time left until the identity may edit again.
func Reject(remaining time.Duration) Admission {
	return Admission{Admitted: false, Remaining: remaining}
}

// CooldownGate decides whether an identity may edit now.
// Implementations must make the check-and-update atomic per identity.
type CooldownGate interface {
	TryAdmit(ctx context.Context, identity string, now time.Time) (Admission, error)
}
