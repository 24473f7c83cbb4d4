package sessionkeys

import "errors"

// Reason is a machine-checkable denial reason. The strings are part of the
// API contract: integrations and tests match on them exactly, so they never
// change casually.
type Reason string

const (
	ReasonNotFound           Reason = "Session not found"
	ReasonNotActiveYet       Reason = "Session not active yet"
	ReasonExpired            Reason = "Session expired"
	ReasonTargetBlocked      Reason = "Target is blocked"
	ReasonTargetNotAllowed   Reason = "Target not allowed"
	ReasonSelectorNotAllowed Reason = "Selector not allowed"
	ReasonValueExceedsLimit  Reason = "Value exceeds limit"
	ReasonCumulativeLimit    Reason = "Cumulative value limit exceeded"
	ReasonTxCountReached     Reason = "Transaction count limit reached"
	ReasonCooldownActive     Reason = "Cooldown active"
)

var (
	// ErrDenied is the sentinel every policy denial wraps. errors.Is(err,
	// ErrDenied) separates a policy decision from an infrastructure failure.
	ErrDenied = errors.New("sessionkeys: action denied")

	// ErrNotFound reports a session that is not in the store.
	ErrNotFound = errors.New("sessionkeys: session not found")

	// ErrWrongAccount reports an import of a session bound to a different
	// smart account than the manager's.
	ErrWrongAccount = errors.New("sessionkeys: session belongs to a different account")
)

// Denial carries the first failing permission rule. It is an error so it
// flows through the usual return paths, and callers unwrap it to ErrDenied
// when they only care about allowed versus denied.
type Denial struct {
	Reason Reason
}

func (d *Denial) Error() string { return string(d.Reason) }

func (d *Denial) Unwrap() error { return ErrDenied }

// Deny builds the denial for a reason.
func Deny(r Reason) *Denial { return &Denial{Reason: r} }
