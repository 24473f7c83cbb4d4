package sessionkeys

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
)

// Action is one prospective call a session key wants to authorize.
type Action struct {
	Target common.Address
	// Value is the native amount attached to the call. Nil means zero.
	Value *big.Int
	// Selector is the 4 byte function selector, nil for a plain transfer
	// carrying no calldata.
	Selector *byte4.Selector
}

// evaluate runs the permission rules in their documented order and returns
// the first failing rule's denial, or nil when the action is allowed.
//
// The order is part of the API contract. Callers assert on exact reasons,
// so a session that is both expired and aimed at a blocked target reports
// the expiry, never the block.
func evaluate(sess *Session, action Action, now int64) *Denial {
	p := sess.Permission

	if now < p.ValidAfter {
		return Deny(ReasonNotActiveYet)
	}
	if now > p.ValidUntil {
		return Deny(ReasonExpired)
	}
	if lo.Contains(p.BlockedTargets, action.Target) {
		return Deny(ReasonTargetBlocked)
	}
	if len(p.AllowedTargets) > 0 && !lo.Contains(p.AllowedTargets, action.Target) {
		return Deny(ReasonTargetNotAllowed)
	}
	// the selector rule only applies when the call has one; a bare value
	// transfer is governed by the target and value rules alone
	if len(p.AllowedSelectors) > 0 && action.Selector != nil && !lo.Contains(p.AllowedSelectors, *action.Selector) {
		return Deny(ReasonSelectorNotAllowed)
	}

	value := valueOrZero(action.Value)
	if value.Cmp(valueOrZero(p.MaxValuePerCall)) > 0 {
		return Deny(ReasonValueExceedsLimit)
	}
	if p.MaxTotalValue != nil && p.MaxTotalValue.Sign() > 0 {
		spent := new(big.Int).Add(valueOrZero(sess.CumulativeValueSpent), value)
		if spent.Cmp(p.MaxTotalValue) > 0 {
			return Deny(ReasonCumulativeLimit)
		}
	}
	if p.MaxTransactionCount > 0 && sess.UsedTransactionCount >= p.MaxTransactionCount {
		return Deny(ReasonTxCountReached)
	}
	if p.CooldownSeconds > 0 && sess.LastUsedAt > 0 && now < sess.LastUsedAt+int64(p.CooldownSeconds) {
		return Deny(ReasonCooldownActive)
	}

	return nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
