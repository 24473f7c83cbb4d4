// Package sessionkeys issues, stores and validates delegated session keys:
// ephemeral keypairs an account owner hands out with explicit, time and
// scope bounded permissions. The manager signs operation hashes with a
// session key only after every permission rule passes, and keeps the usage
// counters that back those rules in lockstep with the signatures it hands
// out.
package sessionkeys

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
)

// Permission bounds what a session key may do and for how long. The zero
// value denies everything with a value attached: callers grant budgets
// explicitly rather than inheriting permissive defaults.
type Permission struct {
	// ValidAfter and ValidUntil are unix seconds. The window is inclusive
	// on both ends.
	ValidAfter int64 `json:"valid_after"`
	ValidUntil int64 `json:"valid_until"`

	// MaxValuePerCall caps the native value of a single call. Nil counts
	// as zero.
	MaxValuePerCall *big.Int `json:"max_value_per_call"`
	// MaxTotalValue caps lifetime spend across all calls. Nil or zero
	// means no cumulative cap.
	MaxTotalValue *big.Int `json:"max_total_value,omitempty"`

	// AllowedTargets empty means any target that is not blocked.
	AllowedTargets []common.Address `json:"allowed_targets,omitempty"`
	// BlockedTargets is consulted before the allow list.
	BlockedTargets []common.Address `json:"blocked_targets,omitempty"`
	// AllowedSelectors empty means any function may be called.
	AllowedSelectors []byte4.Selector `json:"allowed_selectors,omitempty"`

	// MaxTransactionCount zero means unlimited.
	MaxTransactionCount uint64 `json:"max_transaction_count,omitempty"`
	// CooldownSeconds is the minimum gap between two signatures from the
	// same session. Zero disables it.
	CooldownSeconds uint64 `json:"cooldown_seconds,omitempty"`
}

// Session is a delegated keypair bound to one smart account, together with
// its permission record and the usage counters the validator consults.
type Session struct {
	// Account is the smart account this key may act for.
	Account common.Address
	// Address is derived from the session key and identifies the session.
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey

	Permission Permission

	// Nonce increments on every successful sign.
	Nonce                uint64
	UsedTransactionCount uint64
	CumulativeValueSpent *big.Int

	// LastUsedAt is the unix time of the last successful sign, zero when
	// the session has never signed.
	LastUsedAt int64
	CreatedAt  int64
}

type sessionJSON struct {
	Account              common.Address `json:"account"`
	Address              common.Address `json:"address"`
	PrivateKey           string         `json:"private_key"`
	Permission           Permission     `json:"permission"`
	Nonce                uint64         `json:"nonce"`
	UsedTransactionCount uint64         `json:"used_transaction_count"`
	CumulativeValueSpent *big.Int       `json:"cumulative_value_spent"`
	LastUsedAt           int64          `json:"last_used_at"`
	CreatedAt            int64          `json:"created_at"`
}

// MarshalJSON serializes the session including its private key. The output
// is what lands in storage and in export envelopes; treat it as secret.
func (s *Session) MarshalJSON() ([]byte, error) {
	if s.PrivateKey == nil {
		return nil, fmt.Errorf("sessionkeys: session %s has no private key", s.Address.Hex())
	}
	return json.Marshal(&sessionJSON{
		Account:              s.Account,
		Address:              s.Address,
		PrivateKey:           hexutil.Encode(crypto.FromECDSA(s.PrivateKey)),
		Permission:           s.Permission,
		Nonce:                s.Nonce,
		UsedTransactionCount: s.UsedTransactionCount,
		CumulativeValueSpent: s.CumulativeValueSpent,
		LastUsedAt:           s.LastUsedAt,
		CreatedAt:            s.CreatedAt,
	})
}

// UnmarshalJSON restores a session and cross-checks that the embedded
// private key actually derives the session address, so a corrupt or
// tampered record cannot smuggle in a different key.
func (s *Session) UnmarshalJSON(data []byte) error {
	var wire sessionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	raw, err := hexutil.Decode(wire.PrivateKey)
	if err != nil {
		return fmt.Errorf("sessionkeys: decoding private key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return fmt.Errorf("sessionkeys: parsing private key: %w", err)
	}
	if derived := crypto.PubkeyToAddress(key.PublicKey); derived != wire.Address {
		return fmt.Errorf("sessionkeys: private key derives %s, record says %s", derived.Hex(), wire.Address.Hex())
	}

	s.Account = wire.Account
	s.Address = wire.Address
	s.PrivateKey = key
	s.Permission = wire.Permission
	s.Nonce = wire.Nonce
	s.UsedTransactionCount = wire.UsedTransactionCount
	s.CumulativeValueSpent = wire.CumulativeValueSpent
	s.LastUsedAt = wire.LastUsedAt
	s.CreatedAt = wire.CreatedAt

	if s.CumulativeValueSpent == nil {
		s.CumulativeValueSpent = big.NewInt(0)
	}
	return nil
}

func (s *Session) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// SessionFromStorageData parses a stored session record.
func SessionFromStorageData(body []byte) (*Session, error) {
	sess := &Session{}
	if err := json.Unmarshal(body, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
