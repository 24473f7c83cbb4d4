package sessionkeys

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/AvaProtocol/ap-wallet/core/chainio/signer"
	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
	"github.com/AvaProtocol/ap-wallet/pkg/logger"
)

// Manager issues and validates delegated session keys for one smart
// account. Signing requests for the same session are serialized
// internally, so two concurrent calls cannot both pass the transaction
// count check and race past the limit together.
type Manager struct {
	store   Store
	owner   signer.Signer
	account common.Address

	validate *validator.Validate
	logger   logger.Logger

	// now is swapped out in tests for deterministic clocks.
	now func() int64

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

// NewManager builds a manager for account, backed by store, with owner
// producing the on-chain authorization signatures. log may be nil.
func NewManager(store Store, owner signer.Signer, account common.Address, log logger.Logger) *Manager {
	return &Manager{
		store:    store,
		owner:    owner,
		account:  account,
		validate: validator.New(),
		logger:   logger.EnsureLogger(log),
		now:      func() int64 { return time.Now().Unix() },
		locks:    make(map[common.Address]*sync.Mutex),
	}
}

// Account returns the smart account this manager issues sessions for.
func (m *Manager) Account() common.Address {
	return m.account
}

func (m *Manager) sessionLock(session common.Address) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[session]
	if !ok {
		l = &sync.Mutex{}
		m.locks[session] = l
	}
	return l
}

// CreateSessionRequest is the permission grant for a new session key.
type CreateSessionRequest struct {
	// ValidAfter and ValidUntil are unix seconds, both inclusive.
	ValidAfter int64 `validate:"gte=0"`
	ValidUntil int64 `validate:"required,gtefield=ValidAfter"`

	// MaxValuePerCall is required so a grant always states its per-call
	// budget, even if that budget is zero.
	MaxValuePerCall *big.Int `validate:"required"`
	MaxTotalValue   *big.Int

	AllowedTargets   []common.Address `validate:"max=255,unique"`
	BlockedTargets   []common.Address `validate:"max=255,unique"`
	AllowedSelectors []byte4.Selector `validate:"max=255,unique"`

	MaxTransactionCount uint64
	CooldownSeconds     uint64
}

func (r CreateSessionRequest) permission() Permission {
	return Permission{
		ValidAfter:          r.ValidAfter,
		ValidUntil:          r.ValidUntil,
		MaxValuePerCall:     r.MaxValuePerCall,
		MaxTotalValue:       r.MaxTotalValue,
		AllowedTargets:      r.AllowedTargets,
		BlockedTargets:      r.BlockedTargets,
		AllowedSelectors:    r.AllowedSelectors,
		MaxTransactionCount: r.MaxTransactionCount,
		CooldownSeconds:     r.CooldownSeconds,
	}
}

// CreateSession generates a fresh keypair, binds it to the manager's
// account with the requested permissions and persists it. The returned
// session carries the private key; it never leaves the store otherwise.
func (m *Manager) CreateSession(req CreateSessionRequest) (*Session, error) {
	if err := m.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("sessionkeys: invalid permission grant: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("sessionkeys: generating session key: %w", err)
	}

	sess := &Session{
		Account:              m.account,
		Address:              crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey:           key,
		Permission:           req.permission(),
		CumulativeValueSpent: big.NewInt(0),
		CreatedAt:            m.now(),
	}
	if err := m.store.Put(sess); err != nil {
		return nil, fmt.Errorf("sessionkeys: storing session: %w", err)
	}

	m.logger.Info("created session key",
		"account", m.account.Hex(),
		"session", sess.Address.Hex(),
		"valid_until", sess.Permission.ValidUntil)
	return sess, nil
}

// GetSession loads a session by its key address, expired or not.
func (m *Manager) GetSession(session common.Address) (*Session, error) {
	return m.store.Get(m.account, session)
}

// ListSessions returns the account's sessions that have not expired yet.
// A session whose validUntil equals the current second is still listed.
func (m *Manager) ListSessions() ([]*Session, error) {
	sessions, err := m.store.List(m.account)
	if err != nil {
		return nil, err
	}

	now := m.now()
	return lo.Filter(sessions, func(s *Session, _ int) bool {
		return s.Permission.ValidUntil >= now
	}), nil
}

// RevokeSession hard-deletes a session. Revocation is the only removal
// path; expiry alone leaves the record in place for auditing.
func (m *Manager) RevokeSession(session common.Address) error {
	if _, err := m.store.Get(m.account, session); err != nil {
		return err
	}
	if err := m.store.Delete(m.account, session); err != nil {
		return err
	}

	m.logger.Info("revoked session key", "account", m.account.Hex(), "session", session.Hex())
	return nil
}

// ValidateAction reports whether the session may perform the action right
// now. Denials come back as *Denial wrapping ErrDenied with the first
// failing rule's reason; nil means allowed.
func (m *Manager) ValidateAction(session common.Address, action Action) error {
	sess, err := m.store.Get(m.account, session)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Deny(ReasonNotFound)
		}
		return err
	}

	if denial := evaluate(sess, action, m.now()); denial != nil {
		return denial
	}
	return nil
}

// SignWithSession validates the action and, if allowed, signs opHash with
// the session's private key. The nonce, transaction count, cumulative
// spend and last-used time advance if and only if a signature is returned:
// a denial leaves the record untouched, and a record that cannot be
// persisted produces no signature.
func (m *Manager) SignWithSession(session common.Address, opHash common.Hash, action Action) ([]byte, error) {
	lock := m.sessionLock(session)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Get(m.account, session)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Deny(ReasonNotFound)
		}
		return nil, err
	}

	now := m.now()
	if denial := evaluate(sess, action, now); denial != nil {
		m.logger.Debug("session signing denied",
			"session", session.Hex(),
			"reason", denial.Reason)
		return nil, denial
	}

	sig, err := signer.SignMessage(sess.PrivateKey, opHash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sessionkeys: signing with session %s: %w", session.Hex(), err)
	}

	sess.Nonce++
	sess.UsedTransactionCount++
	sess.CumulativeValueSpent = new(big.Int).Add(valueOrZero(sess.CumulativeValueSpent), valueOrZero(action.Value))
	sess.LastUsedAt = now
	if err := m.store.Put(sess); err != nil {
		// counters that did not reach disk void the signature
		return nil, fmt.Errorf("sessionkeys: persisting counters for %s: %w", session.Hex(), err)
	}

	return sig, nil
}

// AuthorizeSession produces the owner's binding signature over the session
// key and its encoded permissions. The on-chain validator recovers the
// owner from this signature before honoring any session signature, which
// is what makes the delegation trustworthy.
func (m *Manager) AuthorizeSession(ctx context.Context, session common.Address) ([]byte, error) {
	sess, err := m.store.Get(m.account, session)
	if err != nil {
		return nil, err
	}

	digest, err := AuthorizationDigest(m.account, sess.Address, sess.Permission)
	if err != nil {
		return nil, err
	}

	sig, err := m.owner.SignDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("sessionkeys: owner authorization: %w", err)
	}
	return sig, nil
}

// PurgeExpired hard-deletes sessions whose validUntil fell more than
// retention in the past, returning the purged addresses. Sessions expired
// more recently stay put so operators keep an audit window.
func (m *Manager) PurgeExpired(retention time.Duration) ([]common.Address, error) {
	sessions, err := m.store.List(m.account)
	if err != nil {
		return nil, err
	}

	cutoff := m.now() - int64(retention/time.Second)
	var purged []common.Address
	for _, sess := range sessions {
		if sess.Permission.ValidUntil >= cutoff {
			continue
		}
		if err := m.store.Delete(m.account, sess.Address); err != nil {
			return purged, err
		}
		purged = append(purged, sess.Address)
	}

	if len(purged) > 0 {
		m.logger.Info("purged expired sessions", "account", m.account.Hex(), "count", len(purged))
	}
	return purged, nil
}
