package sessionkeys

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// exportVersion tags export envelopes so a future layout change is caught
// on import instead of decoding garbage.
const exportVersion = 1

type exportEnvelope struct {
	Version    int      `json:"version"`
	ExportedAt int64    `json:"exported_at"`
	Session    *Session `json:"session"`
}

// ExportSession serializes a session, mutable counters included, so
// another manager instance can pick it up without losing permission or
// usage state. The payload contains the session's private key.
func (m *Manager) ExportSession(session common.Address) ([]byte, error) {
	sess, err := m.store.Get(m.account, session)
	if err != nil {
		return nil, err
	}

	return json.Marshal(&exportEnvelope{
		Version:    exportVersion,
		ExportedAt: m.now(),
		Session:    sess,
	})
}

// ImportSession loads an exported session into this manager's store. The
// session must be bound to this manager's account; importing a grant made
// for a different account is refused rather than silently rebound.
func (m *Manager) ImportSession(data []byte) (*Session, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("sessionkeys: decoding export: %w", err)
	}
	if env.Version != exportVersion {
		return nil, fmt.Errorf("sessionkeys: unsupported export version %d", env.Version)
	}
	if env.Session == nil {
		return nil, fmt.Errorf("sessionkeys: export carries no session")
	}
	if env.Session.Account != m.account {
		return nil, ErrWrongAccount
	}

	if err := m.store.Put(env.Session); err != nil {
		return nil, err
	}

	m.logger.Info("imported session key",
		"account", m.account.Hex(),
		"session", env.Session.Address.Hex())
	return env.Session, nil
}
