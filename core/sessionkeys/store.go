package sessionkeys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/allegro/bigcache/v3"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/storage"
)

// Store persists sessions. It is an explicit dependency of the manager so
// independent managers never share state by accident; tests hand each
// manager its own store. Implementations must be safe for concurrent use.
type Store interface {
	Put(sess *Session) error
	Get(account, session common.Address) (*Session, error)
	List(account common.Address) ([]*Session, error)
	Delete(account, session common.Address) error
}

const sessionKeyPrefix = "sk"

// storeKey is "sk:<account>:<session>", both addresses lowercased so key
// lookups are insensitive to checksum casing.
func storeKey(account, session common.Address) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", sessionKeyPrefix, strings.ToLower(account.Hex()), strings.ToLower(session.Hex())))
}

func accountPrefix(account common.Address) []byte {
	return []byte(fmt.Sprintf("%s:%s:", sessionKeyPrefix, strings.ToLower(account.Hex())))
}

// BadgerStore keeps sessions in badger with an optional read-through cache
// in front. Writes go to badger first; the cache is refreshed on success so
// it never serves a session the database does not have.
type BadgerStore struct {
	db    storage.Storage
	cache *bigcache.BigCache
}

// NewBadgerStore wraps a badger-backed storage. cache may be nil.
func NewBadgerStore(db storage.Storage, cache *bigcache.BigCache) *BadgerStore {
	return &BadgerStore{db: db, cache: cache}
}

func (s *BadgerStore) Put(sess *Session) error {
	body, err := sess.ToJSON()
	if err != nil {
		return err
	}

	key := storeKey(sess.Account, sess.Address)
	if err := s.db.Set(key, body); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Set(string(key), body)
	}
	return nil
}

func (s *BadgerStore) Get(account, session common.Address) (*Session, error) {
	key := storeKey(account, session)

	if s.cache != nil {
		if body, err := s.cache.Get(string(key)); err == nil {
			return SessionFromStorageData(body)
		}
	}

	body, err := s.db.GetKey(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(string(key), body)
	}
	return SessionFromStorageData(body)
}

func (s *BadgerStore) List(account common.Address) ([]*Session, error) {
	items, err := s.db.GetByPrefix(accountPrefix(account))
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(items))
	for _, item := range items {
		sess, err := SessionFromStorageData(item.Value)
		if err != nil {
			return nil, fmt.Errorf("sessionkeys: corrupt session record at %s: %w", item.Key, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *BadgerStore) Delete(account, session common.Address) error {
	key := storeKey(account, session)
	if s.cache != nil {
		_ = s.cache.Delete(string(key))
	}
	return s.db.Delete(key)
}
