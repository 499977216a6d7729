// store.go - Durable, per-deployment shielded account store.
//
// The store is the only component allowed to mutate persisted account state,
// and CommitConfirmedOperation is its only mutator besides account creation.
// Every write happens inside one bbolt transaction, so balances and the
// (TreeIndex, Nullifier) pair can never be observed half-updated.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"shroud/internal/asset"
	"shroud/internal/common"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// Store persists shielded accounts in a bbolt bucket scoped to one deployed
// pool instance, so accounts from different deployments never collide.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	log    zerolog.Logger
}

// Open opens (and creates if needed) the store at path. namespace must be
// unique per deployed pool, conventionally its package ID.
func Open(path, namespace string, log zerolog.Logger) (*Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("store namespace must not be empty")
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}
	bucket := []byte("accounts-" + namespace)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create account bucket: %w", err)
	}
	return &Store{db: db, bucket: bucket, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(tx *bbolt.Tx, address string) (*Account, error) {
	raw := tx.Bucket(s.bucket).Get([]byte(address))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	var acc Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("corrupt account record for %s: %w", address, err)
	}
	return &acc, nil
}

func (s *Store) put(tx *bbolt.Tx, acc *Account) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", acc.Address, err)
	}
	return tx.Bucket(s.bucket).Put([]byte(acc.Address), raw)
}

// CreateAccount initializes a shielded account for an external identity
// with all balances at zero and no tree position. The nonce is the
// account's immutable secret; it must come from a fresh secure derivation.
func (s *Store) CreateAccount(address string, nonce common.Hash) (*Account, error) {
	if _, err := BoundIdentity(address); err != nil {
		return nil, err
	}
	if nonce.IsZero() {
		return nil, fmt.Errorf("spending nonce must not be zero")
	}
	acc := newAccount(address, nonce)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if existing := tx.Bucket(s.bucket).Get([]byte(address)); existing != nil {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, address)
		}
		return s.put(tx, acc)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("address", address).Msg("shielded account created")
	return acc, nil
}

// Account returns a copy of the persisted record.
func (s *Store) Account(address string) (*Account, error) {
	var acc *Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		acc, err = s.get(tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Accounts lists every account in this deployment's namespace.
func (s *Store) Accounts() ([]*Account, error) {
	var accounts []*Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, raw []byte) error {
			var acc Account
			if err := json.Unmarshal(raw, &acc); err != nil {
				return fmt.Errorf("corrupt account record: %w", err)
			}
			accounts = append(accounts, &acc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ExportSnapshot serializes the account into the binary layout the proving
// boundary expects. Read-only and deterministic: identical state yields
// identical bytes.
func (s *Store) ExportSnapshot(address string) ([]byte, error) {
	acc, err := s.Account(address)
	if err != nil {
		return nil, err
	}
	snap, err := acc.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Encode()
}

// CommitConfirmedOperation applies a confirmed operation's effects in one
// atomic step: each signed delta lands on its balance, the
// (TreeIndex, Nullifier) pair is overwritten together, LastActiveSeq
// advances, and the history record is appended. It must only be called
// after the ledger confirmed the operation; committing earlier would
// desynchronize the local nullifier from the ledger's and permanently break
// future proofs for the account.
func (s *Store) CommitConfirmedOperation(address string, treeIndex uint64, nullifier common.Hash, deltas map[asset.ID]*big.Int, record *HistoryRecord) error {
	if nullifier.IsZero() {
		return fmt.Errorf("confirmed nullifier must not be zero")
	}
	for id := range deltas {
		if _, err := asset.Lookup(id); err != nil {
			return err
		}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		acc, err := s.get(tx, address)
		if err != nil {
			return err
		}
		for id, delta := range deltas {
			bal, ok := acc.Balances[id]
			if !ok {
				bal = new(big.Int)
			}
			next := new(big.Int).Add(bal, delta)
			if next.Sign() < 0 {
				return fmt.Errorf("confirmed delta drives %s balance negative (%s)", id, next)
			}
			acc.Balances[id] = next
		}
		idx := treeIndex
		nul := nullifier
		now := time.Now().UnixMilli()
		acc.TreeIndex = &idx
		acc.Nullifier = &nul
		acc.LastActiveSeq = &now
		if record != nil {
			rec := *record
			if rec.Timestamp == 0 {
				rec.Timestamp = now
			}
			acc.History = append(acc.History, rec)
		}
		return s.put(tx, acc)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("address", address).Uint64("treeIndex", treeIndex).Str("nullifier", nullifier.Hex()).Msg("confirmed operation committed")
	return nil
}
