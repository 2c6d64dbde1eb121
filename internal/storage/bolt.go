package storage

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
	"github.com/SluiooktueSvg/ia/pkg/logging"
)

var (
	bucketSession = []byte("session")
	keyTurns      = []byte("turns")
	keyQuota      = []byte("quotaExceeded")
)

// Store persists the session log and the sticky quota flag to a bbolt file.
// Every method except New degrades instead of failing: read errors behave as
// "no persisted data", write errors as "write skipped", both logged. A broken
// storage file must never take down the in-memory session.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the storage file at path.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTurns writes the full ordered log to the turns slot.
func (s *Store) SaveTurns(turns []chat.Turn) {
	data, err := json.Marshal(turns)
	if err != nil {
		logging.L().Error("failed to serialize session log", zap.Error(err))
		return
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyTurns, data)
	})
	if err != nil {
		logging.L().Error("failed to save session log", zap.Error(err))
	}
}

// LoadTurns reads the persisted log. An absent or malformed slot yields an
// empty sequence, never a partial one.
func (s *Store) LoadTurns() []chat.Turn {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketSession).Get(keyTurns); raw != nil {
			data = make([]byte, len(raw))
			copy(data, raw)
		}
		return nil
	})
	if err != nil {
		logging.L().Error("failed to read session log", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var turns []chat.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		logging.L().Error("failed to decode session log", zap.Error(err))
		return nil
	}
	return turns
}

// ClearTurns removes the turns slot.
func (s *Store) ClearTurns() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyTurns)
	})
	if err != nil {
		logging.L().Error("failed to clear session log", zap.Error(err))
	}
}

// SetQuotaFlag marks the sticky chat-exhaustion flag.
func (s *Store) SetQuotaFlag() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyQuota, []byte("true"))
	})
	if err != nil {
		logging.L().Error("failed to set quota flag", zap.Error(err))
	}
}

// QuotaFlag reads the sticky chat-exhaustion flag; errors read as false.
func (s *Store) QuotaFlag() bool {
	var set bool
	err := s.db.View(func(tx *bolt.Tx) error {
		set = string(tx.Bucket(bucketSession).Get(keyQuota)) == "true"
		return nil
	})
	if err != nil {
		logging.L().Error("failed to read quota flag", zap.Error(err))
		return false
	}
	return set
}

// ClearQuotaFlag removes the sticky chat-exhaustion flag.
func (s *Store) ClearQuotaFlag() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyQuota)
	})
	if err != nil {
		logging.L().Error("failed to clear quota flag", zap.Error(err))
	}
}
