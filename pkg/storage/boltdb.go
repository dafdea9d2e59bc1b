package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/arakoodev/cliscale/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSessions = []byte("sessions")
	bucketJTI      = []byte("jti")
	bucketMeta     = []byte("meta")

	metaKeySigningFingerprint = []byte("signing_key_fingerprint")
)

// BoltStore implements Store on top of an embedded BoltDB file. BoltDB
// gives us a single writer and crash-safe ACID transactions, which is all
// the durability the session/token lifecycle needs; there is no
// multi-node replication requirement in this system.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the BoltDB file under
// dataDir and ensures all required buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cliscale.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSessions, bucketJTI, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file. Callers that might race a
// shutdown signal with another close path should guard it with
// sync.Once so it runs exactly once.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) PutSession(session *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(session.SessionID)) != nil {
			return fmt.Errorf("storage: session %s already exists", session.SessionID)
		}
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return b.Put([]byte(session.SessionID), data)
	})
}

func (s *BoltStore) GetSession(sessionID string) (*types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(sessionID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltStore) UpdateSessionEndpoint(sessionID, endpoint string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(sessionID))
		if data == nil {
			return ErrNotFound
		}
		var session types.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		if session.WorkerEndpoint != "" {
			// Already resolved; endpoints are set exactly once.
			return nil
		}
		session.WorkerEndpoint = endpoint
		updated, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		return b.Put([]byte(sessionID), updated)
	})
}

func (s *BoltStore) ListSessions() ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			sessions = append(sessions, &session)
			return nil
		})
	})
	return sessions, err
}

func (s *BoltStore) DeleteSession(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(sessionID))
	})
}

func (s *BoltStore) PutToken(token *types.TokenRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJTI)
		if b.Get([]byte(token.TokenID)) != nil {
			return fmt.Errorf("storage: token %s already exists", token.TokenID)
		}
		data, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return b.Put([]byte(token.TokenID), data)
	})
}

// ConsumeToken is the atomic get-and-delete that makes capability tokens
// single-use: the fetch and the delete happen inside one BoltDB write
// transaction, so two concurrent attach attempts racing on the same jti
// can never both succeed.
func (s *BoltStore) ConsumeToken(tokenID string) (*types.TokenRecord, error) {
	var token types.TokenRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJTI)
		data := b.Get([]byte(tokenID))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &token); err != nil {
			return err
		}
		return b.Delete([]byte(tokenID))
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *BoltStore) PruneExpired(nowUnixNano int64) (int, int, error) {
	now := time.Unix(0, nowUnixNano)
	sessionsPruned, tokensPruned := 0, 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSessions)
		var sessionKeys [][]byte
		if err := sb.ForEach(func(k, v []byte) error {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			if now.After(session.ExpiresAt) {
				sessionKeys = append(sessionKeys, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range sessionKeys {
			if err := sb.Delete(k); err != nil {
				return err
			}
			sessionsPruned++
		}

		tb := tx.Bucket(bucketJTI)
		var tokenKeys [][]byte
		if err := tb.ForEach(func(k, v []byte) error {
			var token types.TokenRecord
			if err := json.Unmarshal(v, &token); err != nil {
				return err
			}
			if now.After(token.ExpiresAt) {
				tokenKeys = append(tokenKeys, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range tokenKeys {
			if err := tb.Delete(k); err != nil {
				return err
			}
			tokensPruned++
		}

		return nil
	})
	return sessionsPruned, tokensPruned, err
}

func (s *BoltStore) PutSigningKeyFingerprint(fingerprint string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaKeySigningFingerprint, []byte(fingerprint))
	})
}

func (s *BoltStore) GetSigningKeyFingerprint() (string, error) {
	var fingerprint string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(metaKeySigningFingerprint)
		if data == nil {
			return ErrNotFound
		}
		fingerprint = string(data)
		return nil
	})
	return fingerprint, err
}
