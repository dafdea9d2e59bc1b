package storage

import (
	"errors"

	"github.com/arakoodev/cliscale/pkg/types"
)

// ErrNotFound is returned when a lookup key has no record, or the record
// has expired and been pruned.
var ErrNotFound = errors.New("storage: not found")

// Store is the durable state backing both the Session Controller and the
// WebSocket Gateway. Every method is safe for concurrent use; BoltDB
// serialises writers internally.
type Store interface {
	// PutSession inserts a new session record. The session must not
	// already exist.
	PutSession(session *types.Session) error

	// GetSession returns the session by ID, or ErrNotFound.
	GetSession(sessionID string) (*types.Session, error)

	// UpdateSessionEndpoint sets a session's WorkerEndpoint exactly once.
	// Calling it on a session that already has an endpoint is a no-op
	// that leaves the existing endpoint unchanged and returns nil.
	UpdateSessionEndpoint(sessionID, endpoint string) error

	// ListSessions returns every session record, expired or not; callers
	// needing only live sessions should filter with Session.Routable.
	ListSessions() ([]*types.Session, error)

	// DeleteSession removes a session record.
	DeleteSession(sessionID string) error

	// PutToken inserts a new one-time token record. The token ID must not
	// already exist.
	PutToken(token *types.TokenRecord) error

	// ConsumeToken atomically fetches and deletes a token record by ID.
	// A second call with the same ID returns ErrNotFound: the token has
	// already been spent. This is the mechanism backing single-use
	// capability tokens.
	ConsumeToken(tokenID string) (*types.TokenRecord, error)

	// PruneExpired deletes every session and token record whose
	// ExpiresAt is before now, returning the counts removed.
	PruneExpired(nowUnixNano int64) (sessions int, tokens int, err error)

	// PutSigningKeyFingerprint records the fingerprint (kid) of the
	// signing key currently in use, so a restart can detect a key
	// rotation that invalidates outstanding tokens.
	PutSigningKeyFingerprint(fingerprint string) error

	// GetSigningKeyFingerprint returns the last recorded fingerprint, or
	// ErrNotFound if none has been recorded yet.
	GetSigningKeyFingerprint() (string, error)

	Close() error
}
