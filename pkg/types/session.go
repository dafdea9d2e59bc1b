package types

import "time"

// SessionStatus is a diagnostic label surfaced to callers; it is not part
// of the routability invariant (see Session.Routable).
type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusReady   SessionStatus = "ready"
)

// Session is one admitted job request with its lifecycle record.
//
// SessionID and WorkerName are immutable after creation. WorkerEndpoint
// transitions from unset to set exactly once and is never unset again.
type Session struct {
	SessionID      string    `json:"sessionId"`
	OwnerID        string    `json:"ownerId"`
	WorkerName     string    `json:"workerName"`
	WorkerEndpoint string    `json:"workerEndpoint,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Routable reports whether the session's worker endpoint is known and has
// not yet expired.
func (s *Session) Routable(now time.Time) bool {
	return s.WorkerEndpoint != "" && now.Before(s.ExpiresAt)
}

// Status returns the diagnostic status for API responses.
func (s *Session) Status() SessionStatus {
	if s.WorkerEndpoint == "" {
		return SessionStatusPending
	}
	return SessionStatusReady
}

// TokenRecord is the durable one-shot key backing single-use capability
// tokens. A TokenRecord is consumed at most once; consumption is the
// atomic delete performed by Store.ConsumeToken.
type TokenRecord struct {
	TokenID   string    `json:"tokenId"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateSessionRequest is the admitted body of POST /api/sessions.
type CreateSessionRequest struct {
	CodeURL    string `json:"code_url"`
	Command    string `json:"command"`
	InstallCmd string `json:"install_cmd,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

// CreateSessionResponse is returned on successful admission.
type CreateSessionResponse struct {
	SessionID   string `json:"sessionId"`
	WSPath      string `json:"wsUrl"`
	Token       string `json:"token"`
	TerminalURL string `json:"terminalUrl"`
	Status      string `json:"status,omitempty"`
}

// SessionSummary is the read-only view returned by GET /api/sessions/{id}.
type SessionSummary struct {
	SessionID string    `json:"sessionId"`
	OwnerID   string    `json:"ownerId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
