package dto

import "identity/internal/domain"

// SessionResult carries the persisted session row plus the raw bearer token.
// The raw token exists only here; storage keeps its fingerprint.
type SessionResult struct {
	Session *domain.Session
	Token   string
}
