package dto

import "identity/internal/domain"

type OAuthBegin struct {
	AuthURL string
	State   string
}

type OAuthCallbackRequest struct {
	Provider domain.Provider
	Code     string
	State    string
	// CookieState is the value of the oauth_state_<provider> cookie the
	// transport layer read (empty when the cookie is missing).
	CookieState string
}

// OAuthResult mirrors LoginResult: a session, or a pending OTP challenge for
// Email when the resolved user has MFA enabled.
type OAuthResult struct {
	MfaRequired bool
	Email       string
	User        *domain.User
	Session     *SessionResult
}
