package http

import (
	"net/http"

	"identity/internal/domain"
	"identity/internal/dto"
)

const (
	sessionCookieName       = "session"
	trustedDeviceCookieName = "trusted_device"
	oauthStateCookiePrefix  = "oauth_state_"

	oauthStateCookieMaxAge = 600 // seconds
)

// All credential cookies share the same discipline: HTTP-only, SameSite=Lax,
// path-scoped to the root.
func (rt *router) baseCookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   rt.secureCookies,
	}
}

func (rt *router) setSessionCookie(w http.ResponseWriter, sess *dto.SessionResult) {
	c := rt.baseCookie(sessionCookieName, sess.Token)
	c.Expires = sess.Session.ExpiresAt
	http.SetCookie(w, c)
}

func (rt *router) clearSessionCookie(w http.ResponseWriter) {
	c := rt.baseCookie(sessionCookieName, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (rt *router) setTrustedDeviceCookie(w http.ResponseWriter, dev *dto.TrustedDeviceResult) {
	c := rt.baseCookie(trustedDeviceCookieName, dev.Secret)
	c.Expires = dev.ExpiresAt
	http.SetCookie(w, c)
}

func (rt *router) setOAuthStateCookie(w http.ResponseWriter, provider domain.Provider, state string) {
	c := rt.baseCookie(oauthStateCookiePrefix+string(provider), state)
	c.MaxAge = oauthStateCookieMaxAge
	http.SetCookie(w, c)
}

// clearOAuthStateCookie runs on every callback, match or not: the state is
// single-use.
func (rt *router) clearOAuthStateCookie(w http.ResponseWriter, provider domain.Provider) {
	c := rt.baseCookie(oauthStateCookiePrefix+string(provider), "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
