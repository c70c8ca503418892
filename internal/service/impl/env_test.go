package impl

import (
	"context"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/token"
)

// testEnv wires the service impls onto in-memory fakes with a controllable
// clock. Tests mutate e.now to travel in time.
type testEnv struct {
	users    *memUserStore
	sessions *memSessionStore
	tokens   *memTokenStore
	attempts *memAttemptStore
	devices  *memDeviceStore
	links    *memLinkStore
	mail     *memMailer
	issuer   *token.Issuer

	now time.Time

	sessionSvc *SessionServiceImpl
	mfa        *MfaServiceImpl
	auth       *AuthServiceImpl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		users:    newMemUserStore(),
		sessions: newMemSessionStore(),
		tokens:   newMemTokenStore(),
		attempts: newMemAttemptStore(),
		devices:  newMemDeviceStore(),
		links:    newMemLinkStore(),
		mail:     &memMailer{},
		issuer:   token.NewIssuer(),
		now:      time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }

	e.sessionSvc = &SessionServiceImpl{
		Sessions: e.sessions,
		Issuer:   e.issuer,
		TTL:      7 * 24 * time.Hour,
		Now:      clock,
	}
	e.mfa = &MfaServiceImpl{
		Users:        e.users,
		Tokens:       e.tokens,
		Attempts:     e.attempts,
		Devices:      e.devices,
		Issuer:       e.issuer,
		Mail:         e.mail,
		Sessions:     e.sessionSvc,
		OTPTTL:       5 * time.Minute,
		OTPDigits:    6,
		MaxAttempts:  5,
		LockDuration: 15 * time.Minute,
		DeviceTTL:    30 * 24 * time.Hour,
		Now:          clock,
	}
	e.auth = &AuthServiceImpl{
		Users:     e.users,
		Tokens:    e.tokens,
		Devices:   e.devices,
		Hasher:    fakeHasher{},
		Issuer:    e.issuer,
		Mail:      e.mail,
		Sessions:  e.sessionSvc,
		Mfa:       e.mfa,
		BaseURL:   "http://localhost:8081",
		ResetTTL:  10 * time.Minute,
		VerifyTTL: 24 * time.Hour,
		Now:       clock,
	}
	return e
}

func (e *testEnv) addUser(t *testing.T, email, password string, verified bool) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:         email,
		PasswordHash:  "hashed:" + password,
		Role:          domain.RoleUser,
		EmailVerified: verified,
		MfaEnabled:    true,
		CreatedAt:     e.now,
		UpdatedAt:     e.now,
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// otpFor returns the single live OTP code stored for an email.
func (e *testEnv) otpFor(t *testing.T, email string) string {
	t.Helper()
	live := e.tokens.live(email, domain.PurposeOTP)
	if len(live) != 1 {
		t.Fatalf("expected exactly one live otp for %s, got %d", email, len(live))
	}
	return live[0].Value
}
