package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/netutil"
	"identity/internal/service"
	"identity/internal/store"
)

// Raw session tokens are 32 random bytes; storage keeps the sha256
// fingerprint only.
const sessionTokenBytes = 32

var _ service.SessionService = (*SessionServiceImpl)(nil)

type SessionServiceImpl struct {
	Sessions sessionStore
	Issuer   service.TokenIssuer
	TTL      time.Duration

	Now func() time.Time
}

func NewSessionService(st *store.Store, issuer service.TokenIssuer, ttl time.Duration) *SessionServiceImpl {
	return &SessionServiceImpl{
		Sessions: st.Sessions(),
		Issuer:   issuer,
		TTL:      ttl,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionServiceImpl) Create(ctx context.Context, userID domain.UserID, ip, ua string) (*dto.SessionResult, error) {
	raw, err := s.Issuer.RandomToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.Now()
	sess := &domain.Session{
		UserID:    userID,
		TokenHash: s.Issuer.Fingerprint(raw),
		ExpiresAt: now.Add(s.TTL),
		CreatedAt: now,
		IP:        normalizeIP(ip),
		UserAgent: netutil.TruncateUserAgent(ua),
	}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	slog.Info("session created", "session_id", sess.ID, "user_id", userID)
	return &dto.SessionResult{Session: sess, Token: raw}, nil
}

func (s *SessionServiceImpl) Get(ctx context.Context, rawToken string) (*domain.Session, error) {
	if rawToken == "" {
		return nil, domain.ErrUnauthenticated
	}
	sess, err := s.Sessions.GetByTokenHash(ctx, s.Issuer.Fingerprint(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if sess.Expired(s.Now()) {
		// Expired rows are inert; purge so they cannot accumulate.
		if _, err := s.Sessions.DeleteByTokenHash(ctx, sess.TokenHash); err != nil {
			slog.Warn("purge expired session failed", "session_id", sess.ID, "error", err)
		}
		return nil, domain.ErrUnauthenticated
	}
	return sess, nil
}

func (s *SessionServiceImpl) Revoke(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	// Revoking an already-absent session is not an error; the client cookie
	// gets cleared either way.
	_, err := s.Sessions.DeleteByTokenHash(ctx, s.Issuer.Fingerprint(rawToken))
	return err
}

func (s *SessionServiceImpl) RevokeAll(ctx context.Context, userID domain.UserID) error {
	n, err := s.Sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	slog.Info("revoked all sessions", "user_id", userID, "count", n)
	return nil
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return strings.TrimSpace(ip)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
