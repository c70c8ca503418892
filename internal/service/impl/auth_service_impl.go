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
	"identity/internal/mailer"
	"identity/internal/observability/metrics"
	"identity/internal/service"
	"identity/internal/store"
)

const (
	minPasswordLength = 8
	resetTokenBytes   = 32
	verifyTokenBytes  = 32
)

var _ service.AuthService = (*AuthServiceImpl)(nil)

type AuthServiceImpl struct {
	Users    userStore
	Tokens   verificationTokenStore
	Devices  trustedDeviceStore
	Hasher   service.PasswordHasher
	Issuer   service.TokenIssuer
	Mail     mailer.Mailer
	Sessions service.SessionService
	Mfa      service.MfaService

	BaseURL   string
	ResetTTL  time.Duration
	VerifyTTL time.Duration

	Now func() time.Time
}

func NewAuthService(
	st *store.Store,
	hasher service.PasswordHasher,
	issuer service.TokenIssuer,
	mail mailer.Mailer,
	sessions service.SessionService,
	mfa service.MfaService,
	baseURL string,
	resetTTL, verifyTTL time.Duration,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		Users:     st.Users(),
		Tokens:    st.VerificationTokens(),
		Devices:   st.TrustedDevices(),
		Hasher:    hasher,
		Issuer:    issuer,
		Mail:      mail,
		Sessions:  sessions,
		Mfa:       mfa,
		BaseURL:   baseURL,
		ResetTTL:  resetTTL,
		VerifyTTL: verifyTTL,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified identity and mails a verification link. It
// never logs the new user in.
func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest) (*dto.RegisterResponse, error) {
	result := "failure"
	defer func() {
		metrics.RegistrationsTotal.WithLabelValues(result).Inc()
	}()

	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		return nil, ErrEmptyCredential
	}
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(r.Password) < minPasswordLength {
		return nil, ErrPasswordLength
	}

	hash, err := a.Hasher.Hash(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := a.Now()
	user := &domain.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(r.Name),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		MfaEnabled:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := a.sendVerification(ctx, email, now); err != nil {
		// The account exists; the user can request a fresh link.
		slog.Error("verification mail failed", "email", email, "error", err)
	}

	slog.Info("user registered", "user_id", user.ID, "email", email)
	result = "success"
	return &dto.RegisterResponse{
		UserID:                    user.ID.String(),
		RequiresEmailVerification: true,
	}, nil
}

func (a *AuthServiceImpl) sendVerification(ctx context.Context, email string, now time.Time) error {
	if _, err := a.Tokens.Supersede(ctx, email, domain.PurposeEmailVerify); err != nil {
		return fmt.Errorf("supersede verification tokens: %w", err)
	}
	value, err := a.Issuer.RandomToken(verifyTokenBytes)
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	tok := &domain.VerificationToken{
		Identifier: email,
		Value:      value,
		Purpose:    domain.PurposeEmailVerify,
		ExpiresAt:  now.Add(a.VerifyTTL),
		CreatedAt:  now,
	}
	if err := a.Tokens.Create(ctx, tok); err != nil {
		return fmt.Errorf("persist verification token: %w", err)
	}
	return a.Mail.Send(ctx, mailer.VerificationMessage(email, a.BaseURL, value))
}

// Login validates the password, then either completes via trusted-device
// bypass or parks the attempt behind an OTP challenge. The same
// INVALID_CREDENTIALS comes back for unknown emails, passwordless accounts
// and wrong passwords; verification status is only revealed once the
// password checks out.
func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResult, error) {
	result := "failure"
	defer func() {
		metrics.LoginsTotal.WithLabelValues(result).Inc()
	}()

	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := a.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.HasPassword() {
		return nil, domain.ErrInvalidCredentials
	}
	if !a.Hasher.Verify(user.PasswordHash, r.Password) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, domain.ErrEmailNotVerified
	}

	if a.Hasher.NeedsRehash(user.PasswordHash) {
		if newHash, err := a.Hasher.Hash(r.Password); err == nil {
			if err := a.Users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
				slog.Warn("password rehash failed", "user_id", user.ID, "error", err)
			}
		}
	}

	if sess, err := a.Mfa.TryTrustedBypass(ctx, user.ID, r.TrustedDeviceSecret, ip, ua); err != nil {
		return nil, err
	} else if sess != nil {
		result = "success"
		slog.Info("login completed via trusted device", "user_id", user.ID)
		return &dto.LoginResult{MfaRequired: false, User: user, Session: sess}, nil
	}

	if err := a.Mfa.IssueChallenge(ctx, email); err != nil {
		return nil, err
	}
	result = "mfa_pending"
	return &dto.LoginResult{MfaRequired: true, User: user}, nil
}

// RequestPasswordReset deliberately reports success for unknown emails so the
// endpoint cannot be used to enumerate accounts.
func (a *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	if _, err := a.Users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			slog.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	now := a.Now()
	if _, err := a.Tokens.Supersede(ctx, email, domain.PurposePasswordReset); err != nil {
		return fmt.Errorf("supersede reset tokens: %w", err)
	}
	value, err := a.Issuer.RandomToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	tok := &domain.VerificationToken{
		Identifier: email,
		Value:      value,
		Purpose:    domain.PurposePasswordReset,
		ExpiresAt:  now.Add(a.ResetTTL),
		CreatedAt:  now,
	}
	if err := a.Tokens.Create(ctx, tok); err != nil {
		return fmt.Errorf("persist reset token: %w", err)
	}
	if err := a.Mail.Send(ctx, mailer.PasswordResetMessage(email, a.BaseURL, value)); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	slog.Info("password reset issued", "email", email)
	return nil
}

// ResetPassword redeems a reset token once, swaps the hash, and revokes every
// live session for the identity so a stolen session does not outlive the
// reset.
func (a *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return domain.ErrInvalidToken
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordLength
	}

	tok, err := a.Tokens.ConsumeByValue(ctx, token, domain.PurposePasswordReset, a.Now())
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("redeem reset token: %w", err)
	}

	user, err := a.Users.GetByEmail(ctx, tok.Identifier)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("load user: %w", err)
	}

	hash, err := a.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := a.Sessions.RevokeAll(ctx, user.ID); err != nil {
		slog.Warn("session revocation after reset failed", "user_id", user.ID, "error", err)
	}
	// A reset also invalidates every remembered device.
	if _, err := a.Devices.DeleteAllForUser(ctx, user.ID); err != nil {
		slog.Warn("trusted device revocation after reset failed", "user_id", user.ID, "error", err)
	}
	slog.Info("password reset completed", "user_id", user.ID)
	return nil
}

func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrInvalidToken
	}
	now := a.Now()
	tok, err := a.Tokens.ConsumeByValue(ctx, token, domain.PurposeEmailVerify, now)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("redeem verification token: %w", err)
	}
	user, err := a.Users.GetByEmail(ctx, tok.Identifier)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := a.Users.SetEmailVerified(ctx, user.ID, now); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	slog.Info("email verified", "user_id", user.ID)
	return nil
}

func (a *AuthServiceImpl) CurrentUser(ctx context.Context, rawToken string) (*domain.User, error) {
	sess, err := a.Sessions.Get(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	user, err := a.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (a *AuthServiceImpl) Logout(ctx context.Context, rawToken string) error {
	return a.Sessions.Revoke(ctx, rawToken)
}

func (a *AuthServiceImpl) LogoutAll(ctx context.Context, userID domain.UserID) error {
	return a.Sessions.RevokeAll(ctx, userID)
}
