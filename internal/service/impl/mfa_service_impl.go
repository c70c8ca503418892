package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/mailer"
	"identity/internal/observability/metrics"
	"identity/internal/service"
	"identity/internal/store"
)

const trustedDeviceSecretBytes = 32

var _ service.MfaService = (*MfaServiceImpl)(nil)

type MfaServiceImpl struct {
	Users    userStore
	Tokens   verificationTokenStore
	Attempts otpAttemptStore
	Devices  trustedDeviceStore
	Issuer   service.TokenIssuer
	Mail     mailer.Mailer
	Sessions service.SessionService

	OTPTTL       time.Duration
	OTPDigits    int
	MaxAttempts  int
	LockDuration time.Duration
	DeviceTTL    time.Duration

	Now func() time.Time
}

func NewMfaService(
	st *store.Store,
	issuer service.TokenIssuer,
	mail mailer.Mailer,
	sessions service.SessionService,
	otpTTL time.Duration, otpDigits, maxAttempts int,
	lockDuration, deviceTTL time.Duration,
) *MfaServiceImpl {
	return &MfaServiceImpl{
		Users:        st.Users(),
		Tokens:       st.VerificationTokens(),
		Attempts:     st.OtpAttempts(),
		Devices:      st.TrustedDevices(),
		Issuer:       issuer,
		Mail:         mail,
		Sessions:     sessions,
		OTPTTL:       otpTTL,
		OTPDigits:    otpDigits,
		MaxAttempts:  maxAttempts,
		LockDuration: lockDuration,
		DeviceTTL:    deviceTTL,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// IssueChallenge stores a fresh OTP for the email and mails it. Any code
// issued earlier for the same email is superseded first, so at most one code
// is redeemable at any moment.
func (m *MfaServiceImpl) IssueChallenge(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	now := m.Now()

	if _, err := m.Tokens.Supersede(ctx, email, domain.PurposeOTP); err != nil {
		return fmt.Errorf("supersede otp codes: %w", err)
	}
	code, err := m.Issuer.RandomOTP(m.OTPDigits)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	tok := &domain.VerificationToken{
		Identifier: email,
		Value:      code,
		Purpose:    domain.PurposeOTP,
		ExpiresAt:  now.Add(m.OTPTTL),
		CreatedAt:  now,
	}
	if err := m.Tokens.Create(ctx, tok); err != nil {
		return fmt.Errorf("persist otp: %w", err)
	}
	if err := m.Mail.Send(ctx, mailer.OTPMessage(email, code)); err != nil {
		return fmt.Errorf("send otp mail: %w", err)
	}
	slog.Info("otp challenge issued", "email", email)
	return nil
}

// Verify runs the OTP state machine: lockout check, then a single-use code
// redemption, then session issuance. Wrong guesses increment the per
// (email, ip) counter atomically; the counter resets only on success.
func (m *MfaServiceImpl) Verify(ctx context.Context, r dto.OtpVerifyRequest, ip, ua string) (*dto.MfaResult, error) {
	result := "failure"
	defer func() {
		metrics.OtpVerificationsTotal.WithLabelValues(result).Inc()
	}()

	email := normalizeEmail(r.Email)
	ip = normalizeIP(ip)
	now := m.Now()

	// 1. A locked (email, ip) pair is rejected before the OTP store is
	// consulted at all.
	att, err := m.Attempts.Get(ctx, email, ip)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("otp attempt lookup: %w", err)
	}
	if att != nil && att.Locked(now, m.LockDuration) {
		result = "locked"
		return nil, domain.ErrOTPLocked
	}

	// 2. Redeem the code. Consume is a conditional delete, so a code can
	// succeed at most once even under concurrent submissions.
	if _, err := m.Tokens.Consume(ctx, email, r.Otp, domain.PurposeOTP, now); err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("otp redeem: %w", err)
		}
		failed, ferr := m.Attempts.RecordFailure(ctx, email, ip, m.MaxAttempts, m.LockDuration, now)
		if ferr != nil {
			return nil, fmt.Errorf("record otp failure: %w", ferr)
		}
		if failed.Locked(now, m.LockDuration) {
			result = "locked"
			slog.Warn("otp lockout triggered", "email", email, "ip", ip, "attempts", failed.Attempts)
			return nil, domain.ErrOTPLocked
		}
		return nil, domain.ErrInvalidOTP
	}

	// 3. Success: full counter reset for this (email, ip) pair.
	if err := m.Attempts.Delete(ctx, email, ip); err != nil {
		slog.Warn("otp attempt reset failed", "email", email, "ip", ip, "error", err)
	}

	user, err := m.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	sess, err := m.Sessions.Create(ctx, user.ID, ip, ua)
	if err != nil {
		return nil, err
	}
	metrics.SessionsIssuedTotal.WithLabelValues("otp").Inc()

	out := &dto.MfaResult{User: user, Session: sess}
	if r.RememberDevice {
		dev, err := m.rememberDevice(ctx, user.ID, now)
		if err != nil {
			// A session exists; losing the bypass credential is recoverable.
			slog.Warn("trusted device issuance failed", "user_id", user.ID, "error", err)
		} else {
			out.TrustedDevice = dev
		}
	}
	result = "success"
	return out, nil
}

func (m *MfaServiceImpl) rememberDevice(ctx context.Context, userID domain.UserID, now time.Time) (*dto.TrustedDeviceResult, error) {
	secret, err := m.Issuer.RandomToken(trustedDeviceSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate device secret: %w", err)
	}
	dev := &domain.TrustedDevice{
		UserID:     userID,
		SecretHash: m.Issuer.Fingerprint(secret),
		ExpiresAt:  now.Add(m.DeviceTTL),
		CreatedAt:  now,
	}
	if err := m.Devices.Create(ctx, dev); err != nil {
		return nil, fmt.Errorf("persist trusted device: %w", err)
	}
	return &dto.TrustedDeviceResult{Secret: secret, ExpiresAt: dev.ExpiresAt}, nil
}

// TryTrustedBypass issues a session directly when the presented device secret
// fingerprints to a live trusted device owned by this user. No match is not
// an error; the caller falls through to IssueChallenge.
func (m *MfaServiceImpl) TryTrustedBypass(ctx context.Context, userID domain.UserID, rawSecret, ip, ua string) (*dto.SessionResult, error) {
	if rawSecret == "" {
		return nil, nil
	}
	_, err := m.Devices.GetByUserAndHash(ctx, userID, m.Issuer.Fingerprint(rawSecret), m.Now())
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("trusted device lookup: %w", err)
	}
	sess, err := m.Sessions.Create(ctx, userID, ip, ua)
	if err != nil {
		return nil, err
	}
	metrics.SessionsIssuedTotal.WithLabelValues("trusted_device").Inc()
	return sess, nil
}
