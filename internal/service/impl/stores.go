package impl

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
)

// Narrow store interfaces, satisfied by the sub-stores of
// identity/internal/store and by in-memory fakes in tests.

type userStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetEmailVerified(ctx context.Context, userID uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
}

type sessionStore interface {
	Create(ctx context.Context, sess *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type verificationTokenStore interface {
	Create(ctx context.Context, tok *domain.VerificationToken) error
	Supersede(ctx context.Context, identifier string, purpose domain.TokenPurpose) (int64, error)
	Consume(ctx context.Context, identifier, value string, purpose domain.TokenPurpose, now time.Time) (*domain.VerificationToken, error)
	ConsumeByValue(ctx context.Context, value string, purpose domain.TokenPurpose, now time.Time) (*domain.VerificationToken, error)
}

type otpAttemptStore interface {
	Get(ctx context.Context, email, ip string) (*domain.OtpAttempt, error)
	RecordFailure(ctx context.Context, email, ip string, maxAttempts int, lockFor time.Duration, now time.Time) (*domain.OtpAttempt, error)
	Delete(ctx context.Context, email, ip string) error
}

type trustedDeviceStore interface {
	Create(ctx context.Context, dev *domain.TrustedDevice) error
	GetByUserAndHash(ctx context.Context, userID uuid.UUID, secretHash string, now time.Time) (*domain.TrustedDevice, error)
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type linkedAccountStore interface {
	Get(ctx context.Context, provider domain.Provider, providerAccountID string) (*domain.LinkedAccount, error)
	Create(ctx context.Context, link *domain.LinkedAccount) error
}
