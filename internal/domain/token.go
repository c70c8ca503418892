package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenPurpose separates the three single-use token flows that share the
// verification_tokens table.
type TokenPurpose string

const (
	PurposeEmailVerify   TokenPurpose = "email_verify"
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeOTP           TokenPurpose = "otp"
)

// VerificationToken is single-use: consumed (deleted) on successful
// redemption. Issuing a new token for the same (identifier, purpose)
// supersedes any previously issued one.
type VerificationToken struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" db:"id"`
	Identifier string       `gorm:"type:citext;index:ix_verification_tokens_identifier" db:"identifier"`
	Value      string       `gorm:"type:text;index:ix_verification_tokens_value" db:"value"`
	Purpose    TokenPurpose `gorm:"type:text;not null" db:"purpose"`
	ExpiresAt  time.Time    `gorm:"not null" db:"expires_at"`
	CreatedAt  time.Time    `gorm:"not null" db:"created_at"`
}

func (VerificationToken) TableName() string { return "verification_tokens" }

// OtpAttempt counts consecutive failed OTP submissions per (email, ip) and
// records when the pair was locked out. Deleted on a successful verification.
type OtpAttempt struct {
	Email     string     `gorm:"type:citext;primaryKey" db:"email"`
	IP        string     `gorm:"type:text;primaryKey" db:"ip"`
	Attempts  int        `gorm:"not null;default:0" db:"attempts"`
	LockedAt  *time.Time `db:"locked_at"`
	CreatedAt time.Time  `gorm:"not null" db:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" db:"updated_at"`
}

func (OtpAttempt) TableName() string { return "otp_attempts" }

// Locked reports whether the lockout window is still in effect.
func (a *OtpAttempt) Locked(now time.Time, lockFor time.Duration) bool {
	return a.LockedAt != nil && now.Sub(*a.LockedAt) < lockFor
}
