package domain

import "time"

// Session is a server-issued bearer credential. Only the sha256 fingerprint
// of the raw token is persisted; the raw value is returned once at creation.
type Session struct {
	ID        SessionID `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID    `gorm:"type:uuid;index" db:"user_id"`
	TokenHash string    `gorm:"type:text;uniqueIndex:ux_sessions_token_hash" db:"token_hash"`
	ExpiresAt time.Time `gorm:"not null" db:"expires_at"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
	IP        string    `gorm:"type:inet" db:"ip"`
	UserAgent string    `gorm:"type:text" db:"user_agent"`
}

func (Session) TableName() string { return "sessions" }

// Expired reports whether the session must no longer be trusted. A row that
// is still present in storage but past its expiry is inert.
func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// TrustedDevice lets a client that previously completed an OTP challenge skip
// the challenge for a bounded period. Only the fingerprint of the random
// device secret is stored; the raw secret lives in an HTTP-only cookie.
type TrustedDevice struct {
	ID         DeviceID  `gorm:"type:uuid;primaryKey" db:"id"`
	UserID     UserID    `gorm:"type:uuid;index" db:"user_id"`
	SecretHash string    `gorm:"type:text;uniqueIndex:ux_trusted_devices_secret_hash" db:"secret_hash"`
	ExpiresAt  time.Time `gorm:"not null" db:"expires_at"`
	CreatedAt  time.Time `gorm:"not null" db:"created_at"`
}

func (TrustedDevice) TableName() string { return "trusted_devices" }

func (d *TrustedDevice) Expired(now time.Time) bool { return !now.Before(d.ExpiresAt) }
