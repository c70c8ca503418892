package dto

import (
	"time"

	"identity/internal/domain"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// TrustedDeviceSecret is read from the trusted_device cookie by the
	// transport layer, never from the request body.
	TrustedDeviceSecret string `json:"-"`
}

// LoginResult is either a completed login (Session set) or a pending MFA
// challenge (MfaRequired true, no session yet).
type LoginResult struct {
	MfaRequired bool
	User        *domain.User
	Session     *SessionResult
}

type OtpVerifyRequest struct {
	Email          string `json:"email"`
	Otp            string `json:"otp"`
	RememberDevice bool   `json:"rememberDevice,omitempty"`
}

// MfaResult is returned on a successful OTP verification. TrustedDevice is
// non-nil only when the caller asked to remember this device.
type MfaResult struct {
	User          *domain.User
	Session       *SessionResult
	TrustedDevice *TrustedDeviceResult
}

type TrustedDeviceResult struct {
	Secret    string
	ExpiresAt time.Time
}
