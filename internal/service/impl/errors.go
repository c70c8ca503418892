package impl

import "errors"

// Validation failures caught before any credential work happens. The
// transport layer maps these to 400 responses.
var (
	ErrEmptyCredential = errors.New("empty credential(s)")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrPasswordLength  = errors.New("password too short")
)

// IsValidation reports whether err is a request-shape problem rather than an
// authentication outcome.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyCredential) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrPasswordLength)
}
