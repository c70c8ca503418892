package service

// PasswordHasher is the one-way credential hash. identity/internal/password
// provides the argon2id implementation.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(encoded, plaintext string) bool
	NeedsRehash(encoded string) bool
}

// TokenIssuer generates opaque random secrets and their lookup fingerprints.
// identity/internal/token provides the implementation.
type TokenIssuer interface {
	RandomToken(byteLength int) (string, error)
	RandomOTP(digits int) (string, error)
	Fingerprint(raw string) string
}
