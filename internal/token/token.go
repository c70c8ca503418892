package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Issuer generates the opaque random values the rest of the service hands
// out: session tokens, verification and reset tokens, trusted-device secrets,
// OAuth state, and numeric OTP codes.
type Issuer struct{}

func NewIssuer() *Issuer { return &Issuer{} }

// RandomToken returns byteLength cryptographically random bytes, hex encoded.
func (i *Issuer) RandomToken(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RandomOTP returns a uniformly distributed numeric code, left-zero-padded to
// the requested number of digits.
func (i *Issuer) RandomOTP(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// Fingerprint is the one-way hash used to persist bearer secrets (session
// tokens, trusted-device secrets) without keeping the raw value server-side.
func (i *Issuer) Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
