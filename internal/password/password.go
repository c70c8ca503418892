package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are encoded into every hash so verification always re-derives with
// the parameters the hash was created with, even after a policy bump.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var ErrEmptyPassword = errors.New("empty password")

type Hasher struct {
	cur Params
}

// NewHasher returns an argon2id hasher with the current cost policy.
func NewHasher() *Hasher {
	return &Hasher{cur: Params{
		Time:    3,
		Memory:  64 * 1024, // 64 MiB
		Threads: 1,
		KeyLen:  32,
		SaltLen: 16,
	}}
}

// Hash derives an argon2id digest with a fresh random salt and encodes it in
// PHC string format: $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, h.cur.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.cur.Time, h.cur.Memory, h.cur.Threads, h.cur.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.cur.Memory, h.cur.Time, h.cur.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the parameters stored in the encoding and
// compares in constant time. Malformed digests verify as false, never panic.
func (h *Hasher) Verify(encoded, plaintext string) bool {
	params, salt, key, err := decode(encoded)
	if err != nil || plaintext == "" {
		return false
	}
	derived := argon2.IDKey([]byte(plaintext), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

// NeedsRehash reports whether the digest was produced under an older cost
// policy and should be transparently re-hashed on the next successful login.
func (h *Hasher) NeedsRehash(encoded string) bool {
	params, salt, key, err := decode(encoded)
	if err != nil {
		return true
	}
	return params.Time != h.cur.Time ||
		params.Memory != h.cur.Memory ||
		params.Threads != h.cur.Threads ||
		uint32(len(key)) != h.cur.KeyLen ||
		uint32(len(salt)) != h.cur.SaltLen
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, errors.New("malformed digest")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, err
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, nil, err
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, err
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, err
	}
	if len(salt) == 0 || len(key) == 0 {
		return Params{}, nil, nil, errors.New("malformed digest")
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
