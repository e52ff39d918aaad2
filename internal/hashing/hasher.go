package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"auth-notify-service/internal/config"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrUnknownPepper       = errors.New("pepper version not found")
)

// legacySuffix is appended to the plaintext by the digest used before
// argon2id was introduced. Such digests are accepted once and re-hashed.
const legacySuffix = "notreallyhashed"

const argon2Prefix = "$argon2id$"

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value   string
	Version int
}

// Hasher produces and verifies argon2id password hashes in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=2,k=1$<salt>$<hash>
//
// k is the pepper version, so rotating PASSWORD_PEPPER keeps old hashes
// verifiable through PASSWORD_PEPPER_PREVIOUS until they are re-hashed.
type Hasher struct {
	params  Argon2Params
	current Pepper
	peppers map[int]string
}

func NewHasher(cfg *config.Config) *Hasher {
	params := Argon2Params{
		Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
		SaltLength:  16,
		KeyLength:   32,
	}
	version := cfg.Hashing.PepperVersion
	if version < 1 {
		version = 1
	}

	h := &Hasher{
		params:  params,
		current: Pepper{Value: cfg.Hashing.Pepper, Version: version},
		peppers: map[int]string{version: cfg.Hashing.Pepper},
	}
	if version > 1 {
		h.peppers[version-1] = cfg.Hashing.PreviousPepper
	}
	return h
}

// HashPassword returns the encoded argon2id hash of password.
func (h *Hasher) HashPassword(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password+h.current.Value),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d,k=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		h.current.Version,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks password against encoded. needsRehash is true when
// the stored value matched but uses the legacy digest, an older pepper, or
// different argon2 parameters.
func (h *Hasher) VerifyPassword(password, encoded string) (match bool, needsRehash bool, err error) {
	if !strings.HasPrefix(encoded, argon2Prefix) {
		legacy := password + legacySuffix
		ok := subtle.ConstantTimeCompare([]byte(legacy), []byte(encoded)) == 1
		return ok, ok, nil
	}

	decoded, err := decodeHash(encoded)
	if err != nil {
		return false, false, err
	}

	pepper, ok := h.peppers[decoded.pepperVersion]
	if !ok {
		return false, false, ErrUnknownPepper
	}

	computed := argon2.IDKey(
		[]byte(password+pepper),
		decoded.salt,
		decoded.params.Iterations,
		decoded.params.Memory,
		decoded.params.Parallelism,
		uint32(len(decoded.key)),
	)
	if subtle.ConstantTimeCompare(computed, decoded.key) != 1 {
		return false, false, nil
	}

	stale := decoded.pepperVersion != h.current.Version ||
		decoded.params.Memory != h.params.Memory ||
		decoded.params.Iterations != h.params.Iterations ||
		decoded.params.Parallelism != h.params.Parallelism
	return true, stale, nil
}

type decodedHash struct {
	params        Argon2Params
	pepperVersion int
	salt          []byte
	key           []byte
}

func decodeHash(encoded string) (*decodedHash, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..,k=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	d := &decodedHash{}
	var parallelism int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d,k=%d",
		&d.params.Memory, &d.params.Iterations, &parallelism, &d.pepperVersion); err != nil {
		return nil, ErrInvalidHash
	}
	if parallelism < 1 || parallelism > 255 || d.params.Iterations < 1 {
		return nil, ErrInvalidHash
	}
	d.params.Parallelism = uint8(parallelism)

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, ErrInvalidHash
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, ErrInvalidHash
	}
	if len(d.salt) == 0 || len(d.key) == 0 {
		return nil, ErrInvalidHash
	}
	d.params.SaltLength = uint32(len(d.salt))
	d.params.KeyLength = uint32(len(d.key))
	return d, nil
}
