// Package password hashes credentials with argon2id and verifies candidates
// in constant time. The encoded form carries algorithm parameters and salt so
// hashes survive parameter changes.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost   uint32 = 3
	memoryCost uint32 = 64 * 1024
	threads    uint8  = 2
	keyLen     uint32 = 32
	saltLen           = 16
)

// ErrCorruptHash reports a stored hash that cannot be parsed. It is a data
// corruption signal, not a failed verification.
var ErrCorruptHash = errors.New("password: corrupt credential hash")

// Hash returns an encoded argon2id hash of the plaintext.
func Hash(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(plaintext), salt, timeCost, memoryCost, threads, keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memoryCost,
		timeCost,
		threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify recomputes the hash with the stored parameters and compares in
// constant time. A malformed encoded hash yields ErrCorruptHash.
func Verify(plaintext, encoded string) (bool, error) {
	params, salt, expected, err := decode(encoded)
	if err != nil {
		return false, err
	}

	actual := argon2.IDKey([]byte(plaintext), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

type hashParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decode(encoded string) (hashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return hashParams{}, nil, nil, ErrCorruptHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return hashParams{}, nil, nil, ErrCorruptHash
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return hashParams{}, nil, nil, ErrCorruptHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return hashParams{}, nil, nil, ErrCorruptHash
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(sum) == 0 {
		return hashParams{}, nil, nil, ErrCorruptHash
	}

	return params, salt, sum, nil
}

func parseParams(value string) (hashParams, error) {
	var p hashParams
	for _, field := range strings.Split(value, ",") {
		key, raw, ok := strings.Cut(field, "=")
		if !ok {
			return p, ErrCorruptHash
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return p, ErrCorruptHash
		}
		switch key {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return p, ErrCorruptHash
			}
			p.threads = uint8(n)
		default:
			return p, ErrCorruptHash
		}
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, ErrCorruptHash
	}
	return p, nil
}
