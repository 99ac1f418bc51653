package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/argon2"
)

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

var DefaultParams = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
}

const saltLen = 16

var errMalformedDigest = errors.New("malformed password digest")

// PasswordHasher hashes passwords with argon2id. The cost parameters are
// encoded into every digest, so raising them only affects new hashes.
type PasswordHasher struct {
	params Argon2Params

	dummyOnce   sync.Once
	dummyDigest string
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	if params.KeyLen == 0 {
		params.KeyLen = DefaultParams.KeyLen
	}
	if params.Threads == 0 {
		params.Threads = 1
	}
	return &PasswordHasher{params: params}
}

func GenerateSalt() (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(salt), nil
}

func (h *PasswordHasher) Hash(salt, password string) (string, error) {
	if salt == "" {
		return "", errors.New("empty salt")
	}
	p := h.params
	key := argon2.IDKey([]byte(password), []byte(salt), p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$t=%d,m=%d,p=%d$%s",
		argon2.Version, p.Time, p.Memory, p.Threads,
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify recomputes the digest with the parameters it was created with and
// compares in constant time.
func (h *PasswordHasher) Verify(salt, password, digest string) bool {
	params, key, err := parseDigest(digest)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), []byte(salt), params.Time, params.Memory, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(key, computed) == 1
}

const dummySalt = "AAAAAAAAAAAAAAAAAAAAAA"

// VerifyMissing spends the cost of a full verification against a fixed
// digest and reports false. Callers use it when no account matches, so
// lookups of unknown and known accounts take the same time.
func (h *PasswordHasher) VerifyMissing(password string) bool {
	h.dummyOnce.Do(func() {
		h.dummyDigest, _ = h.Hash(dummySalt, "clockpoint-no-account")
	})
	h.Verify(dummySalt, password, h.dummyDigest)
	return false
}

func parseDigest(digest string) (Argon2Params, []byte, error) {
	// "", "argon2id", "v=19", "t=3,m=65536,p=2", "<key>"
	parts := strings.Split(digest, "$")
	if len(parts) != 5 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, errMalformedDigest
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Argon2Params{}, nil, errMalformedDigest
	}

	var params Argon2Params
	for _, kv := range strings.Split(parts[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return Argon2Params{}, nil, errMalformedDigest
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return Argon2Params{}, nil, errMalformedDigest
		}
		switch name {
		case "t":
			params.Time = uint32(n)
		case "m":
			params.Memory = uint32(n)
		case "p":
			if n > 255 {
				return Argon2Params{}, nil, errMalformedDigest
			}
			params.Threads = uint8(n)
		default:
			return Argon2Params{}, nil, errMalformedDigest
		}
	}
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return Argon2Params{}, nil, errMalformedDigest
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, errMalformedDigest
	}
	params.KeyLen = uint32(len(key))
	return params, key, nil
}

// Password strength warning codes.
const (
	WarnTooShort      = "password_too_short"
	WarnNoUpper       = "password_no_uppercase"
	WarnNoLower       = "password_no_lowercase"
	WarnNoDigit       = "password_no_digit"
	WarnNoSpecial     = "password_no_special_character"
	WarnHasWhitespace = "password_has_whitespace"
)

const minPasswordLength = 8

// ValidateStrength returns the warning codes password violates, or nil.
func ValidateStrength(password string) []string {
	var upper, lower, digit, special, space bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r) && !unicode.IsNumber(r):
			special = true
		}
	}

	var warnings []string
	if len([]rune(password)) < minPasswordLength {
		warnings = append(warnings, WarnTooShort)
	}
	if !upper {
		warnings = append(warnings, WarnNoUpper)
	}
	if !lower {
		warnings = append(warnings, WarnNoLower)
	}
	if !digit {
		warnings = append(warnings, WarnNoDigit)
	}
	if !special {
		warnings = append(warnings, WarnNoSpecial)
	}
	if space {
		warnings = append(warnings, WarnHasWhitespace)
	}
	return warnings
}
