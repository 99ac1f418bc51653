package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"clockpoint/internal/apperr"
	"clockpoint/internal/ids"
	"clockpoint/internal/models"
)

var (
	ErrTokenMissing         = apperr.New(apperr.KindUnauthorized, "token_missing", "token is missing")
	ErrTokenMalformed       = apperr.New(apperr.KindUnauthorized, "token_malformed", "token is malformed")
	ErrTokenExpired         = apperr.New(apperr.KindUnauthorized, "token_expired", "token has expired")
	ErrTokenNotFound        = apperr.New(apperr.KindNotFound, "token_not_found", "token not found or expired")
	ErrTokenSubjectMismatch = apperr.New(apperr.KindUnauthorized, "token_subject_mismatch", "token subject mismatch")
)

// Claims is the signed body of every token the service mints.
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Payload is the decoded, typed view of Claims.
type Payload struct {
	ID        string
	UserID    string
	Email     string
	Username  string
	Subject   models.TokenSubject
	ExpiresAt time.Time
}

type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	var method jwt.SigningMethod
	switch strings.ToUpper(algorithm) {
	case "HS256", "":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	return &TokenCodec{secret: []byte(secret), method: method, now: time.Now}, nil
}

// WithClock overrides the time source. Used by tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *TokenCodec) Now() time.Time { return c.now() }

// Issue mints a token for subject valid for ttl.
func (c *TokenCodec) Issue(user *models.User, subject models.TokenSubject, ttl time.Duration) (string, Payload, error) {
	p := Payload{
		ID:        ids.New(),
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Subject:   subject,
		ExpiresAt: c.now().Add(ttl).Truncate(time.Second),
	}
	token, err := c.Encode(p)
	if err != nil {
		return "", Payload{}, err
	}
	return token, p, nil
}

func (c *TokenCodec) Encode(p Payload) (string, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	claims := Claims{
		UserID:   p.UserID,
		Email:    p.Email,
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.ID,
			Subject:   string(p.Subject),
			IssuedAt:  jwt.NewNumericDate(c.now()),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature, algorithm and expiry of raw.
func (c *TokenCodec) Decode(raw string) (Payload, error) {
	if strings.TrimSpace(raw) == "" {
		return Payload{}, ErrTokenMissing
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Payload{}, ErrTokenExpired
	case err != nil || !token.Valid:
		return Payload{}, ErrTokenMalformed.Wrap(err)
	}
	if claims.UserID == "" || claims.Subject == "" {
		return Payload{}, ErrTokenMalformed
	}

	return Payload{
		ID:        claims.ID,
		UserID:    claims.UserID,
		Email:     claims.Email,
		Username:  claims.Username,
		Subject:   models.TokenSubject(claims.Subject),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// DecodeSubject decodes raw and requires it to carry subject.
func (c *TokenCodec) DecodeSubject(raw string, subject models.TokenSubject) (Payload, error) {
	p, err := c.Decode(raw)
	if err != nil {
		return Payload{}, err
	}
	if p.Subject != subject {
		return Payload{}, ErrTokenSubjectMismatch
	}
	return p, nil
}
