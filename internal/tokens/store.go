// Package tokens persists single-use tokens in the fast store. A one-shot
// token is valid while its signature verifies, its record exists and its
// expiry lies in the future. Consumption deletes the record atomically.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clockpoint/internal/metrics"
	"clockpoint/internal/models"
	"clockpoint/internal/security"
)

const keyPrefix = "token:"

// Record is the value stored for a one-shot token. The subject-specific
// fields are only set for the subjects that carry them.
type Record struct {
	UserID    string              `json:"users_id"`
	Subject   models.TokenSubject `json:"subject"`
	ExpiresAt time.Time           `json:"expire"`

	// INVITE
	Emails []string `json:"emails,omitempty"`
	// INVITE, QR_CODE_ENTRY
	GroupID string `json:"groups_id,omitempty"`
	// QR_CODE_ENTRY
	SessionID string           `json:"clock_sessions_id,omitempty"`
	EntryType models.EntryType `json:"type,omitempty"`
}

type Store struct {
	rdb     redis.UniversalClient
	codec   *security.TokenCodec
	timeout time.Duration
}

func NewStore(rdb redis.UniversalClient, codec *security.TokenCodec, timeout time.Duration) *Store {
	return &Store{rdb: rdb, codec: codec, timeout: timeout}
}

func key(token string) string {
	return keyPrefix + token
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Issue mints a signed token for user and records it with TTL equal to its
// remaining validity. extra carries the subject-specific fields.
func (s *Store) Issue(ctx context.Context, user *models.User, subject models.TokenSubject, ttl time.Duration, extra Record) (string, Record, error) {
	if !subject.OneShot() {
		return "", Record{}, fmt.Errorf("subject %s is not one-shot", subject)
	}
	if ttl <= 0 {
		return "", Record{}, fmt.Errorf("non-positive ttl for %s token", subject)
	}

	raw, payload, err := s.codec.Issue(user, subject, ttl)
	if err != nil {
		return "", Record{}, err
	}

	rec := extra
	rec.UserID = user.ID
	rec.Subject = subject
	rec.ExpiresAt = payload.ExpiresAt

	body, err := json.Marshal(rec)
	if err != nil {
		return "", Record{}, fmt.Errorf("encode token record: %w", err)
	}

	remaining := rec.ExpiresAt.Sub(s.codec.Now())
	if remaining < time.Second {
		remaining = time.Second
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.rdb.Set(ctx, key(raw), body, remaining).Err(); err != nil {
		return "", Record{}, fmt.Errorf("store %s token: %w", subject, err)
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(subject)).Inc()
	return raw, rec, nil
}

// Claim is a consumed token. Its record no longer exists in the store; a
// caller whose follow-up work fails calls Restore to put it back.
type Claim struct {
	Token   string
	Payload security.Payload
	Record  Record

	store *Store
}

// Consume validates raw against subject and deletes its record with GETDEL.
// A missing token or one signed for another subject is reported as such;
// every other failure is ErrTokenNotFound.
func (s *Store) Consume(ctx context.Context, raw string, subject models.TokenSubject) (*Claim, error) {
	claim, err := s.consume(ctx, raw, subject)
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	metrics.TokensConsumedTotal.WithLabelValues(string(subject), result).Inc()
	return claim, err
}

func (s *Store) consume(ctx context.Context, raw string, subject models.TokenSubject) (*Claim, error) {
	payload, err := s.codec.DecodeSubject(raw, subject)
	switch {
	case errors.Is(err, security.ErrTokenMissing), errors.Is(err, security.ErrTokenSubjectMismatch):
		return nil, err
	case err != nil:
		return nil, security.ErrTokenNotFound.Wrap(err)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	body, err := s.rdb.GetDel(opCtx, key(raw)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, security.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume %s token: %w", subject, err)
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, security.ErrTokenNotFound.Wrap(err)
	}
	if rec.Subject != subject || rec.UserID != payload.UserID || !rec.ExpiresAt.After(s.codec.Now()) {
		return nil, security.ErrTokenNotFound
	}

	return &Claim{Token: raw, Payload: payload, Record: rec, store: s}, nil
}

// Restore re-inserts the consumed record for its remaining validity. It is
// a no-op once the token has expired, and never overwrites a record that
// reappeared in the meantime.
func (c *Claim) Restore(ctx context.Context) error {
	remaining := c.Record.ExpiresAt.Sub(c.store.codec.Now())
	if remaining <= 0 {
		return nil
	}
	if remaining < time.Second {
		remaining = time.Second
	}

	body, err := json.Marshal(c.Record)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}

	ctx, cancel := c.store.opContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := c.store.rdb.SetNX(ctx, key(c.Token), body, remaining).Err(); err != nil {
		return fmt.Errorf("restore %s token: %w", c.Record.Subject, err)
	}
	return nil
}
