package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clockpoint/internal/authz"
	"clockpoint/internal/config"
	"clockpoint/internal/events"
	"clockpoint/internal/ids"
	"clockpoint/internal/metrics"
	"clockpoint/internal/models"
	"clockpoint/internal/notify"
	"clockpoint/internal/repository"
	"clockpoint/internal/security"
	"clockpoint/internal/tokens"
)

// ClockService records IN/OUT entries through single-use QR tokens.
type ClockService struct {
	store   Store
	tokens  *tokens.Store
	codec   *security.TokenCodec
	authz   *authz.Evaluator
	effects Effects
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewClockService(
	store Store,
	tokenStore *tokens.Store,
	codec *security.TokenCodec,
	evaluator *authz.Evaluator,
	effects Effects,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *ClockService {
	return &ClockService{
		store:   store,
		tokens:  tokenStore,
		codec:   codec,
		authz:   evaluator,
		effects: effects,
		cfg:     cfg,
		log:     log,
	}
}

type QRCode struct {
	Token     string
	Group     models.Group
	Session   models.ClockSession
	Type      models.EntryType
	ExpiresAt time.Time
}

// IssueQR mints a QR_CODE_ENTRY token for one running session and entry
// type.
func (s *ClockService) IssueQR(ctx context.Context, actor models.User, groupID, sessionID string, entryType models.EntryType) (QRCode, error) {
	if !entryType.Valid() {
		return QRCode{}, ErrInvalidEntryType
	}
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermGenerateReport); err != nil {
		return QRCode{}, err
	}

	session, err := s.session(ctx, sessionID)
	if err != nil {
		return QRCode{}, err
	}
	if session.GroupID != groupID {
		return QRCode{}, ErrSessionNotFound
	}
	if session.Expired(s.codec.Now()) {
		return QRCode{}, ErrSessionExpired
	}
	group, err := s.store.Groups().GetByID(ctx, groupID)
	if errors.Is(err, repository.ErrNotFound) {
		return QRCode{}, ErrGroupNotFound
	}
	if err != nil {
		return QRCode{}, fmt.Errorf("load group: %w", err)
	}

	raw, rec, err := s.tokens.Issue(ctx, &actor, models.SubjectQRCodeEntry, s.cfg.Security.QRCodeEntryTTL, tokens.Record{
		GroupID:   groupID,
		SessionID: sessionID,
		EntryType: entryType,
	})
	if err != nil {
		return QRCode{}, fmt.Errorf("issue qr token: %w", err)
	}
	return QRCode{Token: raw, Group: group, Session: session, Type: entryType, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *ClockService) session(ctx context.Context, id string) (models.ClockSession, error) {
	session, err := s.store.Sessions().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.ClockSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.ClockSession{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// Enter records the entry carried by a scanned QR token for actor. The
// token is consumed first and put back if anything afterwards fails, so a
// rejected scan leaves it usable.
func (s *ClockService) Enter(ctx context.Context, actor models.User, raw string) (models.ClockEntry, error) {
	claim, err := s.tokens.Consume(ctx, raw, models.SubjectQRCodeEntry)
	if err != nil {
		return models.ClockEntry{}, err
	}

	entry, err := s.enter(ctx, actor, claim.Record)
	if err != nil {
		metrics.ClockEntriesTotal.WithLabelValues(string(claim.Record.EntryType), "rejected").Inc()
		if rerr := claim.Restore(ctx); rerr != nil {
			s.log.Error().Err(rerr).Str("session_id", claim.Record.SessionID).Msg("restore qr token failed")
		}
		return models.ClockEntry{}, err
	}
	metrics.ClockEntriesTotal.WithLabelValues(string(entry.Type), "ok").Inc()

	payload := map[string]any{
		"entryId":   entry.ID,
		"sessionId": claim.Record.SessionID,
		"groupId":   claim.Record.GroupID,
		"userId":    actor.ID,
		"type":      entry.Type,
		"clockAt":   entry.ClockAt,
	}
	s.effects.notify(ctx, notify.EventClockEntry, []string{actor.ID, claim.Record.UserID}, payload)
	s.effects.emit(ctx, events.ClockEntryStored, payload)
	return entry, nil
}

func (s *ClockService) enter(ctx context.Context, actor models.User, rec tokens.Record) (models.ClockEntry, error) {
	if rec.UserID == actor.ID {
		return models.ClockEntry{}, ErrSelfClockEntry
	}
	if !rec.EntryType.Valid() {
		return models.ClockEntry{}, ErrInvalidEntryType
	}

	session, err := s.session(ctx, rec.SessionID)
	if err != nil {
		return models.ClockEntry{}, err
	}
	if session.GroupID != rec.GroupID {
		return models.ClockEntry{}, ErrSessionNotFound
	}
	now := s.codec.Now()
	if session.Expired(now) {
		return models.ClockEntry{}, ErrSessionExpired
	}

	member, err := s.store.Members().Get(ctx, rec.GroupID, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.ClockEntry{}, ErrUserNotInGroup
	}
	if err != nil {
		return models.ClockEntry{}, fmt.Errorf("load membership: %w", err)
	}

	entry := models.ClockEntry{ID: ids.New(), ClockAt: now, Type: rec.EntryType}
	err = s.store.WithTx(ctx, func(tx Repositories) error {
		if err := tx.Sessions().LockPair(ctx, session.ID, member.ID); err != nil {
			return fmt.Errorf("lock entries: %w", err)
		}

		var last *models.EntryType
		prev, err := tx.Sessions().LastEntry(ctx, session.ID, member.ID)
		switch {
		case err == nil:
			last = &prev.Type
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("load last entry: %w", err)
		}
		if err := checkTransition(last, entry.Type); err != nil {
			return err
		}

		if err := tx.Sessions().AddClockEntry(ctx, &entry); err != nil {
			return fmt.Errorf("add clock entry: %w", err)
		}
		link := models.SessionEntry{ID: ids.New(), SessionID: session.ID, GroupUserID: member.ID, EntryID: &entry.ID}
		if err := tx.Sessions().AddSessionEntry(ctx, &link); err != nil {
			return fmt.Errorf("link clock entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.ClockEntry{}, err
	}
	return entry, nil
}

// checkTransition enforces IN/OUT alternation starting with IN. last is nil
// when the pair has no entries yet.
func checkTransition(last *models.EntryType, next models.EntryType) error {
	switch {
	case last == nil && next == models.EntryOut:
		return ErrClockOutWithoutClockIn
	case last == nil:
		return nil
	case *last == models.EntryIn && next == models.EntryIn:
		return ErrUserAlreadyClockedIn
	case *last == models.EntryOut && next == models.EntryOut:
		return ErrUserAlreadyClockedOut
	}
	return nil
}
