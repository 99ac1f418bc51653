package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clockpoint/internal/apperr"
	"clockpoint/internal/config"
	"clockpoint/internal/ids"
	"clockpoint/internal/mail"
	"clockpoint/internal/models"
	"clockpoint/internal/repository"
	"clockpoint/internal/security"
	"clockpoint/internal/tokens"
)

type AuthService struct {
	store   Store
	tokens  *tokens.Store
	codec   *security.TokenCodec
	hasher  *security.PasswordHasher
	effects Effects
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewAuthService(
	store Store,
	tokenStore *tokens.Store,
	codec *security.TokenCodec,
	hasher *security.PasswordHasher,
	effects Effects,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		store:   store,
		tokens:  tokenStore,
		codec:   codec,
		hasher:  hasher,
		effects: effects,
		cfg:     cfg,
		log:     log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	SecondName  *string
	LastName    string
	Username    string
	PhoneNumber *string
}

type AuthResult struct {
	User          models.User
	AccessToken   string
	ActivateToken string
	ExpiresAt     time.Time
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (in RegisterInput) validate() error {
	var fields []apperr.FieldError
	required := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, apperr.FieldError{Name: name, Message: "field is required", ErrorCode: "required"})
		}
	}
	required("email", in.Email)
	required("username", in.Username)
	required("firstName", in.FirstName)
	required("lastName", in.LastName)
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		fields = append(fields, apperr.FieldError{Name: "email", Message: "invalid email address", ErrorCode: "invalid_email"})
	}
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

// Register creates an inactive user and returns an access token together
// with the activation token that is also mailed to the user.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)
	if err := input.validate(); err != nil {
		return AuthResult{}, err
	}
	if err := checkPassword("password", input.Password); err != nil {
		return AuthResult{}, err
	}

	salt, digest, err := s.digest(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		Username:     input.Username,
		FirstName:    strings.TrimSpace(input.FirstName),
		SecondName:   input.SecondName,
		LastName:     strings.TrimSpace(input.LastName),
		PhoneNumber:  input.PhoneNumber,
		Salt:         salt,
		PasswordHash: digest,
	}
	if err := s.store.Users().Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthResult{}, ErrDuplicateUser
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	result, err := s.access(user)
	if err != nil {
		return AuthResult{}, err
	}

	activate, _, err := s.tokens.Issue(ctx, &user, models.SubjectActivate, s.cfg.Security.ActivateTTL, tokens.Record{})
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue activate token: %w", err)
	}
	result.ActivateToken = activate

	s.effects.mail(ctx, mail.Message{
		Template: mail.TemplateActivate,
		To:       []string{user.Email},
		Data: map[string]string{
			"app":     s.cfg.AppName,
			"name":    user.FirstName,
			"link":    frontendLink(s.cfg.Frontend, s.cfg.Frontend.ActivatePath, "activate_account_token", activate),
			"expires": humanDuration(s.cfg.Security.ActivateTTL),
		},
	})

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return result, nil
}

// Login never reveals whether the email or the password was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.store.Users().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.VerifyMissing(password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !s.hasher.Verify(user.Salt, password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.access(user)
}

func (s *AuthService) Refresh(ctx context.Context, actor models.User) (AuthResult, error) {
	return s.access(actor)
}

// Authenticate resolves a bearer ACCESS token to its live user.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (models.User, security.Payload, error) {
	payload, err := s.codec.DecodeSubject(raw, models.SubjectAccess)
	if err != nil {
		return models.User{}, security.Payload{}, err
	}
	user, err := s.store.Users().GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.User{}, security.Payload{}, ErrUserGone
		}
		return models.User{}, security.Payload{}, fmt.Errorf("load user: %w", err)
	}
	return user, payload, nil
}

// Activate consumes an ACTIVATE token minted for actor.
func (s *AuthService) Activate(ctx context.Context, actor models.User, raw string) error {
	claim, err := s.tokens.Consume(ctx, raw, models.SubjectActivate)
	if err != nil {
		return err
	}
	err = s.activate(ctx, actor, claim)
	if err != nil {
		s.restore(ctx, claim)
	}
	return err
}

func (s *AuthService) activate(ctx context.Context, actor models.User, claim *tokens.Claim) error {
	if claim.Record.UserID != actor.ID {
		return ErrTokenNotAssociated
	}
	if err := s.store.Users().Activate(ctx, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

type ChangePasswordInput struct {
	Password           string
	NewPassword        string
	ConfirmNewPassword string
}

func (s *AuthService) ChangePassword(ctx context.Context, actor models.User, input ChangePasswordInput) error {
	if !s.hasher.Verify(actor.Salt, input.Password, actor.PasswordHash) {
		return ErrInvalidCredentials
	}
	if input.NewPassword != input.ConfirmNewPassword {
		return ErrPasswordMismatch
	}
	if err := checkPassword("newPassword", input.NewPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, actor.ID, input.NewPassword)
}

// Delete soft-deletes the account and its memberships. Owners must delete
// their groups first.
func (s *AuthService) Delete(ctx context.Context, actor models.User) error {
	memberships, err := s.store.Members().ListByUser(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}
	for _, m := range memberships {
		if m.Role.Name == models.RoleOwner {
			return ErrOwnerCannotLeave.WithMessage(fmt.Sprintf("user still owns group %s", m.Group.Name))
		}
	}

	err = s.store.WithTx(ctx, func(tx Repositories) error {
		if err := tx.Members().SoftDeleteByUser(ctx, actor.ID); err != nil {
			return fmt.Errorf("remove memberships: %w", err)
		}
		if err := tx.Users().SoftDelete(ctx, actor.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("user_id", actor.ID).Msg("user deleted")
	return nil
}

// RequestReset mails a RESET token when email belongs to a user. Unknown
// addresses succeed silently.
func (s *AuthService) RequestReset(ctx context.Context, email string) error {
	user, err := s.store.Users().GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	raw, _, err := s.tokens.Issue(ctx, &user, models.SubjectReset, s.cfg.Security.ResetTTL, tokens.Record{})
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.effects.mail(ctx, mail.Message{
		Template: mail.TemplateReset,
		To:       []string{user.Email},
		Data: map[string]string{
			"app":     s.cfg.AppName,
			"name":    user.FirstName,
			"link":    frontendLink(s.cfg.Frontend, s.cfg.Frontend.ResetPath, "reset_token", raw),
			"expires": humanDuration(s.cfg.Security.ResetTTL),
		},
	})
	return nil
}

type ResetPasswordInput struct {
	Token              string
	NewPassword        string
	ConfirmNewPassword string
}

// ConfirmReset validates the new password before burning the token.
func (s *AuthService) ConfirmReset(ctx context.Context, input ResetPasswordInput) error {
	if input.NewPassword != input.ConfirmNewPassword {
		return ErrPasswordMismatch
	}
	if err := checkPassword("newPassword", input.NewPassword); err != nil {
		return err
	}

	claim, err := s.tokens.Consume(ctx, input.Token, models.SubjectReset)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, claim.Record.UserID, input.NewPassword); err != nil {
		s.restore(ctx, claim)
		return err
	}
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	salt, digest, err := s.digest(password)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, userID, salt, digest); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// digest regenerates the salt with every hash.
func (s *AuthService) digest(password string) (string, string, error) {
	salt, err := security.GenerateSalt()
	if err != nil {
		return "", "", err
	}
	digest, err := s.hasher.Hash(salt, password)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return salt, digest, nil
}

func (s *AuthService) access(user models.User) (AuthResult, error) {
	token, payload, err := s.codec.Issue(&user, models.SubjectAccess, s.cfg.Security.AccessTTL)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	return AuthResult{User: user, AccessToken: token, ExpiresAt: payload.ExpiresAt}, nil
}

func (s *AuthService) restore(ctx context.Context, claim *tokens.Claim) {
	if err := claim.Restore(ctx); err != nil {
		s.log.Error().Err(err).Str("subject", string(claim.Record.Subject)).Msg("restore token failed")
	}
}

func frontendLink(cfg config.FrontendConfig, path, param, token string) string {
	base := strings.TrimRight(cfg.DNS, "/") + "/" + strings.TrimLeft(path, "/")
	return base + "?" + url.Values{param: {token}}.Encode()
}

func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int64(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	default:
		return plural(int64(d.Round(time.Minute)/time.Minute), "minute")
	}
}
