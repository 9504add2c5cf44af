package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"picshare/internal/domain"
	"picshare/internal/pkg/jwt"
	"picshare/internal/pkg/logger"
	"picshare/internal/repository"

	"gorm.io/gorm"
)

const (
	mailTimeout      = 15 * time.Second
	maxDeviceInfoLen = 255
	provisionRetries = 3
)

type Options struct {
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ResetTTL           time.Duration
	RefreshTokenPepper string
	FrontendURL        string
}

// Session is the outcome of every successful sign-in or refresh.
type Session struct {
	User             domain.Profile
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Service is the session manager. It pairs a stateless access token with a
// stored, revocable refresh token and owns every transition between them.
type Service struct {
	users  UserStore
	tokens CredentialStore
	codec  TokenCodec
	hasher *PasswordHasher
	google GoogleVerifier
	mailer Mailer
	opts   Options
	now    func() time.Time

	mailWG sync.WaitGroup
}

func NewService(
	users UserStore,
	tokens CredentialStore,
	codec TokenCodec,
	hasher *PasswordHasher,
	google GoogleVerifier,
	mailer Mailer,
	opts Options,
) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		codec:  codec,
		hasher: hasher,
		google: google,
		mailer: mailer,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput, device string) (*Session, error) {
	username := strings.TrimSpace(in.Username)

	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}
	taken, err = s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, conflictFor(err)
		}
		return nil, err
	}

	logger.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return s.startSession(ctx, user, device)
}

// conflictFor maps a unique violation lost to a concurrent insert onto the
// matching conflict error.
func conflictFor(err error) error {
	if strings.Contains(repository.UniqueViolationColumn(err), "email") {
		return ErrEmailTaken.Wrap(err)
	}
	return ErrUsernameTaken.Wrap(err)
}

// Login checks the password with the same amount of bcrypt work whether or
// not the account exists.
func (s *Service) Login(ctx context.Context, email, password, device string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.hasher.CompareDummy(ctx, password)
			logger.FromContext(ctx).Warn("login rejected", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Compare(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.FromContext(ctx).Warn("login rejected", "reason", "wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, user, device)
}

// LoginWithGoogle signs in the owner of a Google ID token, creating the
// account on first sight of its e-mail address.
func (s *Service) LoginWithGoogle(ctx context.Context, credential, device string) (*Session, error) {
	if s.google == nil {
		return nil, ErrGoogleNotConfigured
	}
	identity, err := s.google.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		user, err = s.provisionGoogleUser(ctx, identity)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s.startSession(ctx, user, device)
}

func (s *Service) provisionGoogleUser(ctx context.Context, identity *GoogleIdentity) (*domain.User, error) {
	// Nobody knows this password; the account signs in through Google or
	// a password reset.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(ctx, hex.EncodeToString(secret))
	if err != nil {
		return nil, err
	}

	base := BaseUsername(identity.Name, identity.Email)
	var lastErr error
	for attempt := 0; attempt < provisionRetries; attempt++ {
		username, err := AvailableUsername(ctx, base, s.users.ExistsByUsername)
		if err != nil {
			return nil, err
		}

		user := &domain.User{
			Username:     username,
			Email:        identity.Email,
			PasswordHash: hash,
			Photo:        identity.Picture,
			Role:         domain.RoleUser,
		}
		err = s.users.Create(ctx, user)
		if err == nil {
			logger.FromContext(ctx).Info("user provisioned from google", "user_id", user.ID, "username", username)
			return user, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
		if strings.Contains(repository.UniqueViolationColumn(err), "email") {
			// created concurrently by another sign-in
			return s.users.GetByEmail(ctx, identity.Email)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("provision google user: %w", lastErr)
}

// Refresh exchanges a refresh token for a new session. The presented record
// is deleted and replaced, so every refresh token works exactly once.
func (s *Service) Refresh(ctx context.Context, refreshToken, device string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	hash := s.fingerprint(refreshToken)

	claims, err := s.codec.Verify(refreshToken, jwt.PurposeRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) && claims != nil {
			if _, delErr := s.tokens.Delete(ctx, hash, claims.UserID); delErr != nil {
				logger.FromContext(ctx).Error("delete expired refresh token", "err", delErr)
			}
			return nil, s.rejectRefresh(ctx, ErrRefreshTokenExpired, claims.UserID)
		}
		return nil, s.rejectRefresh(ctx, ErrRefreshTokenInvalid, 0)
	}

	record, err := s.tokens.Find(ctx, hash, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.rejectRefresh(ctx, ErrRefreshTokenNotFound, claims.UserID)
		}
		return nil, err
	}
	if record.IsExpired(s.now()) {
		if _, err := s.tokens.Delete(ctx, hash, claims.UserID); err != nil {
			return nil, err
		}
		return nil, s.rejectRefresh(ctx, ErrRefreshTokenExpired, claims.UserID)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if _, err := s.tokens.DeleteAllForUser(ctx, claims.UserID); err != nil {
				return nil, err
			}
			return nil, s.rejectRefresh(ctx, ErrSessionUserNotFound, claims.UserID)
		}
		return nil, err
	}

	session, next, err := s.issuePair(user, device)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, record.ID, next); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenConsumed) {
			return nil, s.rejectRefresh(ctx, ErrRefreshTokenNotFound, claims.UserID)
		}
		return nil, err
	}
	return session, nil
}

func (s *Service) rejectRefresh(ctx context.Context, reason error, userID int64) error {
	logger.FromContext(ctx).Warn("refresh rejected", "reason", reason.Error(), "user_id", userID)
	return ErrSessionInvalid.Wrap(reason)
}

// Logout deletes the record behind refreshToken if userID owns it. Unknown
// tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string, userID int64) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	_, err := s.tokens.Delete(ctx, s.fingerprint(refreshToken), userID)
	return err
}

// LogoutAll deletes every refresh record of userID.
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.tokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	logger.FromContext(ctx).Info("all sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// RequestPasswordReset mails a reset link when email belongs to an account.
// The caller reports the same outcome either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.FromContext(ctx).Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	// Past this point the account exists; failures are logged, never returned,
	// so the response stays the same as for an unknown address.
	log := logger.FromContext(ctx)
	token, claims, err := s.codec.Issue(user.ID, jwt.PurposePasswordReset, s.opts.ResetTTL)
	if err != nil {
		log.Error("issue reset token", "user_id", user.ID, "err", err)
		return nil
	}
	if err := s.users.SetResetToken(ctx, user.ID, hashResetToken(token), claims.ExpiresAt.Time); err != nil {
		log.Error("store reset token", "user_id", user.ID, "err", err)
		return nil
	}

	msg, err := PasswordResetEmail(user.Email, s.opts.FrontendURL+"/reset-password/"+token, s.opts.ResetTTL)
	if err != nil {
		log.Error("render reset e-mail", "user_id", user.ID, "err", err)
		return nil
	}
	s.sendMail(ctx, msg)
	return nil
}

// sendMail delivers msg in the background so the response time does not
// depend on whether the account exists.
func (s *Service) sendMail(ctx context.Context, msg Email) {
	if s.mailer == nil {
		return
	}
	log := logger.FromContext(ctx)
	mailCtx := logger.WithContext(context.WithoutCancel(ctx), log)

	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		ctx, cancel := context.WithTimeout(mailCtx, mailTimeout)
		defer cancel()
		if err := s.mailer.Send(ctx, msg); err != nil {
			log.Error("send e-mail", "subject", msg.Subject, "err", err)
		}
	}()
}

// WaitMail blocks until background e-mail deliveries finish.
func (s *Service) WaitMail() {
	s.mailWG.Wait()
}

// ResetPassword sets a new password for the holder of a valid reset token
// and signs the account out everywhere. Every failure looks the same.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	log := logger.FromContext(ctx)

	claims, err := s.codec.Verify(token, jwt.PurposePasswordReset)
	if err != nil {
		log.Warn("password reset rejected", "reason", err.Error())
		return ErrInvalidResetToken.Wrap(err)
	}

	resetHash := hashResetToken(token)
	user, err := s.users.GetByResetHash(ctx, resetHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("password reset rejected", "reason", "no pending reset", "user_id", claims.UserID)
			return ErrInvalidResetToken.Wrap(err)
		}
		return err
	}
	if user.ID != claims.UserID || !user.HasActiveReset(s.now()) {
		log.Warn("password reset rejected", "reason", "stale or foreign reset", "user_id", claims.UserID)
		return ErrInvalidResetToken
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	revoked, err := s.users.CompletePasswordReset(ctx, user.ID, resetHash, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken.Wrap(err)
		}
		return err
	}

	log.Info("password reset", "user_id", user.ID, "sessions_revoked", revoked)
	return nil
}

// DeleteExpiredSessions removes refresh records past their expiry.
func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now())
}

func (s *Service) startSession(ctx context.Context, user *domain.User, device string) (*Session, error) {
	session, record, err := s.issuePair(user, device)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) issuePair(user *domain.User, device string) (*Session, *domain.RefreshToken, error) {
	access, accessClaims, err := s.codec.Issue(user.ID, jwt.PurposeAccess, s.opts.AccessTTL)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshClaims, err := s.codec.Issue(user.ID, jwt.PurposeRefresh, s.opts.RefreshTTL)
	if err != nil {
		return nil, nil, err
	}

	record := &domain.RefreshToken{
		UserID:     user.ID,
		TokenHash:  s.fingerprint(refresh),
		DeviceInfo: strings.ToValidUTF8(truncate(device, maxDeviceInfoLen), ""),
		ExpiresAt:  refreshClaims.ExpiresAt.Time,
	}
	session := &Session{
		User:             user.Profile(),
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	return session, record, nil
}

// fingerprint is what the credential store keeps instead of the token.
func (s *Service) fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token + s.opts.RefreshTokenPepper))
	return hex.EncodeToString(sum[:])
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
