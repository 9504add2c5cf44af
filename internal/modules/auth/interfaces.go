package auth

import (
	"context"
	"time"

	"picshare/internal/domain"
	"picshare/internal/pkg/jwt"
)

// UserStore is the part of the user repository the session manager needs.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	SetResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error
	GetByResetHash(ctx context.Context, hash string) (*domain.User, error)
	CompletePasswordReset(ctx context.Context, userID int64, resetHash, passwordHash string) (int64, error)
}

// CredentialStore persists one record per issued refresh token.
type CredentialStore interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	Find(ctx context.Context, hash string, userID int64) (*domain.RefreshToken, error)
	Delete(ctx context.Context, hash string, userID int64) (bool, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Rotate(ctx context.Context, oldID int64, next *domain.RefreshToken) error
}

type TokenCodec interface {
	Issue(userID int64, purpose jwt.Purpose, ttl time.Duration) (string, *jwt.Claims, error)
	Verify(token string, purpose jwt.Purpose) (*jwt.Claims, error)
}

// GoogleIdentity is what a verified Google ID token tells us about the user.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (*GoogleIdentity, error)
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}
