// Package jwt signs and verifies the purpose-scoped identity tokens used by
// the auth module. Each purpose has its own secret so a leaked key only
// forges one class of token.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposePasswordReset Purpose = "password_reset"
)

var (
	ErrInvalidSignature = errors.New("jwt: invalid token")
	ErrExpired          = errors.New("jwt: token expired")
	ErrUnknownPurpose   = errors.New("jwt: unknown purpose")
)

type Claims struct {
	UserID  int64   `json:"uid"`
	Purpose Purpose `json:"pur"`
	jwtlib.RegisteredClaims
}

// Secrets holds one HMAC key per purpose.
type Secrets struct {
	Access  string
	Refresh string
	Reset   string
}

type Codec struct {
	keys map[Purpose][]byte
	now  func() time.Time
}

func NewCodec(s Secrets) (*Codec, error) {
	if s.Access == "" || s.Refresh == "" || s.Reset == "" {
		return nil, errors.New("jwt: every purpose needs a secret")
	}
	if s.Access == s.Refresh || s.Access == s.Reset || s.Refresh == s.Reset {
		return nil, errors.New("jwt: purpose secrets must be distinct")
	}
	return &Codec{
		keys: map[Purpose][]byte{
			PurposeAccess:        []byte(s.Access),
			PurposeRefresh:       []byte(s.Refresh),
			PurposePasswordReset: []byte(s.Reset),
		},
		now: time.Now,
	}, nil
}

// Issue signs a token for subject valid for ttl. Every token carries a random
// jti so two tokens issued in the same second never collide.
func (c *Codec) Issue(userID int64, purpose Purpose, ttl time.Duration) (string, *Claims, error) {
	key, ok := c.keys[purpose]
	if !ok {
		return "", nil, ErrUnknownPurpose
	}
	now := c.now()
	claims := &Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, purpose and expiry. It returns
// ErrExpired for a well-signed token past its expiry and ErrInvalidSignature
// for everything else.
func (c *Codec) Verify(token string, purpose Purpose) (*Claims, error) {
	key, ok := c.keys[purpose]
	if !ok {
		return nil, ErrUnknownPurpose
	}

	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		return key, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return claims, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	if !parsed.Valid || claims.Purpose != purpose || claims.UserID <= 0 {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}
