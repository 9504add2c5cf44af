package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	DefaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"
	defaultCertsTTL       = time.Hour
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwtlib.RegisteredClaims
}

// GoogleIDTokenVerifier checks Google Sign-In ID tokens against Google's
// published signing keys. Keys are cached for as long as Google allows.
type GoogleIDTokenVerifier struct {
	clientID string
	certsURL string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

func NewGoogleIDTokenVerifier(clientID, certsURL string) *GoogleIDTokenVerifier {
	if certsURL == "" {
		certsURL = DefaultGoogleCertsURL
	}
	return &GoogleIDTokenVerifier{
		clientID: clientID,
		certsURL: certsURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		now:      time.Now,
	}
}

func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, credential string) (*GoogleIdentity, error) {
	if v.clientID == "" {
		return nil, ErrGoogleNotConfigured
	}
	keys, err := v.signingKeys(ctx)
	if err != nil {
		return nil, ErrGoogleUnavailable.Wrap(err)
	}

	claims := &googleClaims{}
	_, err = jwtlib.ParseWithClaims(credential, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithAudience(v.clientID),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, ErrInvalidGoogleCredential.Wrap(err)
	}
	if !validGoogleIssuer(claims.Issuer) {
		return nil, ErrInvalidGoogleCredential.Wrap(fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, ErrInvalidGoogleCredential.Wrap(errors.New("email missing or unverified"))
	}

	return &GoogleIdentity{
		Subject:       claims.Subject,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func validGoogleIssuer(iss string) bool {
	for _, allowed := range googleIssuers {
		if iss == allowed {
			return true
		}
	}
	return false
}

func (v *GoogleIDTokenVerifier) signingKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && v.now().Before(v.expiresAt) {
		return v.keys, nil
	}

	keys, ttl, err := v.fetchKeys(ctx)
	if err != nil {
		// stale keys beat no keys while Google is unreachable
		if v.keys != nil {
			return v.keys, nil
		}
		return nil, err
	}
	v.keys = keys
	v.expiresAt = v.now().Add(ttl)
	return keys, nil
}

type jwkSet struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *GoogleIDTokenVerifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("google certs: status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, 0, fmt.Errorf("google certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			return nil, 0, fmt.Errorf("google certs: key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, 0, errors.New("google certs: no usable keys")
	}
	return keys, cacheTTL(resp.Header.Get("Cache-Control")), nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() > int64(^uint32(0)>>1) {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

func cacheTTL(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultCertsTTL
}
