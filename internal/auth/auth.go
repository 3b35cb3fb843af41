// Package auth establishes caller identity from bearer credentials. Every
// request is verified independently against the shared signing secret of
// the platform's auth service; no session state is held here.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mhakimi/keyvault/internal/domain"
)

// TokenIssuer is the issuer claim expected on every accepted token.
const TokenIssuer = "keyvault"

// Identity is the verified caller reference: the subject of the token.
type Identity string

// String returns the identity as the opaque user id string.
func (id Identity) String() string { return string(id) }

// Claims are the token claims carried by the auth provider's access tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens minted by the auth provider using a
// shared HS256 secret. The signing algorithm is pinned; tokens presenting
// any other method are rejected.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier around the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Authenticate resolves a bearer credential to a verified Identity.
// The raw value may carry the "Bearer " prefix from the Authorization
// header. Any failure maps to domain.ErrUnauthenticated; the reason is not
// surfaced to the caller.
func (v *Verifier) Authenticate(bearer string) (Identity, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer"))
	if token == "" {
		return "", domain.ErrUnauthenticated
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", domain.ErrUnauthenticated
	}
	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return "", domain.ErrUnauthenticated
	}
	return Identity(subject), nil
}

// GenerateToken mints an access token for userID, valid for ttl. Used by
// operator tooling and tests; the production issuer is the auth service.
func (v *Verifier) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
