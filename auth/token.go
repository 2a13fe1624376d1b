package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingAuth signals an absent Authorization header.
	ErrMissingAuth = errors.New("auth: authorization header not found")
	// ErrMalformedAuth signals an Authorization header without a Bearer prefix.
	ErrMalformedAuth = errors.New("auth: malformed authorization header")
	// ErrInvalidToken signals a token that failed verification: bad signature,
	// malformed structure, missing subject fields, or expiry.
	ErrInvalidToken = errors.New("auth: invalid token")
)

const bearerPrefix = "Bearer "

// Claims is the typed JWT payload. Verification fails closed when any
// subject field is absent.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Group  string `json:"group"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed, time-limited bearer tokens.
// Tokens are never persisted; the subject is reconstructed by verification
// on every request.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock overrides the clock used for iat/exp. Test hook.
func (t *TokenService) WithClock(now func() time.Time) *TokenService {
	t.now = now
	return t
}

// Issue signs an HS256 token embedding the subject and absolute expiry.
// There is no refresh mechanism; expiry forces re-login.
func (t *TokenService) Issue(sub Subject, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: sub.UserID,
		Email:  sub.Email,
		Role:   string(sub.Role),
		Group:  sub.Group,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the embedded subject.
// Expired or differently-keyed tokens are never accepted.
func (t *TokenService) Verify(tokenString string) (Subject, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Subject{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Subject{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Email == "" || claims.Role == "" {
		return Subject{}, fmt.Errorf("%w: incomplete subject", ErrInvalidToken)
	}

	return Subject{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   Role(claims.Role),
		Group:  claims.Group,
	}, nil
}

// ParseBearer extracts the raw token from an Authorization header,
// distinguishing a missing header from a malformed scheme prefix.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuth
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMalformedAuth
	}
	return strings.TrimPrefix(header, bearerPrefix), nil
}
