package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/daya-auto/carsale/internal/rbac"
)

// ErrInvalidToken reports a malformed, expired or forged bearer token.
var ErrInvalidToken = errors.New("auth: invalid token")

const tokenIssuer = "carsale"

// Claims are the JWT claims issued to API clients.
type Claims struct {
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
	Role  rbac.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 API tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// Issue signs a token for user and returns it with its expiry.
func (t *TokenIssuer) Issue(user User) (string, time.Time, error) {
	issuedAt := t.now().UTC()
	expires := issuedAt.Add(t.ttl)
	claims := Claims{
		Email: user.Email,
		Name:  user.DisplayName,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies raw and returns its claims.
func (t *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// VerifyToken implements rbac.TokenVerifier.
func (t *TokenIssuer) VerifyToken(raw string) (rbac.Principal, error) {
	claims, err := t.Parse(raw)
	if err != nil {
		return rbac.Principal{}, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return rbac.Principal{}, ErrInvalidToken
	}
	return rbac.Principal{UserID: id, Email: claims.Email, DisplayName: claims.Name, Role: claims.Role}, nil
}

var _ rbac.TokenVerifier = (*TokenIssuer)(nil)
