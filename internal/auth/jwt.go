// Package auth issues and verifies the bearer tokens that identify a user's journey.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenLifetime outlives a long journey so a token never expires mid-trip.
const DefaultTokenLifetime = 12 * time.Hour

var (
	ErrInvalidToken      = errors.New("invalid access token")
	ErrTokenExpired      = errors.New("access token has expired")
	ErrMissingSigningKey = errors.New("signing key is required")
	ErrMissingUserID     = errors.New("user id is required")
)

// signingMethod is the only algorithm accepted on verification.
var signingMethod = jwt.SigningMethodHS256

// Claims are the registered claims plus the journey owner.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	VerifyToken(token string) (userID string, err error)
}

// JWTConfig configures a JWTService.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string

	// Lifetime overrides DefaultTokenLifetime.
	Lifetime time.Duration
}

// IssuedToken is a signed token and the instant it stops verifying.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// JWTService signs and verifies HMAC bearer tokens.
type JWTService struct {
	key      []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

var _ TokenVerifier = (*JWTService)(nil)

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	s := &JWTService{
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: cfg.Lifetime,
		now:      time.Now,
	}
	if s.lifetime == 0 {
		s.lifetime = DefaultTokenLifetime
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Issue signs a token naming userID as both subject and journey owner.
func (s *JWTService) Issue(userID string) (IssuedToken, error) {
	if userID == "" {
		return IssuedToken{}, ErrMissingUserID
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.lifetime)

	signed, err := jwt.NewWithClaims(signingMethod, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	}).SignedString(s.key)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing token for %s: %w", userID, err)
	}
	return IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse verifies signature, issuer, audience and expiry and returns the claims.
func (s *JWTService) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case claims.UserID == "":
		return nil, fmt.Errorf("%w: no uid claim", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyToken implements TokenVerifier.
func (s *JWTService) VerifyToken(token string) (string, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
