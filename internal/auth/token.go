package auth

import (
	"cmp"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is stamped on tokens when no issuer is configured.
const DefaultIssuer = "ia-backend"

// Claims holds the JWT payload for access tokens. Subject carries the user
// id; UserID is kept for tokens minted by other services that use "uid".
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
}

// CallerID returns the caller id carried by the token.
func (c *Claims) CallerID() string {
	return cmp.Or(c.UserID, c.Subject)
}

// TokenService signs and validates HS256 access tokens.
type TokenService struct {
	secret         []byte
	issuer         string
	accessTokenTTL time.Duration
}

// NewTokenService creates a TokenService with the given signing secret.
// An empty issuer disables the issuer check on validation.
func NewTokenService(secret []byte, issuer string, accessTTL time.Duration) *TokenService {
	return &TokenService{
		secret:         secret,
		issuer:         issuer,
		accessTokenTTL: accessTTL,
	}
}

// IssueAccessToken generates a signed JWT access token for the given user.
func (s *TokenService) IssueAccessToken(user *User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			Issuer:    cmp.Or(s.issuer, DefaultIssuer),
		},
		UserID: user.ID,
		Email:  user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and validates a JWT access token, returning the claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.CallerID() == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}
