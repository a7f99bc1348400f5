// Package auth identifies chat callers. Depending on the configured Mode a
// turn runs anonymously or on behalf of the user named by a bearer token.
package auth

import (
	"fmt"
	"time"
)

// Config holds the auth settings read from the "auth" config section.
type Config struct {
	Mode           string        `mapstructure:"mode"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// DefaultConfig returns anonymous chat with one-day tokens.
func DefaultConfig() Config {
	return Config{
		Mode:           string(ModeNone),
		Issuer:         DefaultIssuer,
		AccessTokenTTL: 24 * time.Hour,
	}
}

// Validate checks that a token mode has a usable secret.
func (c Config) Validate() (Mode, error) {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return "", err
	}
	if mode.RequiresToken() && len(c.JWTSecret) < 16 {
		return "", fmt.Errorf("auth.jwt_secret must be at least 16 bytes in %s mode", mode)
	}
	if c.AccessTokenTTL <= 0 {
		return "", fmt.Errorf("auth.access_token_ttl must be positive")
	}
	return mode, nil
}
