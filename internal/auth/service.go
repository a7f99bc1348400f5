package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrSetupComplete      = errors.New("setup already completed")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// LoginResult is the body of a successful POST /auth/login.
type LoginResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	User        *User  `json:"user"`
}

// Service issues chat tokens for local accounts.
type Service struct {
	store  *UserStore
	tokens *TokenService
	logger *zap.Logger

	// setupMu serialises first-account creation.
	setupMu sync.Mutex
}

func NewService(store *UserStore, tokens *TokenService, logger *zap.Logger) *Service {
	return &Service{store: store, tokens: tokens, logger: logger}
}

// Tokens returns the service that signs login tokens.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// decoyHash is compared against when the email is unknown so that both
// failure paths cost one bcrypt comparison.
var decoyHash = sync.OnceValue(func() string {
	h, _ := HashPassword("decoy-password-for-missing-users")
	return h
})

// Login checks email and password and returns a signed access token.
// Unknown emails and wrong passwords fail with the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		CheckPassword(decoyHash(), password)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	token, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login succeeded", zap.String("user_id", user.ID))
	return &LoginResult{
		AccessToken: token,
		ExpiresIn:   int(s.tokens.AccessTokenTTL() / time.Second),
		User:        user,
	}, nil
}

// Setup creates the first account. It fails with ErrSetupComplete once any
// account exists.
func (s *Service) Setup(ctx context.Context, email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	if at := strings.IndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	needs, err := s.NeedsSetup(ctx)
	if err != nil {
		return nil, err
	}
	if !needs {
		return nil, ErrSetupComplete
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("first account created", zap.String("user_id", user.ID))
	return user, nil
}

// NeedsSetup reports whether no account exists yet.
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n == 0, nil
}
