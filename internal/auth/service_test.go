package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/testutil"
)

// testEnv opens a temp database with auth migrations applied.
func testEnv(t *testing.T) (*UserStore, *TokenService, *Service) {
	t.Helper()

	userStore, err := NewUserStore(context.Background(), testutil.NewStore(t))
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	tokens := newTestTokenService()
	return userStore, tokens, NewService(userStore, tokens, zap.NewNop())
}

func TestSetup_CreatesFirstUser(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()

	needs, err := svc.NeedsSetup(ctx)
	if err != nil {
		t.Fatalf("NeedsSetup: %v", err)
	}
	if !needs {
		t.Fatal("expected NeedsSetup=true before any users created")
	}

	user, err := svc.Setup(ctx, " Admin@Example.com ", "Admin", "securepassword")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if user.Email != "admin@example.com" {
		t.Errorf("Email = %q, want admin@example.com", user.Email)
	}

	needs, err = svc.NeedsSetup(ctx)
	if err != nil {
		t.Fatalf("NeedsSetup after setup: %v", err)
	}
	if needs {
		t.Error("expected NeedsSetup=false after setup")
	}

	if _, err := svc.Setup(ctx, "other@example.com", "", "securepassword"); !errors.Is(err, ErrSetupComplete) {
		t.Errorf("second Setup error = %v, want ErrSetupComplete", err)
	}
}

func TestSetup_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"short password", "a@example.com", "short", ErrWeakPassword},
		{"no at", "example.com", "securepassword", ErrInvalidEmail},
		{"nothing after at", "a@", "securepassword", ErrInvalidEmail},
		{"nothing before at", "@example.com", "securepassword", ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, svc := testEnv(t)
			if _, err := svc.Setup(context.Background(), tt.email, "", tt.password); !errors.Is(err, tt.want) {
				t.Errorf("Setup() error = %v, want %v", err, tt.want)
			}
			if needs, _ := svc.NeedsSetup(context.Background()); !needs {
				t.Error("a rejected setup created an account")
			}
		})
	}
}

func TestLogin_DisabledUser(t *testing.T) {
	store, _, svc := testEnv(t)
	ctx := context.Background()

	hash, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	u := &User{ID: "u-off", Email: "off@example.com", PasswordHash: hash, CreatedAt: time.Now().UTC(), Disabled: true}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if _, err := svc.Login(ctx, "off@example.com", "correct-password"); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("Login() error = %v, want ErrUserDisabled", err)
	}
	// A wrong password never reveals that the account is disabled.
	if _, err := svc.Login(ctx, "off@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong) error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin(t *testing.T) {
	_, tokens, svc := testEnv(t)
	ctx := context.Background()

	user, err := svc.Setup(ctx, "alice@example.com", "Alice", "correct-password")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	res, err := svc.Login(ctx, "ALICE@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := tokens.ValidateAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.CallerID() != user.ID {
		t.Errorf("CallerID() = %q, want %q", claims.CallerID(), user.ID)
	}
	if res.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d, want 900", res.ExpiresIn)
	}

	if _, err := svc.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}
