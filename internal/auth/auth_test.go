package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/repository"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	user := &domain.User{ID: "u-1", Role: domain.RoleTechnician}

	token, expires, err := tm.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry must be in the future")
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u-1" || claims.Role != domain.RoleTechnician || claims.Subject != "u-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	issuer := NewTokenManager("secret", time.Minute)
	token, _, err := issuer.GenerateToken(&domain.User{ID: "u-1", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewTokenManager("other", time.Minute).ParseToken(token); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}

	late := NewTokenManager("secret", time.Minute)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := late.ParseToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := ComparePassword(hash, "correct horse"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); !IsMismatch(err) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func newAuthApp(t *testing.T) (*fiber.App, *TokenManager, repository.UserRepository) {
	t.Helper()
	store := repository.NewMemoryStore()
	users := store.Users()
	tokens := NewTokenManager("secret", time.Hour)
	mw := NewAuthMiddleware(tokens, users)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code}})
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		user, _ := PrincipalFromContext(c)
		return c.SendString(user.ID)
	})
	app.Get("/admin", mw.Handle, RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/staff", mw.Handle, RequireStaff(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, tokens, users
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens, users := newAuthApp(t)
	ctx := context.Background()

	active := &domain.User{Name: "Ann", Email: "ann@example.com", Role: domain.RoleUser, Active: true}
	disabled := &domain.User{Name: "Dan", Email: "dan@example.com", Role: domain.RoleAdmin, Active: false}
	tech := &domain.User{Name: "Tia", Email: "tia@example.com", Role: domain.RoleTechnician, Active: true}
	for _, u := range []*domain.User{active, disabled, tech} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	bearer := func(u *domain.User) string {
		token, _, err := tokens.GenerateToken(u)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		return "Bearer " + token
	}

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/me", "", fiber.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", fiber.StatusUnauthorized},
		{"active user", "/me", bearer(active), fiber.StatusOK},
		{"disabled user", "/me", bearer(disabled), fiber.StatusUnauthorized},
		{"unknown user", "/me", bearer(&domain.User{ID: "ghost", Role: domain.RoleAdmin}), fiber.StatusUnauthorized},
		{"user on admin route", "/admin", bearer(active), fiber.StatusForbidden},
		{"tech on admin route", "/admin", bearer(tech), fiber.StatusForbidden},
		{"tech on staff route", "/staff", bearer(tech), fiber.StatusNoContent},
		{"user on staff route", "/staff", bearer(active), fiber.StatusForbidden},
	}
	for _, tt := range cases {
		req := httptest.NewRequest("GET", tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: request failed: %v", tt.name, err)
		}
		if resp.StatusCode != tt.want {
			t.Fatalf("%s: status=%d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}
}
