package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("CASECHAIN_AUTH_SECRET", "unit-test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestTokenRoundTrip(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("officer-1", RolePolice, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "officer-1" || claims.Role != RolePolice {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("token id missing")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setSecret(t)

	if _, err := GenerateToken("  ", RolePolice, time.Minute); err == nil {
		t.Fatal("blank address accepted")
	}
	if _, err := GenerateToken("a", Role("warden"), time.Minute); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("bad role: got %v", err)
	}
	if _, err := GenerateToken("a", RoleJudge, 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
}

func TestParseRejectsGarbageAndExpiry(t *testing.T) {
	setSecret(t)

	if _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: got %v", err)
	}
	if _, err := ParseAndValidate("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v", err)
	}

	token, err := GenerateToken("officer-1", RolePolice, time.Millisecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	t.Setenv("CASECHAIN_AUTH_SECRET", "first-secret")
	ResetSecretForTests()
	token, err := GenerateToken("officer-1", RolePolice, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	t.Setenv("CASECHAIN_AUTH_SECRET", "rotated-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("CASECHAIN_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("officer-1", RolePolice, time.Minute); err == nil {
		t.Fatal("token issued without a secret")
	}
}

func TestParseRole(t *testing.T) {
	for raw, want := range map[string]Role{
		"police":      RolePolice,
		" Prosecutor": RoleProsecutor,
		"JUDGE":       RoleJudge,
		"lawyer":      RoleLawyer,
		"admin":       RoleAdmin,
	} {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseRole("bailiff"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("unknown role: got %v", err)
	}
}

func TestActorContext(t *testing.T) {
	ctx := ContextWithActor(context.Background(), Actor{Address: " officer-1 ", Role: RolePolice})
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatal("actor missing from context")
	}
	if actor.Address != "officer-1" {
		t.Fatalf("address = %q", actor.Address)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatal("actor found in empty context")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := VerifyPassword(encoded, "correct horse battery staple"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(encoded, "wrong password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("mismatch: got %v", err)
	}
	if err := VerifyPassword("$argon2id$broken", "x"); err == nil {
		t.Fatal("malformed hash accepted")
	}
}
