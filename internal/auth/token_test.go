package auth

import (
	"testing"
	"time"
)

func setupSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	setupSecret(t)

	token, err := GenerateToken("app-1", 173031, true, TokenTypeAccess, AccessTTL)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Tenant != "app-1" {
		t.Fatalf("unexpected tenant: %s", claims.Tenant)
	}
	id, err := claims.UserID()
	if err != nil || id != 173031 {
		t.Fatalf("unexpected subject: %s (%v)", claims.Subject, err)
	}
	if !claims.Admin {
		t.Fatalf("admin flag lost")
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected token type: %s", claims.TokenType)
	}
}

func TestGenerateTokenRejectsBadInput(t *testing.T) {
	setupSecret(t)

	cases := []struct {
		name      string
		tenant    string
		userID    int64
		tokenType string
		ttl       time.Duration
	}{
		{"empty tenant", "", 1, TokenTypeAccess, time.Minute},
		{"zero user", "app", 0, TokenTypeAccess, time.Minute},
		{"bad type", "app", 1, "session", time.Minute},
		{"zero ttl", "app", 1, TokenTypeAccess, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := GenerateToken(tc.tenant, tc.userID, false, tc.tokenType, tc.ttl); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	setupSecret(t)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(token); err == nil {
			t.Fatalf("expected error for %q", token)
		}
	}
}

func TestParseAndValidateMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("app", 1, false, TokenTypeAccess, time.Minute); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
