package token_test

import (
	"testing"
	"time"

	"github.com/NicolasHaas/chatwire/pkg/model"
	"github.com/NicolasHaas/chatwire/pkg/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	svc := token.NewService("test-secret", 0)
	u := model.User{UserID: 7, UserName: "johndoe", ServerID: 1, Staff: true}

	signed, err := svc.Issue(u)
	if err != nil {
		t.Fatalf("Issue: unexpected error: %v", err)
	}

	ok, got := svc.Verify(signed)
	if !ok {
		t.Fatalf("Verify: valid token rejected")
	}
	if diff := cmp.Diff(u, got); diff != "" {
		t.Errorf("Verify: user mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuer := token.NewService("secret-a", 0)
	verifier := token.NewService("secret-b", 0)

	signed, err := issuer.Issue(model.User{UserID: 1, UserName: "johndoe"})
	if err != nil {
		t.Fatalf("Issue: unexpected error: %v", err)
	}

	if ok, _ := verifier.Verify(signed); ok {
		t.Fatalf("Verify: token signed with different secret accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	svc := token.NewService("test-secret", 0)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if ok, _ := svc.Verify(raw); ok {
			t.Fatalf("Verify(%q): garbage token accepted", raw)
		}
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	svc := token.NewService("test-secret", 0)

	// Hand-sign an already expired token with the same secret.
	claims := token.Claims{UserID: 1, UserName: "johndoe"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString: unexpected error: %v", err)
	}

	if ok, _ := svc.Verify(signed); ok {
		t.Fatalf("Verify: expired token accepted")
	}
}

func TestNoExpiryTokenStaysValid(t *testing.T) {
	t.Parallel()

	svc := token.NewService("test-secret", 0)

	signed, err := svc.Issue(model.User{UserID: 1, UserName: "johndoe"})
	if err != nil {
		t.Fatalf("Issue: unexpected error: %v", err)
	}
	if ok, _ := svc.Verify(signed); !ok {
		t.Fatalf("Verify: zero-TTL token should never expire")
	}
}
