package events

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret []byte, observer string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Observer:         observer,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthenticator_VerifyAcceptsValidToken(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuthenticator(secret)
	token := sign(t, secret, "dashboard")

	claims, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Observer != "dashboard" {
		t.Fatalf("expected observer 'dashboard', got %q", claims.Observer)
	}
}

func TestAuthenticator_VerifyRejectsWrongSecret(t *testing.T) {
	token := sign(t, []byte("secret-a"), "dashboard")
	auth := NewAuthenticator([]byte("secret-b"))

	if _, err := auth.Verify(token); err == nil {
		t.Fatal("expected verification to fail with the wrong secret")
	}
}

func TestAuthenticator_AuthorizeGatesOnlyRestrictedCommands(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuthenticator(secret)
	token := sign(t, secret, "dashboard")

	if err := auth.Authorize(Command{Type: StepAdvance, WorkflowID: "wf-1"}, ""); err != nil {
		t.Fatalf("STEP_ADVANCE should not require auth: %v", err)
	}
	if err := auth.Authorize(Command{Type: CancelWorkflow, WorkflowID: "wf-1"}, ""); err == nil {
		t.Fatal("CANCEL_WORKFLOW without a token should be unauthorized")
	}
	if err := auth.Authorize(Command{Type: CancelWorkflow, WorkflowID: "wf-1"}, token); err != nil {
		t.Fatalf("CANCEL_WORKFLOW with a valid token should be authorized: %v", err)
	}
}
