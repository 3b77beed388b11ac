package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newVerifier(t *testing.T, token string) *TokenVerifier {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	v, err := NewTokenVerifier(string(hash))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerify(t *testing.T) {
	v := newVerifier(t, "s3cret")

	if err := v.Verify("s3cret"); err != nil {
		t.Fatalf("expected token to verify got %v", err)
	}
	for _, token := range []string{"", "wrong", "s3cret "} {
		if err := v.Verify(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected unauthorized got %v", token, err)
		}
	}

	var nilVerifier *TokenVerifier
	if err := nilVerifier.Verify("s3cret"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected nil verifier to reject got %v", err)
	}
}

func TestNewTokenVerifierRejectsPlaintext(t *testing.T) {
	if _, err := NewTokenVerifier("not-a-hash"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected invalid hash got %v", err)
	}
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("operator")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	v, err := NewTokenVerifier(hash)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if err := v.Verify("operator"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := HashToken(""); err == nil {
		t.Fatal("expected empty token to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
		"Bearer":       "",
	}
	for header, want := range cases {
		req := httptest.NewRequest("POST", "/admin/sync", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := BearerToken(req); got != want {
			t.Fatalf("header %q: expected %q got %q", header, want, got)
		}
	}
}
