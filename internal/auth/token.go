// Package auth guards operator endpoints with a bcrypt-hashed bearer token.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthorized indicates a missing or wrong bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidHash indicates the configured token hash is not a bcrypt hash.
	ErrInvalidHash = errors.New("invalid admin token hash")
)

// TokenVerifier compares presented tokens against a single stored hash.
type TokenVerifier struct {
	hash []byte
}

// NewTokenVerifier validates hash and returns a verifier for it.
func NewTokenVerifier(hash string) (*TokenVerifier, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	return &TokenVerifier{hash: []byte(hash)}, nil
}

// HashToken produces a hash suitable for NewTokenVerifier.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// Verify returns ErrUnauthorized unless token matches the stored hash.
func (v *TokenVerifier) Verify(token string) error {
	if v == nil || token == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
