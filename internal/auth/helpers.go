package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// ExtractAPIKey extracts the API key from the Authorization header.
// Expects "Bearer <api_key>".
func ExtractAPIKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAPIKey
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("%w: expected 'Bearer <api_key>'", ErrInvalidAPIKey)
	}

	return parts[1], nil
}
