package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a bearer token from the Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ExtractUserIDFromJWT reads the 'sub' claim without checking the signature.
// Only use it for attribution, never for access decisions.
func ExtractUserIDFromJWT(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("empty token")
	}

	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("subject claim not found in token")
	}

	return sub, nil
}

// RequestUser names the caller for log lines: the verified subject when
// Middleware ran, the unverified token subject otherwise, else "anonymous".
func RequestUser(r *http.Request) string {
	if uid := UserID(r.Context()); uid != "" {
		return uid
	}
	if raw, err := ExtractTokenFromRequest(r); err == nil {
		if sub, err := ExtractUserIDFromJWT(raw); err == nil {
			return sub + " (unverified)"
		}
	}
	return "anonymous"
}
