package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid token")

type claimsKey struct{}

// Authenticator issues and checks HS256 bearer tokens.
type Authenticator struct {
	secretKey string
	issuer    string
}

func NewAuthenticator(secretKey, issuer string) *Authenticator {
	return &Authenticator{
		secretKey: secretKey,
		issuer:    issuer,
	}
}

// Generate creates a token for subject expiring after ttl.
func (a *Authenticator) Generate(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": a.issuer,
		"exp": time.Now().UTC().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secretKey))
}

// Decode parses and validates a token, returning its claims.
func (a *Authenticator) Decode(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, a.getSigningKey)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid || !claims.VerifyIssuer(a.issuer, a.issuer != "") {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (a *Authenticator) getSigningKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return []byte(a.secretKey), nil
}

// Middleware rejects requests without a valid "Authorization: Bearer" token
// and stores the claims of valid ones in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := a.Decode(parts[1])
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// subject returns the "sub" claim of an authenticated request, or "".
func subject(r *http.Request) string {
	claims, ok := r.Context().Value(claimsKey{}).(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
