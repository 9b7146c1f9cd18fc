// Package identity resolves the caller's platform session from the
// request and talks back to the identity platform when tenant state has
// to change.
package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated caller: the platform user id, the tenant
// the user belongs to and the roles granted inside that tenant.
type Session struct {
	UserID   string
	TenantID string
	Roles    []string
}

// HasRole reports whether the session carries any of the given roles.
func (s *Session) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range s.Roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

type sessionClaims struct {
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// ResolveSession extracts and verifies the bearer token. A request with
// no Authorization header is anonymous, not an error: (nil, nil). A
// present but invalid token is an error so callers can decide whether to
// degrade to anonymous or reject.
func ResolveSession(r *http.Request, secret string) (*Session, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, fmt.Errorf("authorization header is not a bearer token")
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("session token is missing identity claims")
	}

	return &Session{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Roles:    claims.Roles,
	}, nil
}
