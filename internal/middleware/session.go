package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/preparatoire/gpf/internal/identity"
)

const sessionKey = "session"

// SessionAttach resolves the platform session from the bearer token and
// stores it on the echo context. Requests without a token proceed as
// anonymous; so do requests with an unverifiable token, since the
// public read path must stay reachable and every protected operation
// re-checks the session downstream.
func SessionAttach(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := identity.ResolveSession(c.Request(), secret)
			if err == nil && sess != nil {
				c.Set(sessionKey, sess)
			}
			return next(c)
		}
	}
}

// SessionFrom returns the attached session, or nil for anonymous
// requests.
func SessionFrom(c echo.Context) *identity.Session {
	sess, _ := c.Get(sessionKey).(*identity.Session)
	return sess
}
