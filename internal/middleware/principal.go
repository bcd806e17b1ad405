package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// PrincipalKey is the fiber.Ctx locals key the resolved principal
	// is stored under.
	PrincipalKey = "principal"

	// SessionCookie carries the guest session id between requests.
	SessionCookie = "chatflow_session"

	sessionTTL = 30 * 24 * time.Hour
)

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ResolvePrincipal maps every request to a stable principal. A valid
// Bearer token yields an authenticated principal; anything else falls
// back to the guest session cookie, minting a fresh session when none
// is present. Resolution never fails.
func ResolvePrincipal(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p, ok := authenticatedPrincipal(c, jwtSecret); ok {
			c.Locals(PrincipalKey, p)
			return c.Next()
		}

		sessionID := c.Cookies(SessionCookie)
		if _, err := uuid.Parse(sessionID); err != nil {
			sessionID = uuid.New().String()
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookie,
				Value:    sessionID,
				Expires:  time.Now().Add(sessionTTL),
				HTTPOnly: true,
				SameSite: "Lax",
			})
		}

		c.Locals(PrincipalKey, services.Principal{
			ID:    "guest:" + sessionID,
			Guest: true,
		})
		return c.Next()
	}
}

func authenticatedPrincipal(c *fiber.Ctx, secret string) (services.Principal, bool) {
	if secret == "" {
		return services.Principal{}, false
	}

	auth := c.Get("Authorization")
	tokenStr := strings.TrimPrefix(auth, "Bearer ")
	if auth == "" || tokenStr == auth {
		return services.Principal{}, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		slog.Debug("Rejecting bearer token, falling back to guest session", "error", err)
		return services.Principal{}, false
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.Username
	}
	if subject == "" {
		return services.Principal{}, false
	}

	return services.Principal{ID: "user:" + subject}, true
}

// PrincipalFrom reads the resolved principal off the request context.
func PrincipalFrom(c *fiber.Ctx) services.Principal {
	if p, ok := c.Locals(PrincipalKey).(services.Principal); ok {
		return p
	}
	// ResolvePrincipal runs on every route; reaching this means a
	// route was registered outside the middleware chain.
	return services.Principal{ID: "guest:" + uuid.New().String(), Guest: true}
}
