package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
)

const ownerKey = "owner"

// Authenticator verifies HS256 bearer tokens. The token subject is the
// caller's owner id. Tokens are issued elsewhere.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for tokens signed with secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware rejects requests without a valid token. Browsers cannot set
// headers on websocket handshakes, so a "token" query parameter is accepted
// as well.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = c.Query("token")
		}
		owner, err := a.Verify(raw)
		if err != nil {
			return writeError(c, domain.NewOpError("authenticate", "", domain.ErrNotAuthenticated, err))
		}
		c.Locals(ownerKey, owner)
		return c.Next()
	}
}

// Verify checks the token signature and returns its subject.
func (a *Authenticator) Verify(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// ownerID returns the authenticated caller.
func ownerID(c *fiber.Ctx) string {
	owner, _ := c.Locals(ownerKey).(string)
	return owner
}
