package auth

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // citizen | engineer | moderator | admin
	jwt.RegisteredClaims
}

// TokenTTL is how long issued tokens stay valid.
const TokenTTL = 7 * 24 * time.Hour

/* ============================== JWT Helpers ============================= */

var signingKey []byte

// SetSecret installs the JWT signing key from configuration. Until it is
// called, JWT_SECRET is read from the environment.
func SetSecret(s string) { signingKey = []byte(s) }

func secret() []byte {
	if len(signingKey) > 0 {
		return signingKey
	}
	return []byte(os.Getenv("JWT_SECRET"))
}

// IssueToken signs a JWT for the given user and role.
func IssueToken(userID, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  userID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret())
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret(), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and role into the context.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		claims, err := ParseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", claims.Sub)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// UserUUID parses the authenticated user ID.
func UserUUID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(MustUserID(c))
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v := c.Locals("role"); v != nil {
		return v.(string)
	}
	panic(errors.New("role not in context"))
}

// IsStaff reports whether the authenticated user has a staff role.
func IsStaff(c *fiber.Ctx) bool { return models.Role(MustRole(c)).IsStaff() }

// RequireRole ensures the authenticated user has one of the expected roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		have := models.Role(MustRole(c))
		for _, r := range roles {
			if have == r {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case fiber.StatusBadGateway:
		return "BAD_GATEWAY"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler returns a global Fiber error handler with a consistent JSON shape.
// Domain errors keep their kind as the code; unknown errors become 500 and are logged.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"
		kind := ""

		var de *apperr.Error
		var fe *fiber.Error
		switch {
		case errors.As(err, &de):
			code = de.Kind.Status()
			msg = de.Message
			kind = string(de.Kind)
		case errors.As(err, &fe):
			code = fe.Code
			if strings.TrimSpace(fe.Message) != "" {
				msg = fe.Message
			}
		default:
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}
		if kind == "" {
			kind = httpCodeToString(code)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Success: false,
			Code:    kind,
			Error:   true,
			Message: msg,
		})
	}
}
