package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/database"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func TestToken_RoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "s1")
	id := uuid.NewString()

	tok, err := IssueToken(id, "engineer")
	require.NoError(t, err)
	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Sub)
	assert.Equal(t, "engineer", claims.Role)

	t.Setenv("JWT_SECRET", "s2")
	_, err = ParseToken(tok)
	assert.Error(t, err)
}

func TestSetSecret_OverridesEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	SetSecret("from-config")
	t.Cleanup(func() { SetSecret("") })

	tok, err := IssueToken(uuid.NewString(), "citizen")
	require.NoError(t, err)

	// The environment value no longer matters once a key is configured.
	t.Setenv("JWT_SECRET", "changed")
	_, err = ParseToken(tok)
	require.NoError(t, err)

	SetSecret("")
	_, err = ParseToken(tok)
	assert.Error(t, err)
}

func TestRequireAuthAndRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	app.Get("/staff", RequireAuth(), RequireRole(models.StaffRoles...), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": MustUserID(c), "staff": IsStaff(c)})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", 401},
		{"not bearer", "Token abc", 401},
		{"garbage token", "Bearer abc", 401},
		{"citizen", "citizen", 403},
		{"engineer", "engineer", 200},
		{"admin", "admin", 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/staff", nil)
			switch tc.header {
			case "citizen", "engineer", "admin":
				tok, err := IssueToken(uuid.NewString(), tc.header)
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+tok)
			case "":
			default:
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestErrorHandler_Envelope(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	app.Get("/domain", func(c *fiber.Ctx) error { return apperr.InvalidState("grievance is closed") })
	app.Get("/wrapped", func(c *fiber.Ctx) error {
		return errors.Join(errors.New("ctx"), apperr.NotFound("grievance"))
	})
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadGateway, "storage down") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db exploded") })

	cases := []struct {
		path, code, msg string
		status          int
	}{
		{"/domain", "INVALID_STATE", "grievance is closed", 409},
		{"/wrapped", "NOT_FOUND", "grievance not found", 404},
		{"/fiber", "BAD_GATEWAY", "storage down", 502},
		{"/boom", "INTERNAL_SERVER_ERROR", "Internal Server Error", 500},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
		body := decode(t, resp.Body)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["error"])
		assert.Equal(t, tc.code, body["code"])
		assert.Equal(t, tc.msg, body["message"])
	}
}

/* ============================ Handlers (Postgres) ============================ */

func newAuthApp(t *testing.T) *fiber.App {
	t.Helper()
	_ = godotenv.Load()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Exec("TRUNCATE TABLE users RESTART IDENTITY CASCADE") })

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	h := NewHandler(db, zerolog.Nop())
	app.Post("/auth/register", h.Register)
	app.Post("/auth/login", h.Login)
	app.Get("/auth/me", RequireAuth(), h.Me)
	return app
}

func TestRegisterLoginMe(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app := newAuthApp(t)

	send := func(path string, body any) (int, map[string]any) {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest("POST", path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode, decode(t, resp.Body)
	}

	status, out := send("/auth/register", fiber.Map{
		"name": "Asha", "email": " Asha@Example.com", "password": "secret1", "phone": "+919876543210",
	})
	require.Equal(t, 201, status)
	user := out["user"].(map[string]any)
	assert.Equal(t, "asha@example.com", user["email"])
	assert.Equal(t, "citizen", user["role"])

	status, _ = send("/auth/register", fiber.Map{"name": "Asha", "email": "asha@example.com", "password": "secret1"})
	assert.Equal(t, 409, status)

	status, out = send("/auth/register", fiber.Map{"name": "A", "email": "bad", "password": "1", "phone": "555"})
	require.Equal(t, 400, status)
	errs := out["errors"].(map[string]any)
	for _, f := range []string{"name", "email", "password", "phone"} {
		assert.Contains(t, errs, f)
	}

	status, _ = send("/auth/login", fiber.Map{"email": "asha@example.com", "password": "wrong"})
	assert.Equal(t, 401, status)

	status, out = send("/auth/login", fiber.Map{"email": "asha@example.com", "password": "secret1"})
	require.Equal(t, 200, status)
	token := out["token"].(string)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	me := decode(t, resp.Body)["data"].(map[string]any)
	assert.Equal(t, "Asha", me["name"])
	assert.Equal(t, "+919876543210", me["phone"])
}
