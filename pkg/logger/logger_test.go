package logger

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestNew_LevelAndService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", ServiceName: "civic", Output: &buf})

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0]["message"])
	assert.Equal(t, "civic", got[0]["service"])
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "loud", Output: &buf})
	log.Debug().Msg("no")
	log.Info().Msg("yes")
	assert.Len(t, lines(t, &buf), 1)
}

func TestMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})

	app := fiber.New()
	app.Use(Middleware(log))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.Header.Get(fiber.HeaderXRequestID))

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "req-1", got[0]["request_id"])
	assert.Equal(t, float64(200), got[0]["status"])
	assert.Equal(t, "warn", got[1]["level"])
	assert.Equal(t, float64(404), got[1]["status"])
	assert.Equal(t, "/missing", got[1]["path"])
}
