package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/testutil"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

const phone = "+919876543210"

type failingSender struct{}

func (failingSender) Send(context.Context, string, string, string) error {
	return errors.New("gateway down")
}

func newApp(t *testing.T, db *gorm.DB, sender Sender, dev bool) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if sender == nil {
		sender = LogSender{Log: zerolog.Nop()}
	}
	h := NewHandler(db, NewRedisStore(rdb, 5*time.Minute, 3), sender, 5*time.Minute, dev, zerolog.Nop())

	app := testutil.NewApp(uuid.Nil, "")
	app.Post("/auth/send-otp", h.SendOTP)
	app.Post("/auth/verify-otp", h.VerifyOTP)
	app.Post("/auth/forgot-password", h.ForgotPassword)
	app.Post("/auth/verify-reset-otp", h.VerifyResetOTP)
	app.Post("/auth/reset-password", h.ResetPassword)
	return app, mr
}

func post(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestSendOTP_DemoCodeOnlyInDev(t *testing.T) {
	app, mr := newApp(t, nil, nil, true)
	status, out := post(t, app, "/auth/send-otp", fiber.Map{"phone": phone})
	require.Equal(t, 200, status)
	assert.Equal(t, float64(300), out["expires_in"])
	assert.Equal(t, mr.HGet("otp:phone:"+phone, "code"), out["demo_otp"])

	prod, _ := newApp(t, nil, nil, false)
	status, out = post(t, prod, "/auth/send-otp", fiber.Map{"phone": phone})
	require.Equal(t, 200, status)
	assert.NotContains(t, out, "demo_otp")
}

func TestSendOTP_Validation(t *testing.T) {
	app, _ := newApp(t, nil, nil, true)
	status, out := post(t, app, "/auth/send-otp", fiber.Map{"phone": "12345"})
	assert.Equal(t, 400, status)
	assert.Contains(t, out["errors"], "phone")
}

func TestSendOTP_DeliveryFailureDropsCode(t *testing.T) {
	app, mr := newApp(t, nil, failingSender{}, true)
	status, _ := post(t, app, "/auth/send-otp", fiber.Map{"phone": phone})
	assert.Equal(t, 502, status)
	assert.False(t, mr.Exists("otp:phone:"+phone))
}

func TestVerifyOTP_WrongCodeAndLockout(t *testing.T) {
	app, mr := newApp(t, nil, nil, true)
	_, out := post(t, app, "/auth/send-otp", fiber.Map{"phone": phone})
	code := out["demo_otp"].(string)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		status, _ := post(t, app, "/auth/verify-otp", fiber.Map{"phone": phone, "otp": wrong})
		assert.Equal(t, 400, status)
	}
	status, out := post(t, app, "/auth/verify-otp", fiber.Map{"phone": phone, "otp": code})
	assert.Equal(t, 429, status)
	assert.Equal(t, "TOO_MANY_REQUESTS", out["code"])
	assert.False(t, mr.Exists("otp:phone:"+phone))
}

func TestVerifyOTP_CreatesCitizenThenLogsIn(t *testing.T) {
	db := testutil.OpenTestDB(t)
	app, _ := newApp(t, db, nil, true)

	_, out := post(t, app, "/auth/send-otp", fiber.Map{"phone": phone})
	status, out := post(t, app, "/auth/verify-otp", fiber.Map{"phone": phone, "otp": out["demo_otp"]})
	require.Equal(t, 201, status)
	assert.NotEmpty(t, out["token"])

	var u models.User
	require.NoError(t, db.Where("phone = ?", phone).First(&u).Error)
	assert.Equal(t, "Citizen-3210", u.Name)
	assert.Equal(t, models.RoleCitizen, u.Role)
	assert.True(t, u.PhoneVerified)

	// Second login finds the same account.
	_, out = post(t, app, "/auth/send-otp", fiber.Map{"phone": phone})
	status, out = post(t, app, "/auth/verify-otp", fiber.Map{"phone": phone, "otp": out["demo_otp"]})
	require.Equal(t, 200, status)
	user := out["user"].(map[string]any)
	assert.Equal(t, u.ID.String(), user["id"])

	var n int64
	db.Model(&models.User{}).Where("phone = ?", phone).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestPasswordReset_Flow(t *testing.T) {
	db := testutil.OpenTestDB(t)
	app, _ := newApp(t, db, nil, true)

	old, _ := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	u := models.User{Email: "asha@example.com", Name: "Asha", PasswordHash: string(old), Role: models.RoleCitizen, IsActive: true}
	require.NoError(t, db.Create(&u).Error)

	// Unknown accounts get the same answer and no code.
	status, out := post(t, app, "/auth/forgot-password", fiber.Map{"email": "nobody@example.com"})
	require.Equal(t, 200, status)
	assert.NotContains(t, out, "demo_otp")

	_, out = post(t, app, "/auth/forgot-password", fiber.Map{"email": "Asha@Example.com "})
	code, ok := out["demo_otp"].(string)
	require.True(t, ok)

	status, out = post(t, app, "/auth/verify-reset-otp", fiber.Map{"email": "asha@example.com", "otp": code})
	require.Equal(t, 200, status)
	token := out["resetToken"].(string)

	status, _ = post(t, app, "/auth/reset-password", fiber.Map{"email": "asha@example.com", "resetToken": "nope", "password": "new-password"})
	assert.Equal(t, 400, status)

	status, _ = post(t, app, "/auth/reset-password", fiber.Map{"email": "asha@example.com", "resetToken": token, "password": "new-password"})
	require.Equal(t, 200, status)

	var got models.User
	require.NoError(t, db.First(&got, "id = ?", u.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("new-password")))

	// Tokens are single use.
	status, _ = post(t, app, "/auth/reset-password", fiber.Map{"email": "asha@example.com", "resetToken": token, "password": "other-pass"})
	assert.Equal(t, 400, status)
}
