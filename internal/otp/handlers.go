package otp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type SendOTPRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=120"`
}

type VerifyResetOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=120"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	Email      string `json:"email" validate:"required,email,max=120"`
	ResetToken string `json:"resetToken" validate:"required"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
}

// SendOTPResponse carries DemoOTP only in development.
type SendOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
	DemoOTP   string `json:"demo_otp,omitempty"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db     *gorm.DB
	store  Store
	sender Sender
	ttl    time.Duration
	dev    bool
	log    zerolog.Logger
}

func NewHandler(db *gorm.DB, store Store, sender Sender, ttl time.Duration, dev bool, log zerolog.Logger) *Handler {
	return &Handler{db: db, store: store, sender: sender, ttl: ttl, dev: dev, log: log}
}

func (h *Handler) issue(ctx context.Context, namespace, channel, to string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	if err := h.store.Save(ctx, namespace, to, code); err != nil {
		return "", err
	}
	if err := h.sender.Send(ctx, channel, to, code); err != nil {
		_ = h.store.Delete(ctx, namespace, to)
		return "", fiber.NewError(fiber.StatusBadGateway, "could not deliver otp")
	}
	return code, nil
}

// verifyErr maps store errors to HTTP errors.
func verifyErr(err error) error {
	switch {
	case errors.Is(err, ErrExpired):
		return fiber.NewError(fiber.StatusBadRequest, "OTP expired or not found")
	case errors.Is(err, ErrTooManyAttempts):
		return fiber.NewError(fiber.StatusTooManyRequests, "too many failed attempts, request a new OTP")
	case errors.Is(err, ErrInvalidCode):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func (h *Handler) sent(c *fiber.Ctx, msg, code string) error {
	out := SendOTPResponse{Success: true, Message: msg, ExpiresIn: int(h.ttl.Seconds())}
	if h.dev {
		out.DemoOTP = code
	}
	return c.JSON(out)
}

/* ============================== Phone login ============================= */

// @Summary      Send login OTP
// @Description  Sends a six-digit code to an Indian mobile number
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SendOTPRequest  true  "Phone"
// @Success      200      {object}  SendOTPResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Router       /auth/send-otp [post]
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var in SendOTPRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	code, err := h.issue(c.UserContext(), NamespacePhone, ChannelSMS, in.Phone)
	if err != nil {
		return err
	}
	return h.sent(c, "OTP sent", code)
}

// @Summary      Verify login OTP
// @Description  Verifies the code and logs in, creating a citizen account on first use
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  VerifyOTPRequest  true  "Phone and code"
// @Success      200      {object}  auth.AuthResponse
// @Failure      400      {object}  models.ErrorResponse
// @Failure      429      {object}  models.ErrorResponse
// @Router       /auth/verify-otp [post]
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var in VerifyOTPRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	if err := h.store.Verify(ctx, NamespacePhone, in.Phone, in.OTP); err != nil {
		return verifyErr(err)
	}

	var u models.User
	err := h.db.WithContext(ctx).Where("phone = ?", in.Phone).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u, err = h.createPhoneCitizen(ctx, in.Phone)
		if err != nil {
			return err
		}
		h.log.Info().Str("user_id", u.ID.String()).Msg("citizen created by phone login")
		return auth.Respond(c, fiber.StatusCreated, u)
	case err != nil:
		return err
	}

	if !u.IsActive {
		return fiber.NewError(fiber.StatusForbidden, "account disabled")
	}
	if !u.PhoneVerified {
		if err := h.db.WithContext(ctx).Model(&u).Update("phone_verified", true).Error; err != nil {
			return err
		}
	}
	return auth.Respond(c, fiber.StatusOK, u)
}

func (h *Handler) createPhoneCitizen(ctx context.Context, phone string) (models.User, error) {
	// Phone-only accounts get an unguessable password; they log in by OTP.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	digits := strings.TrimPrefix(phone, "+")
	u := models.User{
		Name:          "Citizen-" + digits[len(digits)-4:],
		Email:         digits + "@phone.civic.local",
		Phone:         &phone,
		PasswordHash:  string(hash),
		Role:          models.RoleCitizen,
		IsActive:      true,
		PhoneVerified: true,
	}
	if err := h.db.WithContext(ctx).Create(&u).Error; err != nil {
		return models.User{}, fiber.NewError(fiber.StatusConflict, "user already exists")
	}
	return u, nil
}

/* ============================ Password reset ============================ */

// @Summary      Forgot password
// @Description  Sends a reset code by email. Responds the same whether or not the account exists.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  ForgotPasswordRequest  true  "Email"
// @Success      200      {object}  SendOTPResponse
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var in ForgotPasswordRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	const msg = "If the account exists, a reset code has been sent"
	ctx := c.UserContext()
	var u models.User
	if err := h.db.WithContext(ctx).Where("email = ?", in.Email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return h.sent(c, msg, "")
		}
		return err
	}
	if !u.IsActive {
		return h.sent(c, msg, "")
	}

	code, err := h.issue(ctx, NamespaceReset, ChannelEmail, in.Email)
	if err != nil {
		return err
	}
	return h.sent(c, msg, code)
}

// @Summary      Verify reset code
// @Description  Exchanges a valid reset code for a short-lived reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  VerifyResetOTPRequest  true  "Email and code"
// @Success      200      {object}  map[string]any  "success, resetToken"
// @Failure      400      {object}  models.ErrorResponse
// @Failure      429      {object}  models.ErrorResponse
// @Router       /auth/verify-reset-otp [post]
func (h *Handler) VerifyResetOTP(c *fiber.Ctx) error {
	var in VerifyResetOTPRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	if err := h.store.Verify(ctx, NamespaceReset, in.Email, in.OTP); err != nil {
		return verifyErr(err)
	}
	token := uuid.NewString()
	if err := h.store.Save(ctx, NamespaceResetToken, in.Email, token); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "resetToken": token})
}

// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  ResetPasswordRequest  true  "Email, reset token and new password"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  models.ErrorResponse
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var in ResetPasswordRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	if err := h.store.Verify(ctx, NamespaceResetToken, in.Email, in.ResetToken); err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrExpired) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired reset token")
		}
		return verifyErr(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := h.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", in.Email).
		Update("password_hash", string(hash))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid or expired reset token")
	}

	h.log.Info().Str("email", mask(in.Email)).Msg("password reset")
	return c.JSON(fiber.Map{"success": true, "message": "Password updated"})
}
