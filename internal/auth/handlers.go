package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /auth/register
type RegisterRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=80"`
	Email      string `json:"email" validate:"required,email,max=120"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	Phone      string `json:"phone" validate:"omitempty,phone"`
	Department string `json:"department" validate:"max=80"`
}

// Request body for /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// PublicUser is the user shape returned to clients.
type PublicUser struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Phone      string      `json:"phone,omitempty"`
	Role       models.Role `json:"role"`
	Department string      `json:"department,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Standard auth response
type AuthResponse struct {
	Success bool       `json:"success"`
	Token   string     `json:"token"`
	User    PublicUser `json:"user"`
}

// ToPublic maps a stored user to its public shape.
func ToPublic(u models.User) PublicUser {
	p := PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		CreatedAt:  u.CreatedAt,
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	return p
}

// Respond issues a token for u and writes the auth response.
func Respond(c *fiber.Ctx, status int, u models.User) error {
	token, err := IssueToken(u.ID.String(), string(u.Role))
	if err != nil {
		return err
	}
	return c.Status(status).JSON(AuthResponse{Success: true, Token: token, User: ToPublic(u)})
}

/* ============================== Handler ================================= */

type Handler struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewHandler(db *gorm.DB, log zerolog.Logger) *Handler { return &Handler{db: db, log: log} }

/* ============================== Register ================================ */

// @Summary      Register
// @Description  Register a new citizen account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  RegisterRequest  true  "Register payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "user already exists"
// @Router       /auth/register [post]
func (h *Handler) Register(c *fiber.Ctx) error {
	var in RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.RoleCitizen,
		Name:         strings.TrimSpace(in.Name),
		Department:   strings.TrimSpace(in.Department),
		IsActive:     true,
	}
	if in.Phone != "" {
		u.Phone = &in.Phone
	}
	if err := h.db.WithContext(c.UserContext()).Create(&u).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "user already exists")
	}

	h.log.Info().Str("user_id", u.ID.String()).Msg("user registered")
	return Respond(c, fiber.StatusCreated, u)
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate with email and password and receive a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.WithContext(c.UserContext()).Where("email = ?", in.Email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	if !u.IsActive {
		return fiber.NewError(fiber.StatusForbidden, "account disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	return Respond(c, fiber.StatusOK, u)
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Failure      401  {object}  models.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	var u models.User
	if err := h.db.WithContext(c.UserContext()).First(&u, "id = ?", MustUserID(c)).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(models.Envelope{Success: true, Data: ToPublic(u)})
}

// Logout is stateless: clients drop their token.
func (h *Handler) Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "message": "Logged out successfully"})
}
