// Package admin serves the moderator/admin console: dashboard counts, user
// management, assignment and cancellation decisions.
package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/internal/grievances"
	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/internal/notify"
	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/utils"
	"github.com/aldoetobex/civic-grievance-backend/pkg/validation"
)

type Handler struct {
	db     *gorm.DB
	engine *lifecycle.Engine
	pub    *notify.Publisher
	log    zerolog.Logger
}

func NewHandler(db *gorm.DB, engine *lifecycle.Engine, pub *notify.Publisher, log zerolog.Logger) *Handler {
	if engine == nil {
		engine = lifecycle.New(nil)
	}
	return &Handler{db: db, engine: engine, pub: pub, log: log}
}

// ===== DTOs =====

type AssignRequest struct {
	GrievanceID string `json:"grievanceId" validate:"required,uuid"`
	AssigneeID  string `json:"assigneeId" validate:"required,uuid"`
}

type UserRoleRequest struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	Role     string `json:"role" validate:"required,oneof=citizen engineer moderator admin"`
	IsActive *bool  `json:"isActive"`
}

type DecisionRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note" validate:"max=500"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type Dashboard struct {
	TotalGrievances      int64      `json:"totalGrievances"`
	TotalUsers           int64      `json:"totalUsers"`
	OverdueCount         int64      `json:"overdueCount"`
	PendingCancellations int64      `json:"pendingCancellations"`
	Unassigned           int64      `json:"unassigned"`
	ByStatus             []KeyCount `json:"byStatus"`
	ByCategory           []KeyCount `json:"byCategory"`
	ByPriority           []KeyCount `json:"byPriority"`
	UsersByRole          []KeyCount `json:"usersByRole"`
}

func (h *Handler) countBy(q *gorm.DB, column string) ([]KeyCount, error) {
	out := []KeyCount{}
	err := q.Select(column + " AS key, COUNT(*) AS count").
		Group(column).
		Order("count DESC").
		Scan(&out).Error
	return out, err
}

// Dashboard godoc
// @Summary      Admin dashboard
// @Description  Grievance and user counts grouped by status, category, priority and role
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Failure      403  {object}  models.ErrorResponse
// @Router       /admin/dashboard [get]
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())
	grv := func() *gorm.DB { return db.Model(&models.Grievance{}) }

	var d Dashboard
	if err := grv().Count(&d.TotalGrievances).Error; err != nil {
		return err
	}
	if err := db.Model(&models.User{}).Count(&d.TotalUsers).Error; err != nil {
		return err
	}

	cutoff := h.engine.Now().AddDate(0, 0, -(lifecycle.OverdueAfterDays + 1))
	if err := grv().
		Where("status IN ?", []models.Status{models.StatusOpen, models.StatusInProgress}).
		Where("created_at <= ?", cutoff).
		Count(&d.OverdueCount).Error; err != nil {
		return err
	}
	if err := grv().Where("cancel_status = ?", models.CancellationPending).Count(&d.PendingCancellations).Error; err != nil {
		return err
	}
	if err := grv().Where("assigned_to_id IS NULL AND status = ?", models.StatusOpen).Count(&d.Unassigned).Error; err != nil {
		return err
	}

	var err error
	if d.ByStatus, err = h.countBy(grv(), "status"); err != nil {
		return err
	}
	if d.ByCategory, err = h.countBy(grv(), "category"); err != nil {
		return err
	}
	if d.ByPriority, err = h.countBy(grv(), "priority"); err != nil {
		return err
	}
	if d.UsersByRole, err = h.countBy(db.Model(&models.User{}), "role"); err != nil {
		return err
	}

	return c.JSON(models.Envelope{Success: true, Data: d})
}

// List Users godoc
// @Summary      List users
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        role      query string false "role filter"
// @Param        q         query string false "name or email contains"
// @Success      200  {object}  models.Page
// @Router       /admin/users [get]
func (h *Handler) Users(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.User{})
	if r := strings.TrimSpace(c.Query("role")); r != "" {
		q = q.Where("role = ?", r)
	}
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	users := make([]models.User, 0, size)
	if err := q.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&users).Error; err != nil {
		return err
	}
	return c.JSON(models.Page{
		Success: true, Page: page, PageSize: size, Total: total,
		Pages: utils.Pages(total, size), Count: len(users), Data: users,
	})
}

// List Grievances godoc
// @Summary      List grievances (admin)
// @Description  Unredacted list with status, category, priority, assignee, overdue and pending-cancellation filters
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        page        query int    false "page"
// @Param        pageSize    query int    false "pageSize"
// @Param        status      query string false "status"
// @Param        category    query string false "category"
// @Param        priority    query string false "priority"
// @Param        assignee    query string false "assignee id, or 'none'"
// @Param        overdue     query bool   false "only overdue"
// @Param        cancellation query string false "pending"
// @Success      200  {object}  models.Page
// @Router       /admin/grievances [get]
func (h *Handler) Grievances(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Grievance{})
	for _, col := range []string{"status", "category", "priority"} {
		if v := strings.TrimSpace(c.Query(col)); v != "" {
			q = q.Where(col+" = ?", v)
		}
	}
	switch a := strings.TrimSpace(c.Query("assignee")); a {
	case "":
	case "none":
		q = q.Where("assigned_to_id IS NULL")
	default:
		id, err := uuid.Parse(a)
		if err != nil {
			return apperr.Validation("invalid assignee")
		}
		q = q.Where("assigned_to_id = ?", id)
	}
	if c.QueryBool("overdue") {
		cutoff := h.engine.Now().AddDate(0, 0, -(lifecycle.OverdueAfterDays + 1))
		q = q.Where("status IN ? AND created_at <= ?",
			[]models.Status{models.StatusOpen, models.StatusInProgress}, cutoff)
	}
	if c.Query("cancellation") == string(models.CancellationPending) {
		q = q.Where("cancel_status = ?", models.CancellationPending)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	list := make([]models.Grievance, 0, size)
	if err := q.Preload("Filer").Preload("Assignee").
		Order("created_at ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&list).Error; err != nil {
		return err
	}
	return c.JSON(models.Page{
		Success: true, Page: page, PageSize: size, Total: total,
		Pages: utils.Pages(total, size), Count: len(list), Data: list,
	})
}

// Assign Grievance godoc
// @Summary      Assign a grievance
// @Description  Assigns to an active staff member and moves the grievance to in-progress
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  AssignRequest  true  "grievanceId and assigneeId"
// @Success      200  {object}  models.Envelope
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/assign-grievance [post]
func (h *Handler) AssignGrievance(c *fiber.Ctx) error {
	var in AssignRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	actor, err := auth.UserUUID(c)
	if err != nil {
		return err
	}
	gid, _ := uuid.Parse(in.GrievanceID)
	assignee, _ := uuid.Parse(in.AssigneeID)

	var oldStatus models.Status
	g, err := grievances.WithLocked(c.UserContext(), h.db, gid, func(tx *gorm.DB, g *models.Grievance) error {
		oldStatus = g.Status
		if err := grievances.RequireStaffUser(tx, assignee); err != nil {
			return err
		}
		return h.engine.Assign(g, assignee)
	})
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	utils.LogGrievanceHistory(ctx, h.db, g.ID, actor, notify.EventAssigned, oldStatus, g.Status, "")
	h.pub.Publish(notify.EventFor(notify.EventAssigned, g, actor))
	h.log.Info().
		Str("grievance_id", g.ID.String()).
		Str("assignee_id", assignee.String()).
		Str("actor_id", actor.String()).
		Msg("grievance assigned")

	return c.JSON(models.Envelope{Success: true, Data: g})
}

// Update User Role godoc
// @Summary      Change a user's role or active flag
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UserRoleRequest  true  "userId, role, isActive"
// @Success      200  {object}  models.Envelope
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/user-role [put]
func (h *Handler) UpdateUserRole(c *fiber.Ctx) error {
	var in UserRoleRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if in.UserID == auth.MustUserID(c) {
		return apperr.Forbidden("admins cannot change their own role")
	}
	ctx := c.UserContext()
	var target models.User
	if err := h.db.WithContext(ctx).First(&target, "id = ?", in.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user")
		}
		return err
	}

	// Only a full admin may hand out the admin role or touch an admin account.
	role := models.Role(in.Role)
	if models.Role(auth.MustRole(c)) != models.RoleAdmin {
		if role == models.RoleAdmin {
			return apperr.Forbidden("only admins may grant the admin role")
		}
		if target.Role == models.RoleAdmin {
			return apperr.Forbidden("only admins may change an admin account")
		}
	}

	updates := map[string]any{"role": role}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", target.ID).Updates(updates).Error; err != nil {
		return err
	}

	var u models.User
	if err := h.db.WithContext(ctx).First(&u, "id = ?", target.ID).Error; err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: u})
}

// Decide Cancellation godoc
// @Summary      Approve or reject a cancellation request
// @Description  Approving moves the grievance to cancelled; rejecting leaves its status unchanged
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "grievance id (uuid)"
// @Param        payload  body  DecisionRequest  true  "approve and note"
// @Success      200  {object}  models.Envelope
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/cancellations/{id}/decision [post]
func (h *Handler) DecideCancellation(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in DecisionRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	actor, err := auth.UserUUID(c)
	if err != nil {
		return err
	}

	var oldStatus models.Status
	g, err := grievances.WithLocked(c.UserContext(), h.db, id, func(_ *gorm.DB, g *models.Grievance) error {
		oldStatus = g.Status
		return h.engine.DecideCancellation(g, actor, *in.Approve, in.Note)
	})
	if err != nil {
		return err
	}

	utils.LogGrievanceHistory(c.UserContext(), h.db, g.ID, actor, notify.EventCancellationDecided, oldStatus, g.Status, strings.TrimSpace(in.Note))
	h.pub.Publish(notify.EventFor(notify.EventCancellationDecided, g, actor))

	return c.JSON(models.Envelope{Success: true, Data: g})
}
