package grievances

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/internal/notify"
	"github.com/aldoetobex/civic-grievance-backend/internal/storage"
	"github.com/aldoetobex/civic-grievance-backend/internal/transparency"
	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/sanitize"
	"github.com/aldoetobex/civic-grievance-backend/pkg/utils"
	"github.com/aldoetobex/civic-grievance-backend/pkg/validation"
)

// ===== DTOs =====

type CreateGrievanceRequest struct {
	Title       string `json:"title" form:"title" validate:"required,min=3,max=120"`
	Description string `json:"description" form:"description" validate:"required,max=4000"`
	Category    string `json:"category" form:"category" validate:"required,category"`
	Priority    string `json:"priority" form:"priority" validate:"omitempty,priority"`
	Location    string `json:"location" form:"location" validate:"max=200"`
}

// UpdateGrievanceRequest carries only the fields to change.
// Title, description, category and location belong to the filer;
// status, priority, assignedTo and resolution belong to staff.
type UpdateGrievanceRequest struct {
	Title         *string `json:"title" validate:"omitempty,min=3,max=120"`
	Description   *string `json:"description" validate:"omitempty,max=4000"`
	Category      *string `json:"category" validate:"omitempty,category"`
	Location      *string `json:"location" validate:"omitempty,max=200"`
	Status        *string `json:"status" validate:"omitempty,status"`
	Priority      *string `json:"priority" validate:"omitempty,priority"`
	AssignedTo    *string `json:"assignedTo" validate:"omitempty,uuid"`
	Resolution    *string `json:"resolution" validate:"omitempty,max=2000"`
	CitizenRating *int    `json:"citizenRating" validate:"omitempty,gte=1,lte=5"`
}

func (r UpdateGrievanceRequest) touchesContent() bool {
	return r.Title != nil || r.Description != nil || r.Category != nil || r.Location != nil
}

func (r UpdateGrievanceRequest) touchesStaffFields() bool {
	return r.Status != nil || r.Priority != nil || r.AssignedTo != nil || r.Resolution != nil
}

type CommentRequest struct {
	Comment string `json:"comment" validate:"required,max=1000"`
}

type CancelRequest struct {
	GrievanceID string `json:"grievanceId" validate:"required,uuid"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

type UpvoteResult struct {
	Upvotes   int             `json:"upvotes"`
	Priority  models.Priority `json:"priority"`
	Escalated bool            `json:"escalated"`
}

type Handler struct {
	db     *gorm.DB
	store  storage.ObjectStore
	engine *lifecycle.Engine
	pub    *notify.Publisher
	log    zerolog.Logger
}

// NewHandler wires the grievance endpoints. store and pub may be nil: uploads
// are then refused per file and events are dropped.
func NewHandler(
	db *gorm.DB,
	store storage.ObjectStore,
	engine *lifecycle.Engine,
	pub *notify.Publisher,
	log zerolog.Logger,
) *Handler {
	if engine == nil {
		engine = lifecycle.New(nil)
	}
	return &Handler{db: db, store: store, engine: engine, pub: pub, log: log}
}

// Engine exposes the lifecycle engine so sibling packages share one clock.
func (h *Handler) Engine() *lifecycle.Engine { return h.engine }

// record writes the audit row and publishes the matching event.
func (h *Handler) record(ctx context.Context, g *models.Grievance, actor uuid.UUID, action string, oldS models.Status, reason string) {
	utils.LogGrievanceHistory(ctx, h.db, g.ID, actor, action, oldS, g.Status, reason)
	h.pub.Publish(notify.EventFor(action, g, actor))
}

// Create Grievance godoc
// @Summary      File a grievance
// @Description  JSON body, or multipart form with the same fields plus files[] attachments
// @Tags         grievances
// @Security     BearerAuth
// @Accept       json,mpfd
// @Produce      json
// @Param        payload  body  CreateGrievanceRequest  true  "Grievance payload"
// @Success      201  {object}  map[string]any  "success, data, files"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /grievances [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateGrievanceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	filerID, err := auth.UserUUID(c)
	if err != nil {
		return err
	}

	g := models.Grievance{
		FilerID:     filerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    models.Category(in.Category),
		Priority:    models.PriorityMedium,
		Status:      models.StatusOpen,
		Location:    strings.TrimSpace(in.Location),
	}
	if in.Priority != "" {
		g.Priority = models.Priority(in.Priority)
	}
	if err := h.db.WithContext(c.UserContext()).Create(&g).Error; err != nil {
		return err
	}
	h.record(c.UserContext(), &g, filerID, notify.EventCreated, "", "")

	resp := fiber.Map{"success": true, "data": g}
	if form, err := c.MultipartForm(); err == nil {
		if files := formFiles(form); len(files) > 0 {
			resp["files"] = h.uploadAll(c.UserContext(), g.ID, files)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// List My Grievances godoc
// @Summary      List my grievances
// @Tags         grievances
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status filter"
// @Success      200  {object}  models.Page
// @Router       /grievances [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	filerID := auth.MustUserID(c)
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Grievance{}).Where("filer_id = ?", filerID)
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		q = q.Where("status = ?", s)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	rows := make([]models.Grievance, 0, size)
	if err := q.Preload("Assignee").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return err
	}

	return c.JSON(models.Page{
		Success: true, Page: page, PageSize: size, Total: total,
		Pages: utils.Pages(total, size), Count: len(rows), Data: rows,
	})
}

// List All Grievances godoc
// @Summary      Public grievance list
// @Description  Paginated, PII-redacted list with status/category/priority filters
// @Tags         grievances
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status"
// @Param        category  query string false "category"
// @Param        priority  query string false "priority"
// @Success      200  {object}  models.Page
// @Router       /grievances/all [get]
func (h *Handler) ListAll(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Grievance{})
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		q = q.Where("status = ?", s)
	}
	if s := strings.TrimSpace(c.Query("category")); s != "" {
		q = q.Where("category = ?", s)
	}
	if s := strings.TrimSpace(c.Query("priority")); s != "" {
		q = q.Where("priority = ?", s)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	var list []models.Grievance
	if err := q.Preload("Filer").Preload("Assignee").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&list).Error; err != nil {
		return err
	}

	now := h.engine.Now()
	items := make([]transparency.IssueSnapshot, 0, len(list))
	for i := range list {
		s := transparency.Snapshot(&list[i], now)
		s.Description = sanitize.Summary(s.Description, 240)
		items = append(items, s)
	}

	return c.JSON(models.Page{
		Success: true, Page: page, PageSize: size, Total: total,
		Pages: utils.Pages(total, size), Count: len(items), Data: items,
	})
}

// Get Grievance godoc
// @Summary      Grievance detail
// @Tags         grievances
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "grievance id (uuid)"
// @Success      200  {object}  models.Envelope
// @Failure      404  {object}  models.ErrorResponse
// @Router       /grievances/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	g, err := Load(c.UserContext(), h.db, id)
	if err != nil {
		return err
	}
	if g.Files == nil {
		g.Files = []models.GrievanceFile{}
	}
	if g.Comments == nil {
		g.Comments = []models.GrievanceComment{}
	}
	return c.JSON(models.Envelope{Success: true, Data: g})
}

// Update Grievance godoc
// @Summary      Update grievance
// @Description  Filer edits content while open and rates once resolved; staff change status, priority, assignee and resolution
// @Tags         grievances
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "grievance id (uuid)"
// @Param        payload  body  UpdateGrievanceRequest  true  "Fields to change"
// @Success      200  {object}  models.Envelope
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /grievances/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateGrievanceRequest
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
	staff := auth.IsStaff(c)

	var (
		oldStatus   models.Status
		oldAssignee *uuid.UUID
	)
	g, err := WithLocked(c.UserContext(), h.db, id, func(tx *gorm.DB, g *models.Grievance) error {
		oldStatus, oldAssignee = g.Status, g.AssignedToID
		isFiler := g.FilerID == actor

		if !isFiler && !staff {
			return apperr.Forbidden("only the filer or staff may update this grievance")
		}
		if in.touchesStaffFields() && !staff {
			return apperr.Forbidden("only staff may change status, priority, assignee or resolution")
		}
		if in.CitizenRating != nil && !isFiler {
			return apperr.Forbidden("only the filer may rate the resolution")
		}

		if in.touchesContent() {
			if !staff && g.Status != models.StatusOpen {
				return apperr.InvalidState("grievance can only be edited while open")
			}
			if in.Title != nil {
				g.Title = strings.TrimSpace(*in.Title)
			}
			if in.Description != nil {
				g.Description = strings.TrimSpace(*in.Description)
			}
			if in.Category != nil {
				g.Category = models.Category(*in.Category)
			}
			if in.Location != nil {
				g.Location = strings.TrimSpace(*in.Location)
			}
		}

		if in.AssignedTo != nil {
			assignee, _ := uuid.Parse(*in.AssignedTo)
			if err := RequireStaffUser(tx, assignee); err != nil {
				return err
			}
			if err := h.engine.Assign(g, assignee); err != nil {
				return err
			}
		}
		// An explicit status wins over the in-progress forced by Assign.
		if in.Status != nil {
			if err := h.engine.Transition(g, models.Status(*in.Status)); err != nil {
				return err
			}
		}
		if in.Priority != nil {
			g.Priority = models.Priority(*in.Priority)
		}
		if in.Resolution != nil {
			g.Resolution = strings.TrimSpace(*in.Resolution)
		}

		if in.CitizenRating != nil {
			if !g.Status.In(models.StatusResolved, models.StatusClosed) {
				return apperr.InvalidState("rating is only possible once the grievance is resolved or closed")
			}
			r := *in.CitizenRating
			g.CitizenRating = &r
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if g.AssignedToID != nil && (oldAssignee == nil || *oldAssignee != *g.AssignedToID) {
		h.record(ctx, g, actor, notify.EventAssigned, oldStatus, "")
	}
	if g.Status != oldStatus {
		h.record(ctx, g, actor, notify.EventStatusChanged, oldStatus, "")
	}

	return c.JSON(models.Envelope{Success: true, Data: g})
}

// RequireStaffUser checks that id is an active staff account.
func RequireStaffUser(tx *gorm.DB, id uuid.UUID) error {
	var u models.User
	if err := tx.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("assignee")
		}
		return err
	}
	if !u.Role.IsStaff() || !u.IsActive {
		return apperr.Validation("assignee must be an active staff member")
	}
	return nil
}

// Delete Grievance godoc
// @Summary      Delete grievance
// @Description  Admin removes a grievance, its comments and its stored attachments
// @Tags         grievances
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "grievance id (uuid)"
// @Success      200  {object}  models.Envelope
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /grievances/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	actor, err := auth.UserUUID(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	var g models.Grievance
	if err := h.db.WithContext(ctx).Preload("Files").First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("grievance")
		}
		return err
	}

	// Release storage first so a failure leaves the row for a retry
	// instead of orphaning objects.
	if len(g.Files) > 0 && h.store != nil {
		keys := make([]string, 0, len(g.Files))
		for _, f := range g.Files {
			keys = append(keys, f.Key)
		}
		if err := h.store.BulkDelete(ctx, keys); err != nil {
			h.log.Error().Err(err).Str("grievance_id", g.ID.String()).Msg("failed to release attachments")
			return fiber.NewError(fiber.StatusBadGateway, "could not release attached files")
		}
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("grievance_id = ?", g.ID).Delete(&models.GrievanceFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("grievance_id = ?", g.ID).Delete(&models.GrievanceComment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Grievance{}, "id = ?", g.ID).Error
	})
	if err != nil {
		return err
	}

	h.record(ctx, &g, actor, notify.EventDeleted, g.Status, "")
	return c.JSON(models.Envelope{Success: true, Data: fiber.Map{"id": g.ID, "files_released": len(g.Files)}})
}

// Upvote godoc
// @Summary      Upvote a grievance
// @Description  One vote per user; 25 votes raise priority to high and 50 to critical
// @Tags         grievances
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "grievance id (uuid)"
// @Success      200  {object}  UpvoteResult
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /grievances/{id}/upvote [post]
func (h *Handler) Upvote(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	voter, err := auth.UserUUID(c)
	if err != nil {
		return err
	}

	var escalated bool
	g, err := WithLocked(c.UserContext(), h.db, id, func(_ *gorm.DB, g *models.Grievance) error {
		var err error
		escalated, err = h.engine.Upvote(g, voter)
		return err
	})
	if err != nil {
		return err
	}

	if escalated {
		h.log.Info().
			Str("grievance_id", g.ID.String()).
			Str("priority", string(g.Priority)).
			Int("upvotes", g.Upvotes).
			Msg("priority escalated by upvotes")
		h.pub.Publish(notify.EventFor(notify.EventPriorityEscalated, g, voter))
	}

	return c.JSON(models.Envelope{Success: true, Data: UpvoteResult{
		Upvotes: g.Upvotes, Priority: g.Priority, Escalated: escalated,
	}})
}

// Comment godoc
// @Summary      Comment on a grievance
// @Tags         grievances
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "grievance id (uuid)"
// @Param        payload  body  CommentRequest  true  "Comment"
// @Success      201  {object}  models.Envelope
// @Failure      404  {object}  models.ErrorResponse
// @Router       /grievances/{id}/comment [post]
func (h *Handler) Comment(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in CommentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	author, err := auth.UserUUID(c)
	if err != nil {
		return err
	}

	var n int64
	if err := h.db.WithContext(c.UserContext()).Model(&models.Grievance{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("grievance")
	}

	cm := models.GrievanceComment{GrievanceID: id, UserID: author, Body: in.Comment}
	if err := h.db.WithContext(c.UserContext()).Create(&cm).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(models.Envelope{Success: true, Data: cm})
}

// Cancel Request godoc
// @Summary      Request cancellation
// @Description  Filer asks for the grievance to be withdrawn; an admin decides later
// @Tags         grievances
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CancelRequest  true  "grievanceId and reason"
// @Success      200  {object}  models.Envelope
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /grievances/cancel-request [post]
func (h *Handler) CancelRequest(c *fiber.Ctx) error {
	var in CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	requester, err := auth.UserUUID(c)
	if err != nil {
		return err
	}
	id, _ := uuid.Parse(in.GrievanceID)

	g, err := WithLocked(c.UserContext(), h.db, id, func(_ *gorm.DB, g *models.Grievance) error {
		return h.engine.RequestCancellation(g, requester, in.Reason)
	})
	if err != nil {
		return err
	}

	h.record(c.UserContext(), g, requester, notify.EventCancellationRequested, g.Status, strings.TrimSpace(in.Reason))
	return c.JSON(models.Envelope{Success: true, Data: fiber.Map{
		"id":           g.ID,
		"status":       g.Status,
		"cancellation": g.Cancellation,
	}})
}
