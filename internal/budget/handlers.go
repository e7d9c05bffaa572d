package budget

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/internal/grievances"
	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/utils"
	"github.com/aldoetobex/civic-grievance-backend/pkg/validation"
)

type Handler struct {
	db     *gorm.DB
	engine *lifecycle.Engine
	log    zerolog.Logger
}

func NewHandler(db *gorm.DB, engine *lifecycle.Engine, log zerolog.Logger) *Handler {
	if engine == nil {
		engine = lifecycle.New(nil)
	}
	return &Handler{db: db, engine: engine, log: log}
}

// UpdateBudgetRequest replaces only the fields that are present.
type UpdateBudgetRequest struct {
	Allocated   *int64            `json:"allocated" validate:"omitempty,gte=0"`
	Spent       *int64            `json:"spent" validate:"omitempty,gte=0"`
	Category    *string           `json:"category" validate:"omitempty,category"`
	Description *string           `json:"description" validate:"omitempty,max=1000"`
	Expenses    *[]models.Expense `json:"expenses"`
}

type ExpenseRequest struct {
	Item string `json:"item" validate:"required,max=200"`
	Cost int64  `json:"cost" validate:"gt=0"`
}

// Budget Overview godoc
// @Summary      Budget overview
// @Description  Allocated vs spent over resolved and closed grievances, per category
// @Tags         budget
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Router       /budget/overview [get]
func (h *Handler) Overview(c *fiber.Ctx) error {
	var gs []models.Grievance
	if err := h.db.WithContext(c.UserContext()).
		Where("status IN ? AND budget_allocated > 0", []models.Status{models.StatusResolved, models.StatusClosed}).
		Find(&gs).Error; err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: Overview(gs)})
}

// Budget Trends godoc
// @Summary      Monthly budget trends
// @Tags         budget
// @Produce      json
// @Param        months  query int false "look-back window in months (default 6)"
// @Success      200  {object}  models.Envelope
// @Router       /budget/trends [get]
func (h *Handler) Trends(c *fiber.Ctx) error {
	months, err := strconv.Atoi(c.Query("months", strconv.Itoa(DefaultTrendMonths)))
	if err != nil || months < 1 || months > 60 {
		months = DefaultTrendMonths
	}
	since := h.engine.Now().AddDate(0, -months, 0)

	var gs []models.Grievance
	if err := h.db.WithContext(c.UserContext()).
		Where("resolution_date >= ? AND budget_allocated > 0", since).
		Order("resolution_date ASC").
		Find(&gs).Error; err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: Trends(gs, since)})
}

// Update Budget godoc
// @Summary      Update a grievance budget
// @Tags         budget
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "grievance id (uuid)"
// @Param        payload  body  UpdateBudgetRequest  true  "Fields to replace"
// @Success      200  {object}  models.Envelope
// @Failure      404  {object}  models.ErrorResponse
// @Router       /budget/{id} [put]
func (h *Handler) UpdateBudget(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateBudgetRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	g, err := grievances.WithLocked(c.UserContext(), h.db, id, func(_ *gorm.DB, g *models.Grievance) error {
		b := &g.Budget
		if in.Allocated != nil {
			b.Allocated = *in.Allocated
		}
		if in.Spent != nil {
			b.Spent = *in.Spent
		}
		if in.Category != nil {
			b.Category = models.Category(*in.Category)
		}
		if in.Description != nil {
			b.Description = strings.TrimSpace(*in.Description)
		}
		if in.Expenses != nil {
			for _, e := range *in.Expenses {
				if e.Cost < 0 || strings.TrimSpace(e.Item) == "" {
					return apperr.Validation("every expense needs an item and a non-negative cost")
				}
			}
			b.Expenses = *in.Expenses
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Info().
		Str("grievance_id", g.ID.String()).
		Str("actor_id", auth.MustUserID(c)).
		Int64("allocated", g.Budget.Allocated).
		Int64("spent", g.Budget.Spent).
		Msg("budget updated")
	return c.JSON(models.Envelope{Success: true, Data: g})
}

// Add Expense godoc
// @Summary      Book an expense
// @Description  Appends an itemized expense and adds its cost to spent
// @Tags         budget
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "grievance id (uuid)"
// @Param        payload  body  ExpenseRequest  true  "item and cost"
// @Success      200  {object}  models.Envelope
// @Failure      404  {object}  models.ErrorResponse
// @Router       /budget/{id}/expense [post]
func (h *Handler) AddExpense(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in ExpenseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Item = strings.TrimSpace(in.Item)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	g, err := grievances.WithLocked(c.UserContext(), h.db, id, func(_ *gorm.DB, g *models.Grievance) error {
		g.Budget.Expenses = append(g.Budget.Expenses, models.Expense{
			Item: in.Item,
			Cost: in.Cost,
			Date: h.engine.Now().UTC(),
		})
		g.Budget.Spent += in.Cost
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: g})
}
