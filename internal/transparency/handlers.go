package transparency

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/utils"
)

// Handler serves the public transparency endpoints. Every aggregate is
// computed on read from the current rows.
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

func (h *Handler) all(c *fiber.Ctx, preload ...string) ([]models.Grievance, error) {
	q := h.db.WithContext(c.UserContext())
	for _, p := range preload {
		q = q.Preload(p)
	}
	var gs []models.Grievance
	err := q.Order("created_at ASC").Find(&gs).Error
	return gs, err
}

// Transparency Report godoc
// @Summary      Transparency report
// @Description  Resolution, SLA, category, budget and overdue aggregates over all grievances
// @Tags         transparency
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Router       /transparency/report [get]
func (h *Handler) Report(c *fiber.Ctx) error {
	gs, err := h.all(c, "Filer", "Assignee")
	if err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: BuildReport(gs, h.engine.Now())})
}

// Overdue godoc
// @Summary      Overdue grievances
// @Description  Every open or in-progress grievance older than seven days, oldest first
// @Tags         transparency
// @Produce      json
// @Success      200  {object}  map[string]any  "success, count, data"
// @Router       /transparency/overdue [get]
func (h *Handler) Overdue(c *fiber.Ctx) error {
	var gs []models.Grievance
	if err := h.db.WithContext(c.UserContext()).
		Preload("Filer").Preload("Assignee").
		Where("status IN ?", []models.Status{models.StatusOpen, models.StatusInProgress}).
		Find(&gs).Error; err != nil {
		return err
	}
	list := OverdueIssues(gs, h.engine.Now(), 0)
	return c.JSON(fiber.Map{"success": true, "count": len(list), "data": list})
}

// Categories godoc
// @Summary      Category breakdown
// @Tags         transparency
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Router       /transparency/categories [get]
func (h *Handler) Categories(c *fiber.Ctx) error {
	gs, err := h.all(c)
	if err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: CategoryStats(gs)})
}

// Trends godoc
// @Summary      Monthly filed vs resolved
// @Tags         transparency
// @Produce      json
// @Param        months  query int false "number of months (default 6, max 24)"
// @Success      200  {object}  models.Envelope
// @Router       /transparency/trends [get]
func (h *Handler) Trends(c *fiber.Ctx) error {
	months, err := strconv.Atoi(c.Query("months", "6"))
	if err != nil || months < 1 || months > 24 {
		months = 6
	}
	gs, err := h.all(c)
	if err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: MonthlyTrends(gs, h.engine.Now(), months)})
}

// Officers godoc
// @Summary      Per-officer workload
// @Tags         transparency
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Router       /transparency/officers [get]
func (h *Handler) Officers(c *fiber.Ctx) error {
	var gs []models.Grievance
	if err := h.db.WithContext(c.UserContext()).
		Preload("Assignee").
		Where("assigned_to_id IS NOT NULL").
		Find(&gs).Error; err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: OfficerStats(gs, h.engine.Now())})
}

// Budget godoc
// @Summary      Budget breakdown
// @Description  Allocation and spend per budget category over all grievances
// @Tags         transparency
// @Produce      json
// @Success      200  {object}  models.Envelope
// @Router       /transparency/budget [get]
func (h *Handler) Budget(c *fiber.Ctx) error {
	gs, err := h.all(c)
	if err != nil {
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: Budget(gs)})
}

// Export godoc
// @Summary      CSV export
// @Tags         transparency
// @Produce      text/csv
// @Success      200  {string}  string  "CSV"
// @Router       /transparency/export [get]
func (h *Handler) Export(c *fiber.Ctx) error {
	gs, err := h.all(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, gs, h.engine.Now()); err != nil {
		return err
	}
	h.log.Debug().Int("rows", len(gs)).Msg("transparency export")
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="grievances.csv"`)
	return c.Send(buf.Bytes())
}

// Issue godoc
// @Summary      Public issue snapshot
// @Tags         transparency
// @Produce      json
// @Param        id   path string true "grievance id (uuid)"
// @Success      200  {object}  models.Envelope
// @Failure      404  {object}  models.ErrorResponse
// @Router       /transparency/issue/{id} [get]
func (h *Handler) Issue(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var g models.Grievance
	if err := h.db.WithContext(c.UserContext()).
		Preload("Filer").Preload("Assignee").
		First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("grievance")
		}
		return err
	}
	return c.JSON(models.Envelope{Success: true, Data: Snapshot(&g, h.engine.Now())})
}
