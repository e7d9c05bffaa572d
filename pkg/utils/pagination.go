package utils

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
)

// ParsePage reads ?page=&pageSize= with defaults 1 and 10 (max 50).
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// Pages is the page count for total rows.
func Pages(total int64, size int) int {
	return int(math.Ceil(float64(total) / float64(size)))
}

// ParamUUID parses a uuid route parameter.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}
