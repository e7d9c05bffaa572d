package database

import (
	"fmt"
	"sort"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// Open connects to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Migrate creates/updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// CategoryRewrite reports how many rows one legacy value touched.
type CategoryRewrite struct {
	From   string          `json:"from"`
	To     models.Category `json:"to"`
	Column string          `json:"column"`
	Rows   int64           `json:"rows"`
}

// MigrateLegacyCategories rewrites category values from older schema
// revisions using models.LegacyCategories, for both the grievance category
// and the budget category. With dryRun it only counts matching rows.
func MigrateLegacyCategories(db *gorm.DB, dryRun bool) ([]CategoryRewrite, error) {
	legacy := make([]string, 0, len(models.LegacyCategories))
	for from := range models.LegacyCategories {
		legacy = append(legacy, from)
	}
	sort.Strings(legacy)

	var out []CategoryRewrite
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, column := range []string{"category", "budget_category"} {
			for _, from := range legacy {
				to := models.LegacyCategories[from]
				q := tx.Model(&models.Grievance{}).Where(column+" = ?", from)

				var rows int64
				if dryRun {
					if err := q.Count(&rows).Error; err != nil {
						return err
					}
				} else {
					res := q.UpdateColumn(column, to)
					if res.Error != nil {
						return res.Error
					}
					rows = res.RowsAffected
				}
				if rows > 0 {
					out = append(out, CategoryRewrite{From: from, To: to, Column: column, Rows: rows})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("migrate legacy categories: %w", err)
	}
	return out, nil
}
