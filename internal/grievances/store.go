package grievances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// WithLocked loads grievance id with SELECT ... FOR UPDATE, hands it to fn,
// and saves it back in the same transaction. Concurrent mutations of one
// grievance (e.g. two upvotes) are serialised by the row lock.
//
// Returning an error from fn rolls back and leaves the row untouched.
func WithLocked(
	ctx context.Context,
	db *gorm.DB,
	id uuid.UUID,
	fn func(tx *gorm.DB, g *models.Grievance) error,
) (*models.Grievance, error) {
	var g models.Grievance
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&g, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("grievance")
			}
			return err
		}
		if err := fn(tx, &g); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(&g).Error
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Load fetches a grievance with filer, assignee, files and comments.
func Load(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.Grievance, error) {
	var g models.Grievance
	err := db.WithContext(ctx).
		Preload("Filer").
		Preload("Assignee").
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&g, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("grievance")
		}
		return nil, err
	}
	return &g, nil
}
