package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// LogGrievanceHistory inserts an audit record into grievance_histories.
// Errors are ignored (best-effort logging).
func LogGrievanceHistory(
	ctx context.Context,
	db *gorm.DB,
	grievanceID, actorID uuid.UUID,
	action string,
	oldS, newS models.Status,
	reason string,
) {
	_ = db.WithContext(ctx).Create(&models.GrievanceHistory{
		GrievanceID: grievanceID,
		ActorID:     actorID,
		Action:      action,
		OldStatus:   oldS,
		NewStatus:   newS,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}).Error
}
