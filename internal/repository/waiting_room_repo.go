package repository

import (
	"context"
	"errors"
	"time"

	"hospital-waiting-room/internal/models"

	"gorm.io/gorm"
)

type WaitingRoomRepository struct {
	db *gorm.DB
}

func NewWaitingRoomRepo(db *gorm.DB) *WaitingRoomRepository {
	return &WaitingRoomRepository{db: db}
}

// GetState returns the desk row, creating an empty one on first use
func (r *WaitingRoomRepository) GetState(ctx context.Context, desk string) (*models.WaitingRoomState, error) {
	var state models.WaitingRoomState
	err := r.db.WithContext(ctx).Where("desk_name = ?", desk).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	state = models.WaitingRoomState{DeskName: desk}
	if err := r.db.WithContext(ctx).Create(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// SetCurrent points the desk at visitID
func (r *WaitingRoomRepository) SetCurrent(ctx context.Context, desk string, visitID uint, at time.Time) error {
	if _, err := r.GetState(ctx, desk); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.WaitingRoomState{}).
		Where("desk_name = ?", desk).
		Updates(map[string]interface{}{
			"current_visit_id": visitID,
			"notified_at":      at,
		}).Error
}

// ClearCurrentIf clears the desk pointer only when it still points at visitID
func (r *WaitingRoomRepository) ClearCurrentIf(ctx context.Context, desk string, visitID uint) error {
	return r.db.WithContext(ctx).Model(&models.WaitingRoomState{}).
		Where("desk_name = ? AND current_visit_id = ?", desk, visitID).
		Updates(map[string]interface{}{
			"current_visit_id": nil,
			"notified_at":      nil,
		}).Error
}
