package repository

import (
	"context"
	"errors"

	"hospital-waiting-room/internal/models"
	apperrors "hospital-waiting-room/pkg/errors"

	"gorm.io/gorm"
)

type LedgerReceiptRepository struct {
	db *gorm.DB
}

func NewLedgerReceiptRepo(db *gorm.DB) *LedgerReceiptRepository {
	return &LedgerReceiptRepository{db: db}
}

// Create stores a receipt. A second receipt for the same record key is a conflict.
func (r *LedgerReceiptRepository) Create(ctx context.Context, receipt *models.LedgerReceipt) error {
	err := r.db.WithContext(ctx).Create(receipt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("ledger receipt already recorded for " + receipt.RecordKey)
	}
	return err
}

// FindByRecordKey returns the receipt for a record key
func (r *LedgerReceiptRepository) FindByRecordKey(ctx context.Context, key string) (*models.LedgerReceipt, error) {
	var receipt models.LedgerReceipt
	err := r.db.WithContext(ctx).Where("record_key = ?", key).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("ledger receipt not found")
		}
		return nil, err
	}
	return &receipt, nil
}

// ListUnreconciled returns receipts whose visit has not been finalized yet
func (r *LedgerReceiptRepository) ListUnreconciled(ctx context.Context, limit int) ([]models.LedgerReceipt, error) {
	var receipts []models.LedgerReceipt
	q := r.db.WithContext(ctx).Where("reconciled = ?", false).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&receipts).Error
	return receipts, err
}

// MarkReconciled flags a receipt as applied to its visit
func (r *LedgerReceiptRepository) MarkReconciled(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.LedgerReceipt{}).
		Where("id = ?", id).
		Update("reconciled", true).Error
}
