package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRepository persists and retrieves batch records by identifier.
type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	// CreateIgnoreConflict inserts the batch unless its id already exists,
	// reporting whether a row was written. Used by the idempotent seeder.
	CreateIgnoreConflict(ctx context.Context, b *domain.Batch) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context) ([]domain.Batch, error)
	// Update applies a partial update from column name to value. A nil value
	// clears the column. Returns ErrNotFound when no row matches.
	Update(ctx context.Context, id string, fields map[string]any) error
	// Delete removes the batch if present. Deleting an absent id is not an
	// error.
	Delete(ctx context.Context, id string) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return domain.ErrConflict
		}
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) CreateIgnoreConflict(ctx context.Context, b *domain.Batch) (bool, error) {
	model := batchModelFromDomain(b)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

// List returns all batches, open ones first, then by end date and start date
// descending, matching the order the batch list screen shows.
func (r *GormBatchRepo) List(ctx context.Context) ([]domain.Batch, error) {
	var models []BatchModel
	err := r.db.WithContext(ctx).
		Order("end_date IS NULL DESC").
		Order("end_date DESC").
		Order("start_date DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}

func (r *GormBatchRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormBatchRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&BatchModel{}).Error
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
