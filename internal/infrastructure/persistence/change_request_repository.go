package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/persistence/models"
)

// GormChangeRequestRepository implements invoice.ChangeRequestRepository using GORM
type GormChangeRequestRepository struct {
	db *gorm.DB
}

// NewGormChangeRequestRepository creates a new GormChangeRequestRepository
func NewGormChangeRequestRepository(db *gorm.DB) *GormChangeRequestRepository {
	return &GormChangeRequestRepository{db: db}
}

// FindByID finds a change request by id
func (r *GormChangeRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.ChangeRequest, error) {
	var model models.ChangeRequestModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a change request
func (r *GormChangeRequestRepository) Save(ctx context.Context, cr *invoice.ChangeRequest) error {
	model := models.ChangeRequestModelFromDomain(cr)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves a change request with optimistic locking
func (r *GormChangeRequestRepository) SaveWithLock(ctx context.Context, cr *invoice.ChangeRequest) error {
	model := models.ChangeRequestModelFromDomain(cr)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", cr.ID, cr.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.ErrConcurrencyConflict.Code, "The change request has been modified by another transaction")
	}
	return nil
}

// Ensure GormChangeRequestRepository implements invoice.ChangeRequestRepository
var _ invoice.ChangeRequestRepository = (*GormChangeRequestRepository)(nil)
