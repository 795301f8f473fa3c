package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/persistence/models"
)

// GormRegistrantRepository implements registrant.Repository using GORM
type GormRegistrantRepository struct {
	db *gorm.DB
}

// NewGormRegistrantRepository creates a new GormRegistrantRepository
func NewGormRegistrantRepository(db *gorm.DB) *GormRegistrantRepository {
	return &GormRegistrantRepository{db: db}
}

// FindByID finds a registrant by its id
func (r *GormRegistrantRepository) FindByID(ctx context.Context, id string) (*registrant.Registrant, error) {
	var model models.RegistrantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs finds registrants by ids; ids with no record are skipped
func (r *GormRegistrantRepository) FindByIDs(ctx context.Context, ids []string) ([]*registrant.Registrant, error) {
	if len(ids) == 0 {
		return []*registrant.Registrant{}, nil
	}
	var rows []models.RegistrantModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return registrantsToDomain(rows)
}

// FindByNameKey finds registrants whose folded full name equals key
func (r *GormRegistrantRepository) FindByNameKey(ctx context.Context, key string) ([]*registrant.Registrant, error) {
	var rows []models.RegistrantModel
	if err := r.db.WithContext(ctx).Where("name_key = ?", key).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return registrantsToDomain(rows)
}

// Save creates or updates a registrant
func (r *GormRegistrantRepository) Save(ctx context.Context, reg *registrant.Registrant) error {
	model := models.RegistrantModelFromDomain(reg)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveBatch creates or updates multiple registrants
func (r *GormRegistrantRepository) SaveBatch(ctx context.Context, rs []*registrant.Registrant) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([]*models.RegistrantModel, len(rs))
	for i, reg := range rs {
		rows[i] = models.RegistrantModelFromDomain(reg)
	}
	return r.db.WithContext(ctx).Save(rows).Error
}

func registrantsToDomain(rows []models.RegistrantModel) ([]*registrant.Registrant, error) {
	out := make([]*registrant.Registrant, 0, len(rows))
	for i := range rows {
		reg, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}

// Ensure GormRegistrantRepository implements registrant.Repository
var _ registrant.Repository = (*GormRegistrantRepository)(nil)
