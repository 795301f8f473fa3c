package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/persistence/models"
)

// terminalStatuses are excluded from FindOpen
var terminalStatuses = []invoice.Status{invoice.StatusPaid, invoice.StatusCanceled, invoice.StatusVoided}

// GormInvoiceSummaryRepository implements invoice.SummaryRepository using GORM
type GormInvoiceSummaryRepository struct {
	db *gorm.DB
}

// NewGormInvoiceSummaryRepository creates a new GormInvoiceSummaryRepository
func NewGormInvoiceSummaryRepository(db *gorm.DB) *GormInvoiceSummaryRepository {
	return &GormInvoiceSummaryRepository{db: db}
}

// FindByID finds a summary by its external invoice id
func (r *GormInvoiceSummaryRepository) FindByID(ctx context.Context, id string) (*invoice.InvoiceSummary, error) {
	var model models.InvoiceSummaryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindOpen finds summaries whose status is not terminal
func (r *GormInvoiceSummaryRepository) FindOpen(ctx context.Context, filter shared.Filter) ([]*invoice.InvoiceSummary, error) {
	var rows []models.InvoiceSummaryModel
	query := r.db.WithContext(ctx).
		Model(&models.InvoiceSummaryModel{}).
		Where("status NOT IN ?", terminalStatuses)
	if err := r.applyFilter(query, filter).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*invoice.InvoiceSummary, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Save creates or updates a summary
func (r *GormInvoiceSummaryRepository) Save(ctx context.Context, s *invoice.InvoiceSummary) error {
	model := models.InvoiceSummaryModelFromDomain(s)
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *GormInvoiceSummaryRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	orderBy := ValidateSortField(filter.OrderBy, InvoiceSummarySortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(orderBy + " " + orderDir).Order("id ASC")

	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	return query
}

// Ensure GormInvoiceSummaryRepository implements invoice.SummaryRepository
var _ invoice.SummaryRepository = (*GormInvoiceSummaryRepository)(nil)
