package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/infrastructure/logger"
	"github.com/chessreg/backend/internal/interfaces/http/dto"
	"github.com/chessreg/backend/internal/interfaces/http/middleware"
)

// Importer imports a range of external invoices
type Importer interface {
	ImportRange(ctx context.Context, start, end int) (*reconcile.ImportResult, error)
}

// StatusRefresher reconciles the payment status of one invoice
type StatusRefresher interface {
	RefreshInvoiceStatus(ctx context.Context, invoiceID string) (*reconcile.StatusSnapshot, error)
}

// ChangeRequestDecider approves or denies change requests
type ChangeRequestDecider interface {
	ApproveChangeRequest(ctx context.Context, requestID uuid.UUID, approver string) (*reconcile.ApproveResult, error)
	DenyChangeRequest(ctx context.Context, requestID uuid.UUID, approver string) error
}

// ReconcileHandler exposes the reconciliation operations
type ReconcileHandler struct {
	BaseHandler
	importer  Importer
	refresher StatusRefresher
	decider   ChangeRequestDecider
	// importLimit guards the import route, which fans out to the billing API
	importLimit gin.HandlerFunc
}

// NewReconcileHandler creates a new ReconcileHandler. importLimit may be nil.
func NewReconcileHandler(importer Importer, refresher StatusRefresher, decider ChangeRequestDecider, importLimit gin.HandlerFunc) *ReconcileHandler {
	return &ReconcileHandler{
		importer:    importer,
		refresher:   refresher,
		decider:     decider,
		importLimit: importLimit,
	}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *ReconcileHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := []gin.HandlerFunc{h.ImportRange}
	if h.importLimit != nil {
		imports = append([]gin.HandlerFunc{h.importLimit}, imports...)
	}
	rg.POST("/imports", imports...)
	rg.POST("/invoices/:id/refresh", h.RefreshInvoiceStatus)
	rg.POST("/change-requests/:id/approve", h.ApproveChangeRequest)
	rg.POST("/change-requests/:id/deny", h.DenyChangeRequest)
}

// ImportRange handles POST /imports. Per-invoice failures are part of the
// 200 response body; only an unreadable invoice listing fails the request.
func (h *ReconcileHandler) ImportRange(c *gin.Context) {
	var req dto.ImportRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.importer.ImportRange(c.Request.Context(), *req.Start, *req.End)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RefreshInvoiceStatus handles POST /invoices/:id/refresh
func (h *ReconcileHandler) RefreshInvoiceStatus(c *gin.Context) {
	var uri dto.InvoiceURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	snapshot, err := h.refresher.RefreshInvoiceStatus(c.Request.Context(), uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snapshot)
}

// ApproveChangeRequest handles POST /change-requests/:id/approve
func (h *ReconcileHandler) ApproveChangeRequest(c *gin.Context) {
	id, approver, ok := h.bindDecision(c)
	if !ok {
		return
	}

	ctx := logger.WithActor(c.Request.Context(), approver)
	result, err := h.decider.ApproveChangeRequest(ctx, id, approver)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DenyChangeRequest handles POST /change-requests/:id/deny
func (h *ReconcileHandler) DenyChangeRequest(c *gin.Context) {
	id, approver, ok := h.bindDecision(c)
	if !ok {
		return
	}

	ctx := logger.WithActor(c.Request.Context(), approver)
	if err := h.decider.DenyChangeRequest(ctx, id, approver); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"requestId": id, "status": invoice.RequestStatusDenied})
}

func (h *ReconcileHandler) bindDecision(c *gin.Context) (uuid.UUID, string, bool) {
	var uri dto.ChangeRequestURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return uuid.Nil, "", false
	}
	var req dto.ChangeRequestDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return uuid.Nil, "", false
	}
	return uuid.MustParse(uri.ID), req.Approver, true
}
