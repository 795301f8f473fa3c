// Package handler implements the HTTP endpoints of the reconciliation API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/interfaces/http/dto"
	"github.com/chessreg/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	middleware.SetErrorCode(c, code)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts service errors to HTTP responses. Domain errors keep
// their code and message; billing failures are reported by their class.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	switch reconcile.Classify(err) {
	case reconcile.KindTransient:
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnavailable, "The billing service is temporarily unavailable; retry later")
		return
	case reconcile.KindConfiguration:
		h.ErrorWithCode(c, dto.ErrCodeUpstreamConfiguration, "The billing service rejected the configured credentials")
		return
	}

	var statusErr *integration.StatusError
	if errors.As(err, &statusErr) || errors.Is(err, integration.ErrInvoiceCreationFailed) {
		h.ErrorWithCode(c, dto.ErrCodeUpstreamRejected, err.Error())
		return
	}

	_ = c.Error(err)
	h.InternalError(c, "An unexpected error occurred")
}
