package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chessreg/backend/internal/infrastructure/persistence"
	"github.com/chessreg/backend/internal/interfaces/http/dto"
)

// DatabaseProbe checks the backing store and reports its connection pool
type DatabaseProbe interface {
	Ping() error
	Stats() (persistence.ConnectionStats, error)
}

// HealthHandler reports liveness and database readiness
type HealthHandler struct {
	BaseHandler
	db        DatabaseProbe
	version   string
	startTime time.Time
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                       `json:"status"`
	Database  string                       `json:"database"`
	Pool      *persistence.ConnectionStats `json:"pool,omitempty"`
	Version   string                       `json:"version"`
	GoVersion string                       `json:"go_version"`
	Uptime    string                       `json:"uptime"`
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db DatabaseProbe, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, startTime: time.Now()}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "connected",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if stats, err := h.db.Stats(); err == nil {
		resp.Pool = &stats
	}
	if err := h.db.Ping(); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
