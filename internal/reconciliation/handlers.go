package reconciliation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/logging"
)

// Handler serves the on-demand reconciliation endpoint.
type Handler struct {
	runner *Runner
	logger *slog.Logger
}

// NewHandler creates a reconciliation handler.
func NewHandler(runner *Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, logger: logger}
}

// RegisterAdminRoutes sets up admin-only reconciliation routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/reconcile", h.Reconcile)
}

// Reconcile runs a verification pass, or with ?cached=true returns the
// last completed report.
func (h *Handler) Reconcile(c *gin.Context) {
	if c.Query("cached") == "true" {
		last := h.runner.Last()
		if last == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No reconciliation run has completed yet",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"report": last})
		return
	}

	report, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_running",
				"message": "A reconciliation run is already in progress",
			})
			return
		}
		logging.L(c.Request.Context()).Error("reconciliation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Reconciliation failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}
