package alerts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/auth"
)

// Handler serves the admin alert feed.
type Handler struct {
	notifier *Notifier
	logger   *slog.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(notifier *Notifier, logger *slog.Logger) *Handler {
	return &Handler{notifier: notifier, logger: logger}
}

// RegisterAdminRoutes sets up admin-only alert routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/alerts", h.ListAlerts)
	r.POST("/admin/alerts/:id/ack", h.Acknowledge)
}

// ListAlerts handles GET /admin/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	f := Filter{
		Type:               Type(strings.ToUpper(c.Query("type"))),
		WalletAddress:      strings.ToLower(c.Query("address")),
		Severity:           Severity(strings.ToUpper(c.Query("severity"))),
		UnacknowledgedOnly: c.Query("unacknowledged") == "true",
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_since", "message": "since must be RFC3339"})
			return
		}
		f.Since = t
	}

	list, err := h.notifier.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list alerts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alerts_error", "message": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list, "count": len(list)})
}

// AckRequest names the admin acknowledging an alert.
type AckRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy"`
}

// Acknowledge handles POST /admin/alerts/:id/ack
func (h *Handler) Acknowledge(c *gin.Context) {
	var req AckRequest
	_ = c.ShouldBindJSON(&req)
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = auth.Actor(c)
	}
	if len(req.AcknowledgedBy) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": "acknowledgedBy exceeds 100 characters"})
		return
	}

	a, err := h.notifier.Acknowledge(c.Request.Context(), c.Param("id"), req.AcknowledgedBy)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Alert not found"})
	case errors.Is(err, ErrAlreadyAcknowledged):
		c.JSON(http.StatusConflict, gin.H{"error": "already_acknowledged", "message": "Alert already acknowledged"})
	case err != nil:
		h.logger.Error("acknowledge alert failed", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alerts_error", "message": "Failed to acknowledge alert"})
	default:
		c.JSON(http.StatusOK, gin.H{"alert": a})
	}
}
