package strikes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/validation"
)

// Handler exposes warning history and strike administration.
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new strikes handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up the per-wallet warning routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/warnings", validation.AddressParamMiddleware(), h.ListWarnings)
	r.POST("/wallets/:address/warnings/action", validation.AddressParamMiddleware(), h.SetAction)
}

// RegisterAdminRoutes sets up admin-only strike routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/strikes/:user/reset", h.Reset)
}

// ListWarnings handles GET /wallets/:address/warnings
func (h *Handler) ListWarnings(c *gin.Context) {
	user := validation.NormalizeAddress(c.Param("address"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	count, err := h.ledger.Count(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("count warnings failed", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "strikes_error", "message": "Failed to load warnings"})
		return
	}
	list, err := h.ledger.List(c.Request.Context(), user, limit)
	if err != nil {
		h.logger.Error("list warnings failed", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "strikes_error", "message": "Failed to load warnings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"currentWarnings": count,
		"maxWarnings":     h.ledger.MaxWarnings(),
		"warnings":        list,
	})
}

// ActionRequest records how the user responded to their latest warning.
type ActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// SetAction handles POST /wallets/:address/warnings/action
func (h *Handler) SetAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "action is required"})
		return
	}
	w, err := h.ledger.SetAction(c.Request.Context(), validation.NormalizeAddress(c.Param("address")), Action(strings.ToLower(req.Action)))
	switch {
	case errors.Is(err, ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action", "message": "action must be ignored, cancelled or reported"})
	case errors.Is(err, ErrNoWarnings):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No warnings for this wallet"})
	case err != nil:
		h.logger.Error("set warning action failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "strikes_error", "message": "Failed to update warning"})
	default:
		c.JSON(http.StatusOK, gin.H{"warning": w})
	}
}

// Reset handles POST /admin/strikes/:user/reset
func (h *Handler) Reset(c *gin.Context) {
	user := c.Param("user")
	if validation.IsValidAddress(user) {
		user = validation.NormalizeAddress(user)
	}
	if err := h.ledger.Reset(c.Request.Context(), user); err != nil {
		if errors.Is(err, ErrInvalidUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user", "message": err.Error()})
			return
		}
		h.logger.Error("reset strikes failed", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "strikes_error", "message": "Failed to reset strikes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": user, "currentWarnings": 0})
}
