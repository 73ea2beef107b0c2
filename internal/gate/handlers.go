package gate

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/validation"
	"github.com/mbd888/riskgate/internal/wei"
)

// Handler serves the transfer endpoint and the blocked-transfer log.
type Handler struct {
	gate    *Gate
	blocked BlockedStore
	logger  *slog.Logger
}

// NewHandler creates a new gate handler
func NewHandler(gate *Gate, blocked BlockedStore, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, blocked: blocked, logger: logger}
}

// RegisterRoutes sets up the transfer route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transfers", h.SubmitTransfer)
}

// RegisterAdminRoutes sets up admin-only blocked-transfer routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/blocked-transfers", h.ListBlocked)
}

// SubmitTransfer handles POST /transfers
func (h *Handler) SubmitTransfer(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}
	if errs := validation.Validate(
		validation.Required("from", req.From),
		validation.Required("to", req.To),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}

	resp, err := h.gate.Submit(c.Request.Context(), &req)
	if err != nil {
		status, code := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("transfer failed", "from", req.From, "to", req.To, "error", err)
			c.JSON(status, gin.H{"error": code, "message": publicMessage(status)})
			return
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSenderRestricted):
		return http.StatusForbidden, "account_restricted"
	case errors.Is(err, ErrHashConflict):
		return http.StatusConflict, "hash_conflict"
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusBadRequest, "insufficient_balance"
	case IsValidation(err):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable, "transient_conflict"
	default:
		return http.StatusInternalServerError, "transfer_failed"
	}
}

func publicMessage(status int) string {
	if status == http.StatusServiceUnavailable {
		return "Concurrent update conflict, retry the request"
	}
	return "Transfer could not be processed"
}

// ListBlocked handles GET /admin/blocked-transfers
func (h *Handler) ListBlocked(c *gin.Context) {
	f := BlockedFilter{
		From:   strings.ToLower(c.Query("from")),
		To:     strings.ToLower(c.Query("to")),
		Reason: BlockReason(c.Query("reason")),
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	ctx := c.Request.Context()
	list, err := h.blocked.List(ctx, f)
	if err != nil {
		h.logger.Error("list blocked transfers failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "gate_error", "message": "Failed to list blocked transfers"})
		return
	}
	now := time.Now().UTC()
	stats, err := h.blocked.Stats(ctx, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		h.logger.Error("blocked transfer stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "gate_error", "message": "Failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"blockedTransfers": list,
		"count":            len(list),
		"statistics": gin.H{
			"totalBlocked":         stats.TotalBlocked,
			"blockedToday":         stats.BlockedToday,
			"totalValueBlockedWei": stats.TotalValue.String(),
			"totalValueBlocked":    wei.FormatEther(stats.TotalValue),
			"byReason":             stats.ByReason,
		},
	})
}
