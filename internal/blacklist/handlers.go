package blacklist

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/validation"
)

// Handler exposes admin blacklist maintenance.
type Handler struct {
	index  *Index
	logger *slog.Logger
}

// NewHandler creates a new blacklist handler
func NewHandler(index *Index, logger *slog.Logger) *Handler {
	return &Handler{index: index, logger: logger}
}

// RegisterAdminRoutes sets up admin-only blacklist routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/blacklist", h.List)
	r.POST("/admin/blacklist", h.Add)
	r.GET("/admin/blacklist/:address", validation.AddressParamMiddleware(), h.Check)
	r.DELETE("/admin/blacklist/:address", validation.AddressParamMiddleware(), h.Remove)
}

// AddRequest lists an address.
type AddRequest struct {
	Address     string     `json:"address" binding:"required"`
	Category    string     `json:"category" binding:"required"`
	Source      string     `json:"source" binding:"required"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// Add handles POST /admin/blacklist
func (h *Handler) Add(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "address, category and source are required"})
		return
	}
	if errs := validation.Validate(
		validation.ValidAddress("address", req.Address),
		validation.MaxLength("category", req.Category, 50),
		validation.MaxLength("source", req.Source, 100),
		validation.MaxLength("description", req.Description, validation.MaxNoteLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}
	sev, ok := ParseSeverity(req.Severity)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_severity", "message": "severity must be LOW, MEDIUM, HIGH or CRITICAL"})
		return
	}

	e, err := h.index.Add(c.Request.Context(), &Entry{
		Address:     req.Address,
		Category:    req.Category,
		Source:      req.Source,
		Description: validation.SanitizeString(req.Description, validation.MaxNoteLength),
		Severity:    sev,
		ExpiresAt:   req.ExpiresAt,
	})
	if errors.Is(err, ErrInvalidEntry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entry", "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("blacklist add failed", "address", req.Address, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blacklist_error", "message": "Failed to add entry"})
		return
	}
	h.logger.Info("address blacklisted", "address", e.Address, "category", e.Category, "severity", e.Severity)
	c.JSON(http.StatusCreated, gin.H{"entry": e})
}

// Check handles GET /admin/blacklist/:address
func (h *Handler) Check(c *gin.Context) {
	e, err := h.index.Lookup(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blacklist_error", "message": "Lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blacklisted": e != nil, "entry": e})
}

// Remove handles DELETE /admin/blacklist/:address
func (h *Handler) Remove(c *gin.Context) {
	address := c.Param("address")
	err := h.index.Remove(c.Request.Context(), address)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Address is not listed"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blacklist_error", "message": "Failed to retire entry"})
		return
	}
	h.logger.Info("blacklist entry retired", "address", address)
	c.JSON(http.StatusOK, gin.H{"retired": true, "address": validation.NormalizeAddress(address)})
}

// List handles GET /admin/blacklist
func (h *Handler) List(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "true") != "false"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.index.List(c.Request.Context(), activeOnly, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blacklist_error", "message": "Failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
