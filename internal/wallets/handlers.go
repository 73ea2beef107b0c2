package wallets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/auth"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/validation"
)

// Handler serves wallet status and registry administration.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new wallets handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up public wallet routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/status", validation.AddressParamMiddleware(), h.GetStatus)
}

// RegisterAdminRoutes sets up admin-only wallet routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/wallets", h.ListWallets)
	r.POST("/admin/wallets", h.RegisterWallet)
	r.GET("/admin/wallets/:address", validation.AddressParamMiddleware(), h.GetWallet)
	r.PUT("/admin/wallets/:address/status", validation.AddressParamMiddleware(), h.UpdateStatus)
	r.GET("/admin/wallets/:address/audit", validation.AddressParamMiddleware(), h.ListAudit)
}

// GetStatus handles GET /wallets/:address/status
func (h *Handler) GetStatus(c *gin.Context) {
	v, err := h.service.Status(c.Request.Context(), c.Param("address"))
	if errors.Is(err, ledger.ErrWalletNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Wallet not found"})
		return
	}
	if err != nil {
		h.logger.Error("wallet status read failed", "address", c.Param("address"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallets_error", "message": "Failed to read wallet status"})
		return
	}
	c.JSON(http.StatusOK, v)
}

// GetWallet handles GET /admin/wallets/:address
func (h *Handler) GetWallet(c *gin.Context) {
	w, err := h.service.Get(c.Request.Context(), c.Param("address"))
	if errors.Is(err, ledger.ErrWalletNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Wallet not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallets_error", "message": "Failed to load wallet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// ListWallets handles GET /admin/wallets
func (h *Handler) ListWallets(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		status = c.Query("accountStatus")
	}
	f := ledger.WalletFilter{
		Status:   ledger.AccountStatus(strings.ToLower(status)),
		Category: c.Query("category"),
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if v := c.Query("minRiskScore"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 || score > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter", "message": "minRiskScore must be between 0 and 100"})
			return
		}
		f.MinRiskScore = score
	}

	res, err := h.service.List(c.Request.Context(), f)
	if errors.Is(err, ErrInvalidStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("list wallets failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallets_error", "message": "Failed to list wallets"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// StatusRequest is the body of an admin status change.
type StatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Reason  string `json:"reason"`
	AdminID string `json:"adminId"`
}

// UpdateStatus handles PUT /admin/wallets/:address/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "status is required"})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("reason", req.Reason, 500),
		validation.MaxLength("adminId", req.AdminID, 100),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}

	actor := req.AdminID
	if actor == "" {
		actor = auth.Actor(c)
	}
	res, err := h.service.ChangeStatus(c.Request.Context(), c.Param("address"),
		ledger.AccountStatus(strings.ToLower(req.Status)), req.Reason, actor)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Wallet not found"})
	case errors.Is(err, ledger.ErrStatusUnchanged):
		c.JSON(http.StatusConflict, gin.H{"error": "status_unchanged", "message": "Wallet already has that status"})
	case err != nil:
		h.logger.Error("status change failed", "address", c.Param("address"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallets_error", "message": "Failed to update status"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// RegisterRequest creates or relabels a wallet.
type RegisterRequest struct {
	Address    string `json:"address" binding:"required"`
	Label      string `json:"label"`
	EntityType string `json:"entityType"`
}

// RegisterWallet handles POST /admin/wallets
func (h *Handler) RegisterWallet(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "address is required"})
		return
	}
	w, err := h.service.Register(c.Request.Context(), RegisterInput{Address: req.Address, Label: req.Label, EntityType: req.EntityType})
	if errors.Is(err, ErrInvalidAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("register wallet failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallets_error", "message": "Failed to register wallet"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"wallet": w})
}

// ListAudit handles GET /admin/wallets/:address/audit
func (h *Handler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.service.Audit(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallets_error", "message": "Failed to load audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": list, "count": len(list)})
}
