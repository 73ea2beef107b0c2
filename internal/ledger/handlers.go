package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/validation"
	"github.com/mbd888/riskgate/internal/wei"
)

// Handler provides HTTP endpoints for ledger reads and admin credits.
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up ledger routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/balance", validation.AddressParamMiddleware(), h.GetBalance)
	r.GET("/wallets/:address/transactions", validation.AddressParamMiddleware(), h.GetHistory)
	r.GET("/wallets/:address/stats", validation.AddressParamMiddleware(), h.GetStats)
	r.GET("/wallets/:address/connections", validation.AddressParamMiddleware(), h.GetConnections)
	r.GET("/transfers/:hash", h.GetTransfer)
}

// RegisterAdminRoutes sets up admin-only ledger routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/credits", h.RecordCredit)
}

// GetBalance handles GET /wallets/:address/balance
func (h *Handler) GetBalance(c *gin.Context) {
	address := validation.NormalizeAddress(c.Param("address"))

	balance, err := h.ledger.Balance(c.Request.Context(), address)
	if err != nil {
		h.logger.Error("balance lookup failed", "address", address, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":    address,
		"balanceWei": balance.String(),
		"balance":    wei.FormatEther(balance),
	})
}

// GetHistory handles GET /wallets/:address/transactions
func (h *Handler) GetHistory(c *gin.Context) {
	address := validation.NormalizeAddress(c.Param("address"))
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	transfers, err := h.ledger.History(c.Request.Context(), address, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transfers,
		"count":        len(transfers),
		"offset":       offset,
	})
}

// GetStats handles GET /wallets/:address/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to compute wallet stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetConnections handles GET /wallets/:address/connections
func (h *Handler) GetConnections(c *gin.Context) {
	conns, err := h.ledger.Connections(c.Request.Context(), c.Param("address"), queryInt(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve connections",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns, "count": len(conns)})
}

// GetTransfer handles GET /transfers/:hash
func (h *Handler) GetTransfer(c *gin.Context) {
	hash := c.Param("hash")
	if !validation.IsValidTxHash(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash", "message": "hash must be 0x + 64 hex chars"})
		return
	}
	t, err := h.ledger.GetTransfer(c.Request.Context(), hash)
	if errors.Is(err, ErrTransferNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Transfer not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger_error", "message": "Failed to retrieve transfer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": t})
}

// CreditRequest records funds arriving from outside the ledger (admin use).
type CreditRequest struct {
	To        string    `json:"to" binding:"required"`
	From      string    `json:"from"`
	Amount    string    `json:"amount"`
	AmountWei string    `json:"amountWei"`
	TxHash    string    `json:"txHash"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordCredit handles POST /admin/credits
func (h *Handler) RecordCredit(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "to is required"})
		return
	}
	if errs := validation.Validate(
		validation.ValidAddress("to", req.To),
		validation.ValidAddress("from", req.From),
		validation.PositiveEther("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}
	if req.TxHash != "" && !validation.IsValidTxHash(req.TxHash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash", "message": "txHash must be 0x + 64 hex chars"})
		return
	}

	value, ok := wei.ParsePositive(req.Amount, req.AmountWei)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": "amount or amountWei must be a positive value"})
		return
	}

	res, err := h.ledger.Ingest(c.Request.Context(), &Transfer{
		Hash:      req.TxHash,
		From:      req.From,
		To:        req.To,
		Value:     value,
		Timestamp: req.Timestamp.UTC(),
	})
	switch {
	case errors.Is(err, ErrHashConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "hash_conflict", "message": err.Error()})
		return
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	case err != nil:
		h.logger.Error("credit failed", "to", req.To, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit_failed", "message": "Failed to record credit"})
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func queryInt(c *gin.Context, key string, def int) int {
	if s := c.Query(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
