package risk

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/validation"
)

// Handler exposes score ingestion and assessment history to admins.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdminRoutes sets up admin-only risk routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/wallets/:address/risk", validation.AddressParamMiddleware(), h.IngestScore)
	r.GET("/admin/wallets/:address/assessments", validation.AddressParamMiddleware(), h.ListAssessments)
}

// ScoreRequest carries one score from the scoring model.
type ScoreRequest struct {
	Score        *float64           `json:"score" binding:"required"`
	Category     string             `json:"category"`
	Factors      map[string]float64 `json:"factors"`
	ModelVersion string             `json:"modelVersion"`
}

// IngestScore handles POST /admin/wallets/:address/risk
func (h *Handler) IngestScore(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "score is required"})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("category", req.Category, 50),
		validation.MaxLength("modelVersion", req.ModelVersion, 50),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}

	a, err := h.service.Ingest(c.Request.Context(), ScoreInput{
		Address:      c.Param("address"),
		Score:        *req.Score,
		Category:     req.Category,
		Factors:      req.Factors,
		ModelVersion: req.ModelVersion,
	})
	if errors.Is(err, ErrInvalidScore) || errors.Is(err, ErrInvalidAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_score", "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("score ingestion failed", "address", c.Param("address"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "risk_error", "message": "Failed to record score"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assessment": a})
}

// ListAssessments handles GET /admin/wallets/:address/assessments
func (h *Handler) ListAssessments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.service.History(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "risk_error", "message": "Failed to list assessments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list, "count": len(list)})
}
