// Package dashboard serves the aggregated admin statistics view.
package dashboard

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/gate"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/validation"
	"github.com/mbd888/riskgate/internal/wei"
)

// LedgerSource reports registry-wide counts and daily money flow.
type LedgerSource interface {
	Overview(ctx context.Context) (*ledger.Overview, error)
	Flow(ctx context.Context, address string, since time.Time) ([]*ledger.FlowPoint, error)
}

// AlertSource reports alert counts and recent alerts.
type AlertSource interface {
	Counts(ctx context.Context, since time.Time) (*alerts.Counts, error)
	List(ctx context.Context, f alerts.Filter) ([]*alerts.Alert, error)
}

// BlockedSource reports blocked-transfer statistics.
type BlockedSource interface {
	Stats(ctx context.Context, since time.Time) (*gate.BlockedStats, error)
}

// Handler provides dashboard API endpoints.
type Handler struct {
	wallets LedgerSource
	alerts  AlertSource
	blocked BlockedSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new dashboard handler.
func NewHandler(wallets LedgerSource, alertSrc AlertSource, blocked BlockedSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		wallets: wallets,
		alerts:  alertSrc,
		blocked: blocked,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterAdminRoutes sets up dashboard routes under the admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/statistics/dashboard", h.Dashboard)
	r.GET("/admin/statistics/alerts/recent", h.RecentAlerts)
	r.GET("/admin/statistics/flow", h.Flow)
}

// Dashboard returns the statistics cards: wallet registry totals, alert
// counts and blocked-transfer volume, with "today" bounded at UTC midnight.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	today := startOfDay(h.now())

	ov, err := h.wallets.Overview(ctx)
	if err != nil {
		h.fail(c, "wallet overview", err)
		return
	}
	ac, err := h.alerts.Counts(ctx, today)
	if err != nil {
		h.fail(c, "alert counts", err)
		return
	}
	bs, err := h.blocked.Stats(ctx, today)
	if err != nil {
		h.fail(c, "blocked stats", err)
		return
	}
	recent, err := h.alerts.List(ctx, alerts.Filter{Limit: 5})
	if err != nil {
		h.fail(c, "recent alerts", err)
		return
	}

	volume := ov.TotalVolume
	if volume == nil {
		volume = new(big.Int)
	}
	blockedValue := bs.TotalValue
	if blockedValue == nil {
		blockedValue = new(big.Int)
	}

	c.JSON(http.StatusOK, gin.H{
		"overview": gin.H{
			"totalWallets":         ov.Wallets,
			"highRiskWallets":      ov.HighRisk,
			"suspendedWallets":     ov.ByStatus[ledger.StatusSuspended],
			"frozenWallets":        ov.ByStatus[ledger.StatusFrozen],
			"underReviewWallets":   ov.ByStatus[ledger.StatusUnderReview],
			"totalTransfers":       ov.Transfers,
			"totalVolumeWei":       volume.String(),
			"totalVolume":          wei.FormatEther(volume),
			"totalAlerts":          ac.Total,
			"unacknowledgedAlerts": ac.Unacknowledged,
			"criticalAlerts":       ac.BySeverity[alerts.SeverityCritical],
			"alertsToday":          ac.Recent,
			"totalBlocked":         bs.TotalBlocked,
			"blockedToday":         bs.BlockedToday,
			"totalValueBlockedWei": blockedValue.String(),
			"totalValueBlocked":    wei.FormatEther(blockedValue),
		},
		"walletsByCategory": ov.ByCategory,
		"walletsByStatus":   ov.ByStatus,
		"alertsByType":      ac.ByType,
		"alertsBySeverity":  ac.BySeverity,
		"blockedByReason":   bs.ByReason,
		"recentAlerts":      recent,
		"recentTransfers":   ov.LastTransfers,
		"generatedAt":       h.now().UTC(),
	})
}

// RecentAlerts returns the newest alerts, optionally unacknowledged only.
func (h *Handler) RecentAlerts(c *gin.Context) {
	limit := parseLimit(c, 20, 200)
	list, err := h.alerts.List(c.Request.Context(), alerts.Filter{
		UnacknowledgedOnly: c.Query("unacknowledged") == "true",
		Limit:              limit,
	})
	if err != nil {
		h.fail(c, "recent alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": list,
		"count":  len(list),
	})
}

const maxFlowDays = 365

type flowDay struct {
	Date       string `json:"date"`
	InflowWei  string `json:"inflowWei"`
	Inflow     string `json:"inflow"`
	OutflowWei string `json:"outflowWei"`
	Outflow    string `json:"outflow"`
}

// Flow returns daily inflow and outflow over the last ?days (default 7),
// for one ?wallet or for the whole ledger.
func (h *Handler) Flow(c *gin.Context) {
	days := 7
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxFlowDays {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_days",
				"message": "days must be between 1 and 365",
			})
			return
		}
		days = n
	}

	var wallet *string
	address := ""
	if v := c.Query("wallet"); v != "" {
		if !validation.IsValidAddress(v) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "wallet must be a 0x-prefixed 40 hex character address",
			})
			return
		}
		address = validation.NormalizeAddress(v)
		wallet = &address
	}

	since := h.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	points, err := h.wallets.Flow(c.Request.Context(), address, since)
	if err != nil {
		h.fail(c, "money flow", err)
		return
	}

	out := make([]flowDay, 0, len(points))
	for _, p := range points {
		out = append(out, flowDay{
			Date:       p.Date,
			InflowWei:  p.Inflow.String(),
			Inflow:     wei.FormatEther(p.Inflow),
			OutflowWei: p.Outflow.String(),
			Outflow:    wei.FormatEther(p.Outflow),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"flowData":      out,
		"periodDays":    days,
		"walletAddress": wallet,
	})
}

func (h *Handler) fail(c *gin.Context, what string, err error) {
	h.logger.Error("dashboard query failed", "query", what, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to load dashboard statistics",
	})
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseLimit(c *gin.Context, defaultVal, maxVal int) int {
	limit := defaultVal
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxVal {
		limit = maxVal
	}
	return limit
}
