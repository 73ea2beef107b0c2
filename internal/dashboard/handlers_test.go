package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/gate"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/mbd888/riskgate/internal/wei"
)

const (
	alice   = "0x00000000000000000000000000000000000a11ce"
	bob     = "0x0000000000000000000000000000000000000b0b"
	mallory = "0x000000000000000000000000000000000000bad1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestHandler creates a handler with in-memory stores populated with test data.
func setupTestHandler(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	ctx := context.Background()

	store := ledger.NewMemoryStore()
	l := ledger.New(store)
	_, err := l.Ingest(ctx, &ledger.Transfer{To: alice, Value: wei.Ether(5)})
	require.NoError(t, err)
	_, err = l.Commit(ctx, &ledger.Transfer{From: alice, To: bob, Value: wei.Ether(2)})
	require.NoError(t, err)
	_, err = store.SetRiskScore(ctx, mallory, 92, "scam")
	require.NoError(t, err)
	_, _, err = store.UpdateStatus(ctx, bob, ledger.StatusChange{Status: ledger.StatusSuspended, Actor: ledger.FlaggedBySystem})
	require.NoError(t, err)

	notifier := alerts.NewNotifier(alerts.NewMemoryStore(), nil)
	_, err = notifier.Raise(ctx, &alerts.Alert{WalletAddress: mallory, AlertType: alerts.TypeBlockedTransfer, Severity: alerts.SeverityCritical, Message: "blocked"})
	require.NoError(t, err)
	_, err = notifier.Raise(ctx, &alerts.Alert{WalletAddress: bob, AlertType: alerts.TypeUserSuspended, Severity: alerts.SeverityHigh, Message: "suspended"})
	require.NoError(t, err)
	_, err = notifier.Raise(ctx, &alerts.Alert{
		WalletAddress: bob, AlertType: alerts.TypeStatusChanged, Severity: alerts.SeverityMedium,
		Message: "old", DetectedAt: time.Now().Add(-72 * time.Hour),
	})
	require.NoError(t, err)

	blocked := gate.NewMemoryBlockedStore()
	require.NoError(t, blocked.Record(ctx, &gate.BlockedTransfer{
		ID: "b1", From: alice, To: mallory, Value: wei.Ether(1), RiskScore: 92,
		RiskLevel: risk.LevelCritical, BlockReason: gate.ReasonBlacklisted, BlockedAt: time.Now(),
	}))

	h := NewHandler(store, notifier, blocked, nil)
	router := gin.New()
	h.RegisterAdminRoutes(router.Group("/v1"))
	return h, router
}

func TestDashboard(t *testing.T) {
	_, router := setupTestHandler(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/statistics/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Overview struct {
			TotalWallets         int64  `json:"totalWallets"`
			HighRiskWallets      int64  `json:"highRiskWallets"`
			SuspendedWallets     int64  `json:"suspendedWallets"`
			TotalTransfers       int64  `json:"totalTransfers"`
			TotalVolume          string `json:"totalVolume"`
			TotalAlerts          int64  `json:"totalAlerts"`
			CriticalAlerts       int64  `json:"criticalAlerts"`
			AlertsToday          int64  `json:"alertsToday"`
			TotalBlocked         int64  `json:"totalBlocked"`
			TotalValueBlockedWei string `json:"totalValueBlockedWei"`
		} `json:"overview"`
		WalletsByCategory map[string]int64 `json:"walletsByCategory"`
		RecentAlerts      []alerts.Alert   `json:"recentAlerts"`
		RecentTransfers   []any            `json:"recentTransfers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	ov := body.Overview
	assert.Equal(t, int64(3), ov.TotalWallets)
	assert.Equal(t, int64(1), ov.HighRiskWallets)
	assert.Equal(t, int64(1), ov.SuspendedWallets)
	assert.Equal(t, int64(2), ov.TotalTransfers)
	assert.Equal(t, "7", ov.TotalVolume)
	assert.Equal(t, int64(3), ov.TotalAlerts)
	assert.Equal(t, int64(1), ov.CriticalAlerts)
	assert.Equal(t, int64(2), ov.AlertsToday)
	assert.Equal(t, int64(1), ov.TotalBlocked)
	assert.Equal(t, wei.Ether(1).String(), ov.TotalValueBlockedWei)
	assert.Equal(t, int64(1), body.WalletsByCategory["scam"])
	assert.Len(t, body.RecentAlerts, 3)
	assert.Len(t, body.RecentTransfers, 2)
}

func TestRecentAlerts(t *testing.T) {
	_, router := setupTestHandler(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/statistics/alerts/recent?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts []alerts.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

type failingBlocked struct{}

func (failingBlocked) Stats(context.Context, time.Time) (*gate.BlockedStats, error) {
	return nil, errors.New("connection refused")
}

type flowBody struct {
	FlowData []struct {
		Date       string `json:"date"`
		InflowWei  string `json:"inflowWei"`
		OutflowWei string `json:"outflowWei"`
	} `json:"flowData"`
	PeriodDays    int     `json:"periodDays"`
	WalletAddress *string `json:"walletAddress"`
}

func getFlow(t *testing.T, router *gin.Engine, query string) (int, flowBody) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/statistics/flow"+query, nil))
	var body flowBody
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func sumWei(t *testing.T, vals ...string) string {
	t.Helper()
	total := new(big.Int)
	for _, v := range vals {
		n, ok := new(big.Int).SetString(v, 10)
		require.True(t, ok, v)
		total.Add(total, n)
	}
	return total.String()
}

func TestFlow(t *testing.T) {
	h, router := setupTestHandler(t)

	code, body := getFlow(t, router, "?wallet="+alice)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 7, body.PeriodDays)
	require.NotNil(t, body.WalletAddress)
	assert.Equal(t, alice, *body.WalletAddress)
	require.NotEmpty(t, body.FlowData)
	var in, out []string
	for _, d := range body.FlowData {
		assert.Len(t, d.Date, len("2006-01-02"))
		in = append(in, d.InflowWei)
		out = append(out, d.OutflowWei)
	}
	assert.Equal(t, wei.Ether(5).String(), sumWei(t, in...))
	assert.Equal(t, wei.Ether(2).String(), sumWei(t, out...))

	code, body = getFlow(t, router, "?days=30")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 30, body.PeriodDays)
	assert.Nil(t, body.WalletAddress)
	in = in[:0]
	for _, d := range body.FlowData {
		in = append(in, d.InflowWei)
	}
	assert.Equal(t, wei.Ether(7).String(), sumWei(t, in...), "unfiltered flow carries total volume")

	// Everything falls outside a window that ends a month from now.
	h.now = func() time.Time { return time.Now().Add(30 * 24 * time.Hour) }
	code, body = getFlow(t, router, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.FlowData)
}

func TestFlow_InvalidParams(t *testing.T) {
	_, router := setupTestHandler(t)

	for _, q := range []string{"?days=0", "?days=abc", "?days=366", "?wallet=0x123"} {
		code, _ := getFlow(t, router, q)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestDashboard_StoreFailure(t *testing.T) {
	h, _ := setupTestHandler(t)
	h.blocked = failingBlocked{}

	router := gin.New()
	h.RegisterAdminRoutes(router.Group("/v1"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/statistics/dashboard", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got := startOfDay(time.Date(2026, 3, 2, 4, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}
