package wallets

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/ledger"
)

const (
	addrA = "0x000000000000000000000000000000000000000a"
	addrB = "0x000000000000000000000000000000000000000b"
)

type fixture struct {
	store   *ledger.MemoryStore
	audit   *MemoryAuditStore
	alerts  *alerts.MemoryStore
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	_, err := store.RegisterWallet(ctx, &ledger.Wallet{Address: addrA, Label: "alice"})
	require.NoError(t, err)
	_, err = store.SetRiskScore(ctx, addrB, 85, "scam")
	require.NoError(t, err)

	as := alerts.NewMemoryStore()
	audit := NewMemoryAuditStore()
	return &fixture{
		store:   store,
		audit:   audit,
		alerts:  as,
		service: NewService(store, audit, alerts.NewNotifier(as, slog.Default()), slog.Default()),
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.service.Status(ctx, strings.ToUpper(addrB[2:]))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Nil(t, v)

	v, err = f.service.Status(ctx, "0x"+strings.ToUpper(addrB[2:]))
	require.NoError(t, err)
	assert.Equal(t, addrB, v.Address)
	assert.Equal(t, 85.0, v.RiskScore)
	assert.Equal(t, "scam", v.RiskCategory)
	assert.Equal(t, ledger.StatusActive, v.AccountStatus)

	_, err = f.service.Status(ctx, "0x00000000000000000000000000000000000000ff")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestChangeStatus_AuditsAndAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.ChangeStatus(ctx, addrA, ledger.StatusFrozen, "chargeback investigation", "ops-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, res.OldStatus)
	assert.Equal(t, ledger.StatusFrozen, res.NewStatus)
	assert.Equal(t, "ops-1", res.Wallet.FlaggedBy)
	require.NotNil(t, res.Wallet.FlaggedAt)

	entries, err := f.service.Audit(ctx, addrA, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionStatusChange, entries[0].Action)
	assert.Equal(t, "active", entries[0].OldValue)
	assert.Equal(t, "frozen", entries[0].NewValue)

	list, err := f.alerts.List(ctx, alerts.Filter{Type: alerts.TypeStatusChanged, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alerts.SeverityHigh, list[0].Severity)
	assert.Contains(t, list[0].Message, "from active to frozen")

	// Under review from frozen keeps the first flag stamp.
	res, err = f.service.ChangeStatus(ctx, addrA, ledger.StatusUnderReview, "", "ops-2")
	require.NoError(t, err)
	assert.Equal(t, "ops-1", res.Wallet.FlaggedBy)

	_, err = f.service.ChangeStatus(ctx, addrA, ledger.StatusUnderReview, "", "ops-2")
	assert.ErrorIs(t, err, ledger.ErrStatusUnchanged)
	_, err = f.service.ChangeStatus(ctx, addrA, ledger.AccountStatus("banned"), "", "ops")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.service.ChangeStatus(ctx, "0x00000000000000000000000000000000000000ff", ledger.StatusFrozen, "", "ops")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestList_FiltersAndStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.ChangeStatus(ctx, addrB, ledger.StatusSuspended, "scam", "ops")
	require.NoError(t, err)

	res, err := f.service.List(ctx, ledger.WalletFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, addrB, res.Wallets[0].Address, "highest risk first")
	assert.Equal(t, int64(2), res.Statistics.TotalWallets)
	assert.Equal(t, int64(1), res.Statistics.HighRiskCount)
	assert.Equal(t, int64(1), res.Statistics.SuspendedCount)

	res, err = f.service.List(ctx, ledger.WalletFilter{Status: ledger.StatusActive})
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, addrA, res.Wallets[0].Address)

	_, err = f.service.List(ctx, ledger.WalletFilter{Status: "gone"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	w, err := f.service.Register(context.Background(), RegisterInput{Address: addrA, Label: "  alice main ", EntityType: "exchange"})
	require.NoError(t, err)
	assert.Equal(t, "alice main", w.Label)
	assert.Equal(t, "exchange", w.EntityType)

	_, err = f.service.Register(context.Background(), RegisterInput{Address: "alice"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	r := gin.New()
	h := NewHandler(f.service, slog.Default())
	h.RegisterRoutes(r.Group("/v1"))
	h.RegisterAdminRoutes(r.Group("/v1"))

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := serve(http.MethodGet, "/v1/wallets/"+addrB+"/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"riskScore":85`)
	assert.Contains(t, w.Body.String(), `"accountStatus":"active"`)
	assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/v1/wallets/0x00000000000000000000000000000000000000ff/status", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(http.MethodGet, "/v1/wallets/bogus/status", "").Code)

	w = serve(http.MethodPut, "/v1/admin/wallets/"+addrB+"/status", `{"status":"SUSPENDED","reason":"scam","adminId":"ops"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"oldStatus":"active"`)
	assert.Equal(t, http.StatusConflict, serve(http.MethodPut, "/v1/admin/wallets/"+addrB+"/status", `{"status":"suspended"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(http.MethodPut, "/v1/admin/wallets/"+addrB+"/status", `{"status":"deleted"}`).Code)

	w = serve(http.MethodGet, "/v1/admin/wallets?status=suspended", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Equal(t, http.StatusBadRequest, serve(http.MethodGet, "/v1/admin/wallets?minRiskScore=abc", "").Code)

	w = serve(http.MethodPost, "/v1/admin/wallets", `{"address":"0x00000000000000000000000000000000000000cc","label":"carol"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"label":"carol"`)

	w = serve(http.MethodGet, "/v1/admin/wallets/"+addrB+"/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}
