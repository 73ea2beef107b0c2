package alerts

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
)

func TestHandler_ListAndAck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	n := NewNotifier(NewMemoryStore(), slog.Default())
	r := gin.New()
	NewHandler(n, slog.Default()).RegisterAdminRoutes(r.Group("/v1"))

	a, err := n.Raise(context.Background(), &Alert{WalletAddress: wallet, AlertType: TypeBlockedTransfer, Severity: SeverityCritical, Message: "blocked"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/alerts?type=blocked_transfer&unacknowledged=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	ack := func(id string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/alerts/"+id+"/ack", strings.NewReader(`{"acknowledgedBy":"ops"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}
	w = ack(a.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"acknowledgedBy":"ops"`)
	assert.Equal(t, http.StatusConflict, ack(a.ID).Code)
	assert.Equal(t, http.StatusNotFound, ack("nope").Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/alerts?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
