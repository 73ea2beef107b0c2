package gate

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	r := gin.New()
	h := NewHandler(f.gate, f.blocked, slog.Default())
	h.RegisterRoutes(r.Group("/v1"))
	h.RegisterAdminRoutes(r.Group("/v1"))
	return r, f
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Decisions(t *testing.T) {
	r, _ := setupRouter(t)

	w := post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusSuccess, resp.Status)

	w = post(r, `{"from":"`+walletA+`","to":"`+walletD+`","amount":"1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusWarning, resp.Status)
	assert.Equal(t, 1, resp.CurrentWarnings)
	assert.Contains(t, resp.WarningText, "2 warnings remaining")

	w = post(r, `{"from":"`+walletA+`","to":"`+walletC+`","amount":"1","override":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"blockReason":"high_risk_score"`)
}

func TestHandler_Errors(t *testing.T) {
	r, _ := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest, post(r, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, `{"to":"`+walletB+`","amount":"1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"0"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"1.0000000000000000009"}`).Code)

	w := post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"100"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_balance")

	hash := "0x" + strings.Repeat("ab", 32)
	require.Equal(t, http.StatusOK, post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"1","hash":"`+hash+`"}`).Code)
	assert.Equal(t, http.StatusConflict, post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"2","hash":"`+hash+`"}`).Code)

	for i := 0; i < 3; i++ {
		post(r, `{"from":"`+walletA+`","to":"`+walletD+`","amount":"1"}`)
	}
	w = post(r, `{"from":"`+walletA+`","to":"`+walletB+`","amount":"1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "account_restricted")

}

func TestHandler_ListBlocked(t *testing.T) {
	r, _ := setupRouter(t)
	post(r, `{"from":"`+walletA+`","to":"`+walletC+`","amount":"1"}`)
	post(r, `{"from":"`+walletA+`","to":"`+listedLow+`","amount":"2"}`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/blocked-transfers?reason=blacklisted", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count      int `json:"count"`
		Statistics struct {
			TotalBlocked      int64  `json:"totalBlocked"`
			TotalValueBlocked string `json:"totalValueBlocked"`
		} `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, int64(2), body.Statistics.TotalBlocked)
	assert.Equal(t, "3", body.Statistics.TotalValueBlocked)
}
