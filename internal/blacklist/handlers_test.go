package blacklist

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

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewIndex(NewMemoryStore()), slog.Default()).RegisterAdminRoutes(r.Group("/v1"))
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_AddCheckRemove(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/v1/admin/blacklist",
		`{"address":"`+scammer+`","category":"scam","source":"manual","severity":"critical"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/v1/admin/blacklist/"+scammer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Blacklisted bool   `json:"blacklisted"`
		Entry       *Entry `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.Blacklisted)
	assert.Equal(t, SeverityCritical, check.Entry.Severity)

	w = do(r, http.MethodGet, "/v1/admin/blacklist", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(r, http.MethodDelete, "/v1/admin/blacklist/"+scammer, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/v1/admin/blacklist/"+clean, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_AddInvalid(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"address":"` + scammer + `"}`},
		{"bad address", `{"address":"0x1","category":"scam","source":"manual"}`},
		{"bad severity", `{"address":"` + scammer + `","category":"scam","source":"manual","severity":"nope"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/v1/admin/blacklist", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}
