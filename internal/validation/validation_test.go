package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xABCDEF7890123456789012345678901234567890", true},
		{"1234567890123456789012345678901234567890", false},
		{"0x123", false},
		{"0xZZZZ567890123456789012345678901234567890", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidAddress(tt.addr), tt.addr)
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef7890123456789012345678901234567890",
		NormalizeAddress("  0xABCDEF7890123456789012345678901234567890 "))
}

func TestIsValidTxHash(t *testing.T) {
	assert.True(t, IsValidTxHash("0x"+strings.Repeat("ab", 32)))
	assert.False(t, IsValidTxHash("0xabc"))
	assert.False(t, IsValidTxHash("sim_123"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  a\x00bc  ", 10))
	assert.Equal(t, "ab", SanitizeString("abcdef", 2))
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("from", ""),
		ValidAddress("to", "0xnope"),
		PositiveEther("amount", "0"),
		PositiveEther("value", "1.5"),
	)
	assert.Len(t, errs, 3)
	assert.Equal(t, "from: is required", errs.Error())
	assert.Equal(t, "amount", errs[2].Field)
	assert.Equal(t, "amount must be greater than zero", errs[2].Message)

	assert.Empty(t, Validate(Required("x", "y"), MaxLength("x", "abc", 3)))
}

func TestPositiveEther(t *testing.T) {
	assert.Nil(t, PositiveEther("a", "0.001")())
	assert.NotNil(t, PositiveEther("a", "-1")())
	assert.NotNil(t, PositiveEther("a", "one")())
}

func TestAddressParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/wallets/:address", AddressParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/wallets/0x1234567890123456789012345678901234567890", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/wallets/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
