// Package auth guards the admin surface with a shared secret.
//
// Public endpoints (transfers, status reads) carry no credentials. Every
// /admin route requires the X-Admin-Secret header to match ADMIN_SECRET.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskgate/internal/validation"
)

const (
	// HeaderAdminSecret carries the shared admin secret.
	HeaderAdminSecret = "X-Admin-Secret"
	// HeaderAdminActor optionally names the operator for audit trails.
	HeaderAdminActor = "X-Admin-Actor"

	// ContextKeyAdmin is set to true in the gin context once the secret checks out.
	ContextKeyAdmin = "authAdmin"
	// ContextKeyActor holds the operator name for audit rows.
	ContextKeyActor = "authActor"

	// DefaultActor is recorded when the request names no operator.
	DefaultActor = "admin"
)

// RequireAdmin rejects requests whose X-Admin-Secret does not match secret.
// With an empty secret the admin surface is open only when allowInsecure is
// set (development), and disabled otherwise.
func RequireAdmin(secret string, allowInsecure bool) gin.HandlerFunc {
	want := sha256.Sum256([]byte(secret))
	return func(c *gin.Context) {
		if secret == "" {
			if !allowInsecure {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":   "admin_disabled",
					"message": "Admin API is disabled: ADMIN_SECRET is not configured.",
				})
				return
			}
		} else {
			got := sha256.Sum256([]byte(c.GetHeader(HeaderAdminSecret)))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "Admin secret required. Include the 'X-Admin-Secret' header.",
				})
				return
			}
		}

		actor := validation.SanitizeString(c.GetHeader(HeaderAdminActor), 100)
		if actor == "" {
			actor = DefaultActor
		}
		c.Set(ContextKeyAdmin, true)
		c.Set(ContextKeyActor, actor)
		c.Next()
	}
}

// IsAdmin reports whether RequireAdmin accepted the request.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyAdmin)
}

// Actor returns the operator recorded by RequireAdmin, or DefaultActor.
func Actor(c *gin.Context) string {
	if a := c.GetString(ContextKeyActor); a != "" {
		return a
	}
	return DefaultActor
}
