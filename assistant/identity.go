package assistant

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vowsuite/concierge"
)

const callerContextKey = "concierge.caller"

// IdentityMiddleware reads the pre-validated identity headers set by the
// fronting auth layer. Requests without a user and tenant are rejected
// before any handler runs.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := concierge.CallerContext{
			UserID:   strings.TrimSpace(c.GetHeader("X-User-Id")),
			TenantID: strings.TrimSpace(c.GetHeader("X-Tenant-Id")),
			ScopeID:  strings.TrimSpace(c.GetHeader("X-Scope-Id")),
		}
		if !caller.Valid() {
			writeError(c.Writer, concierge.Unauthenticated("missing identity headers"))
			c.Abort()
			return
		}
		c.Set(callerContextKey, caller)
		c.Next()
	}
}

func callerFrom(c *gin.Context) concierge.CallerContext {
	v, ok := c.Get(callerContextKey)
	if !ok {
		return concierge.CallerContext{}
	}
	caller, _ := v.(concierge.CallerContext)
	return caller
}
