package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-engine/internal/domain/access"
)

// AccessGate enforces the access policy on the request path with basePath removed.
// Browsers get a 303 to the decision target; API clients get 401 or 403 with
// the target in the body.
func AccessGate(gate *access.Gate, basePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if basePath != "" && access.HasPathPrefix(path, basePath) {
			path = strings.TrimPrefix(path, basePath)
			if path == "" {
				path = "/"
			}
		}

		userID, _ := GetUserIDFromContext(c)
		decision := gate.Decide(c.Request.Context(), access.Request{UserID: userID, Path: path})
		if decision.Allow {
			c.Next()
			return
		}

		if wantsHTML(c.Request) {
			c.Redirect(http.StatusSeeOther, decision.Target)
			c.Abort()
			return
		}

		status := http.StatusForbidden
		message := "Access denied"
		if decision.Reason == access.ReasonUnauthenticated {
			status = http.StatusUnauthorized
			message = "Authentication required"
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error":    message,
			"code":     string(decision.Reason),
			"redirect": decision.Target,
		})
	}
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return r.Method == http.MethodGet && strings.Contains(accept, "text/html")
}
