// internal/interfaces/http/middleware/context.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-engine/internal/domain/session"
)

const (
	requestIDKey = "request_id"
	userIDKey    = "user_id"
	userEmailKey = "user_email"
	sessionKey   = "session"
	bindingKey   = "session_binding"
)

// GetUserIDFromContext returns the authenticated user id, if any
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetUserEmailFromContext returns the email claim of the identity token
func GetUserEmailFromContext(c *gin.Context) string {
	return c.GetString(userEmailKey)
}

// GetRequestID returns the request id assigned by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetSession returns the browsing session attached by Session
func GetSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}

// GetBinding returns the cart components bound to the caller's identity for
// this request, nil for anonymous callers
func GetBinding(c *gin.Context) *session.Binding {
	v, ok := c.Get(bindingKey)
	if !ok {
		return nil
	}
	b, _ := v.(*session.Binding)
	return b
}
