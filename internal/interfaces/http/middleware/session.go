package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/domain/session"
)

// Session attaches the browsing session named by the session cookie, starting
// one when the cookie is missing or stale, and binds it to the caller's
// identity. Handlers use the binding stored for this request, never the
// session's current one, which another request on the same cookie may replace.
func Session(mgr *session.Manager, cfg config.SessionConfig, log logrus.FieldLogger) gin.HandlerFunc {
	maxAge := int(cfg.IdleTimeout.Seconds())

	return func(c *gin.Context) {
		cookie, _ := c.Cookie(cfg.CookieName)
		sess := mgr.Acquire(cookie)
		if sess.ID != cookie {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    sess.ID,
				Path:     "/",
				MaxAge:   maxAge,
				HttpOnly: true,
				Secure:   cfg.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		userID, _ := GetUserIDFromContext(c)
		binding, err := sess.Bind(c.Request.Context(), userID)
		if err != nil {
			// The view keeps its last list; the next mutation or feed event refreshes it.
			log.WithError(err).WithFields(logrus.Fields{
				"session_id": sess.ID,
				requestIDKey: GetRequestID(c),
			}).Warn("cart view refresh failed while binding session")
		}
		if binding != nil {
			c.Set(bindingKey, binding)
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}
