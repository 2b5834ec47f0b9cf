// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/pkg/auth"
)

// Identity resolves the bearer token to a user id. Requests without a valid
// token continue anonymously; the access gate decides whether that is allowed.
func Identity(jwtManager *auth.JWTManager, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := jwtManager.Validate(tokenString)
		if err != nil {
			log.WithError(err).WithField(requestIDKey, GetRequestID(c)).Debug("ignoring invalid identity token")
			c.Next()
			return
		}

		c.Set(userIDKey, claims.UserID())
		c.Set(userEmailKey, claims.Email)
		c.Next()
	}
}
