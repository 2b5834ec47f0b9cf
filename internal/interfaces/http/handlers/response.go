// internal/interfaces/http/handlers/response.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/session"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthRequired:
		return http.StatusUnauthorized
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindEmptyCart:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindStorage:
		return http.StatusServiceUnavailable
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "code"}. Storage and unknown errors
// are logged by the request logger and reported without internals.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrSessionClosed) || errors.Is(err, catalog.ErrCacheClosed) || errors.Is(err, cart.ErrViewClosed) {
		err = apperr.Wrap(apperr.KindConflict, "session ended, retry the request", err)
	}

	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	message := err.Error()

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		message = ae.Message
	}
	if status >= 500 {
		_ = c.Error(err)
		if kind == apperr.KindUnknown {
			message = "Internal server error"
		}
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
		"code":  string(kind),
	})
}

func respondBadRequest(c *gin.Context, message string, err error) {
	body := gin.H{
		"error": message,
		"code":  string(apperr.KindValidation),
	}
	if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
