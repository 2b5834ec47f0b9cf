// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
)

// CheckoutHandler drives the session's checkout coordinator
type CheckoutHandler struct{}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler() *CheckoutHandler {
	return &CheckoutHandler{}
}

func coordinator(c *gin.Context) (*checkout.Coordinator, bool) {
	b, ok := ownBinding(c)
	if !ok {
		respondError(c, apperr.AuthRequired("sign in to check out"))
		return nil, false
	}
	return b.Checkout, true
}

// Checkout handles POST /user/checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	coord, ok := coordinator(c)
	if !ok {
		return
	}

	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request data", err)
		return
	}

	result, err := coord.Checkout(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", result.Redirect)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"data":    result,
	})
}

// GetState handles GET /user/checkout/state
func (h *CheckoutHandler) GetState(c *gin.Context) {
	coord, ok := coordinator(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout state retrieved successfully",
		"data":    coord.Status(),
	})
}
