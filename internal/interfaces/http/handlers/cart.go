// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/session"
	"github.com/your-org/storefront-engine/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	lines *cart.LineStore
}

// NewCartHandler creates a new cart handler
func NewCartHandler(lines *cart.LineStore) *CartHandler {
	return &CartHandler{lines: lines}
}

// AddToCartRequest is the body of POST /cart/items
type AddToCartRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// UpdateCartItemRequest is the body of PATCH /cart/items/:id
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) view(c *gin.Context) (*cart.View, string, bool) {
	b, ok := ownBinding(c)
	if !ok {
		respondError(c, apperr.AuthRequired("sign in to use your cart"))
		return nil, "", false
	}
	return b.Cart, b.UserID, true
}

// ownBinding returns the request's binding when it belongs to the token's user
func ownBinding(c *gin.Context) (*session.Binding, bool) {
	userID, _ := middleware.GetUserIDFromContext(c)
	b := middleware.GetBinding(c)
	if b == nil || userID == "" || b.UserID != userID || b.Cart.UserID() != userID {
		return nil, false
	}
	return b, true
}

func respondCart(c *gin.Context, status int, message string, view *cart.View) {
	snap := view.Snapshot()
	if snap.Items == nil {
		snap.Items = []cart.AggregateItem{}
	}
	c.JSON(status, gin.H{
		"message": message,
		"data":    snap,
	})
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	view, _, ok := h.view(c)
	if !ok {
		return
	}
	respondCart(c, http.StatusOK, "Cart retrieved successfully", view)
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	view, userID, ok := h.view(c)
	if !ok {
		return
	}

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request data", err)
		return
	}

	if _, err := h.lines.AddItem(c.Request.Context(), userID, req.ProductID, req.Size, req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	respondCart(c, http.StatusOK, "Item added to cart successfully", view)
}

// UpdateCartItem handles PATCH /cart/items/:id
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	view, userID, ok := h.view(c)
	if !ok {
		return
	}
	lineID, ok := parseUintParam(c, "id", "Invalid cart item ID")
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request data", err)
		return
	}

	if err := h.lines.UpdateQuantity(c.Request.Context(), userID, lineID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	respondCart(c, http.StatusOK, "Cart item updated successfully", view)
}

// RemoveFromCart handles DELETE /cart/items/:id
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	view, userID, ok := h.view(c)
	if !ok {
		return
	}
	lineID, ok := parseUintParam(c, "id", "Invalid cart item ID")
	if !ok {
		return
	}

	if err := h.lines.RemoveLine(c.Request.Context(), userID, lineID); err != nil {
		respondError(c, err)
		return
	}

	respondCart(c, http.StatusOK, "Item removed from cart successfully", view)
}
