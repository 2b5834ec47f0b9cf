// internal/interfaces/http/handlers/order.go
package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-engine/internal/pkg/pdf"
)

// InvoiceRenderer produces order invoices
type InvoiceRenderer interface {
	RenderHTML(o *order.Order) ([]byte, error)
	GenerateInvoice(o *order.Order) (*bytes.Buffer, error)
}

// OrderHandler serves the user's checkout history and invoices
type OrderHandler struct {
	orders   *order.Service
	invoices InvoiceRenderer
	log      logrus.FieldLogger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *order.Service, invoices InvoiceRenderer, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{orders: orders, invoices: invoices, log: log}
}

// GetHistory handles GET /user/checkout-history
func (h *OrderHandler) GetHistory(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	orders, err := h.orders.History(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    orders,
	})
}

// GetOrder handles GET /user/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	o, err := h.orders.GetForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    o,
	})
}

// GetInvoice handles GET /user/orders/:id/invoice. ?format=html returns the
// page the PDF is rendered from.
func (h *OrderHandler) GetInvoice(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	o, err := h.orders.GetForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "html" {
		html, err := h.invoices.RenderHTML(o)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", html)
		return
	}

	buf, err := h.invoices.GenerateInvoice(o)
	if err != nil {
		h.log.WithError(err).WithField("order_id", o.ID).Error("failed to generate invoice")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate invoice",
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pdf.InvoiceNumber(o)+".pdf"))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
