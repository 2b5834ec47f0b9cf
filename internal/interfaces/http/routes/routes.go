// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/interfaces/http/handlers"
)

// Services are the domain services exposed over HTTP
type Services struct {
	Products *product.Service
	Orders   *order.Service
	Lines    *cart.LineStore
	Invoices handlers.InvoiceRenderer
}

// SetupCatalogRoutes sets up the public listing routes
func SetupCatalogRoutes(rg *gin.RouterGroup, svc Services) {
	catalogHandler := handlers.NewCatalogHandler(svc.Products)

	rg.GET("/catalog", catalogHandler.GetCatalog)
	rg.POST("/catalog/more", catalogHandler.LoadMore)
	rg.GET("/products/:id", catalogHandler.GetProduct)
}

// SetupCartRoutes sets up cart routes. The access gate requires a signed-in user.
func SetupCartRoutes(rg *gin.RouterGroup, svc Services) {
	cartHandler := handlers.NewCartHandler(svc.Lines)

	c := rg.Group("/cart")
	{
		c.GET("", cartHandler.GetCart)
		c.POST("/items", cartHandler.AddToCart)
		c.PATCH("/items/:id", cartHandler.UpdateCartItem)
		c.DELETE("/items/:id", cartHandler.RemoveFromCart)
	}
}

// SetupUserRoutes sets up checkout and order history routes
func SetupUserRoutes(rg *gin.RouterGroup, svc Services, log logrus.FieldLogger) {
	checkoutHandler := handlers.NewCheckoutHandler()
	orderHandler := handlers.NewOrderHandler(svc.Orders, svc.Invoices, log)

	user := rg.Group("/user")
	{
		user.POST("/checkout", checkoutHandler.Checkout)
		user.GET("/checkout/state", checkoutHandler.GetState)
		user.GET("/checkout-history", orderHandler.GetHistory)
		user.GET("/orders", orderHandler.GetHistory)
		user.GET("/orders/:id", orderHandler.GetOrder)
		user.GET("/orders/:id/invoice", orderHandler.GetInvoice)
	}
}

// SetupAdminRoutes sets up admin routes. The access gate requires the admin role.
func SetupAdminRoutes(rg *gin.RouterGroup, svc Services) {
	adminHandler := handlers.NewAdminHandler(svc.Products, svc.Orders)

	admin := rg.Group("/admin")
	{
		products := admin.Group("/products")
		{
			products.POST("", adminHandler.CreateProduct)
			products.PUT("/:id", adminHandler.UpdateProduct)
			products.DELETE("/:id", adminHandler.DeleteProduct)
		}

		orders := admin.Group("/orders")
		{
			orders.PATCH("/:id/status", adminHandler.UpdateOrderStatus)
		}
	}
}

// SetupRoutes sets up all API routes
func SetupRoutes(rg *gin.RouterGroup, svc Services, log logrus.FieldLogger) {
	SetupCatalogRoutes(rg, svc)
	SetupCartRoutes(rg, svc)
	SetupUserRoutes(rg, svc, log)
	SetupAdminRoutes(rg, svc)
}
