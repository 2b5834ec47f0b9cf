// internal/interfaces/http/handlers/catalog.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/interfaces/http/middleware"
)

// CatalogHandler serves the session's product listing
type CatalogHandler struct {
	products *product.Service
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(products *product.Service) *CatalogHandler {
	return &CatalogHandler{products: products}
}

type catalogResponse struct {
	Items   []product.Product `json:"items"`
	HasMore bool              `json:"has_more"`
}

func toCatalogResponse(s catalog.Snapshot) catalogResponse {
	items := s.Items
	if items == nil {
		items = []product.Product{}
	}
	return catalogResponse{Items: items, HasMore: s.HasMore}
}

// GetCatalog handles GET /catalog. A stale listing (see catalog.Cache.Stale)
// or ?refresh=true mounts the cache again; otherwise the session's list is
// returned as is.
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	cache := middleware.GetSession(c).Catalog()

	if cache.Stale() || c.Query("refresh") == "true" {
		if err := cache.Mount(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Catalog retrieved successfully",
		"data":    toCatalogResponse(cache.Snapshot()),
	})
}

// LoadMore handles POST /catalog/more
func (h *CatalogHandler) LoadMore(c *gin.Context) {
	cache := middleware.GetSession(c).Catalog()

	if err := cache.LoadMore(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Catalog page loaded",
		"data":    toCatalogResponse(cache.Snapshot()),
	})
}

// GetProduct handles GET /products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := parseUintParam(c, "id", "Invalid product ID")
	if !ok {
		return
	}

	p, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    p,
	})
}

func parseUintParam(c *gin.Context, name, message string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		respondBadRequest(c, message, nil)
		return 0, false
	}
	return uint(v), true
}
