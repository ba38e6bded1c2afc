package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
)

type CatalogHandler struct {
	catalogService *services.CatalogService
}

func NewCatalogHandler(catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) ListItems(c *gin.Context) {
	items, err := h.catalogService.ListItems(c.Request.Context(), c.Param("category"))
	if err != nil {
		respondError(c, "Failed to retrieve catalog", err)
		return
	}

	utils.SendSuccess(c, "Catalog retrieved successfully", items)
}

func (h *CatalogHandler) GetItem(c *gin.Context) {
	item, err := h.catalogService.GetItem(c.Request.Context(), c.Param("category"), c.Param("item_id"))
	if err != nil {
		respondError(c, "Item not found", err)
		return
	}

	utils.SendSuccess(c, "Item retrieved successfully", item)
}

func (h *CatalogHandler) Search(c *gin.Context) {
	items, err := h.catalogService.Search(c.Request.Context(), c.Param("category"), c.Query("q"))
	if err != nil {
		respondError(c, "Search failed", err)
		return
	}

	utils.SendSuccess(c, "Search completed", items)
}

// SearchAll searches every category. Categories that fail are listed in the
// response instead of failing the request.
func (h *CatalogHandler) SearchAll(c *gin.Context) {
	result, err := h.catalogService.SearchAll(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, "Search failed", err)
		return
	}

	utils.SendSuccess(c, "Search completed", result)
}
