package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/api/middleware"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
)

type AdminHandler struct {
	adminService   *services.AdminService
	catalogService *services.CatalogService
}

func NewAdminHandler(adminService *services.AdminService, catalogService *services.CatalogService) *AdminHandler {
	return &AdminHandler{
		adminService:   adminService,
		catalogService: catalogService,
	}
}

func (h *AdminHandler) GetDashboard(c *gin.Context) {
	stats, err := h.adminService.Dashboard(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		respondError(c, "Failed to load dashboard", err)
		return
	}

	utils.SendSuccess(c, "Dashboard retrieved successfully", stats)
}

func (h *AdminHandler) CreateItem(c *gin.Context) {
	var req models.CatalogItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request data: "+err.Error())
		return
	}

	item, err := h.catalogService.AddItem(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), req)
	if err != nil {
		respondError(c, "Failed to create item", err)
		return
	}

	utils.SendCreated(c, "Item created successfully", item)
}

func (h *AdminHandler) UpdateItem(c *gin.Context) {
	var req models.UpdateCatalogItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request data: "+err.Error())
		return
	}

	item, err := h.catalogService.UpdateItem(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), c.Param("item_id"), req)
	if err != nil {
		respondError(c, "Failed to update item", err)
		return
	}

	utils.SendSuccess(c, "Item updated successfully", item)
}

func (h *AdminHandler) DeleteItem(c *gin.Context) {
	err := h.catalogService.DeleteItem(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), c.Param("item_id"))
	if err != nil {
		respondError(c, "Failed to delete item", err)
		return
	}

	utils.SendSuccess(c, "Item deleted successfully", nil)
}

// UploadImage expects a multipart form with the file under "image".
func (h *AdminHandler) UploadImage(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		utils.SendValidationError(c, "No image provided")
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.SendValidationError(c, "Failed to read image")
		return
	}
	defer file.Close()

	item, err := h.adminService.UploadItemImage(
		c.Request.Context(),
		middleware.CurrentActor(c),
		c.Param("category"),
		c.Param("item_id"),
		file,
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
	)
	if err != nil {
		respondError(c, "Failed to upload image", err)
		return
	}

	utils.SendSuccess(c, "Image uploaded successfully", item)
}

// ImportCSV expects a multipart form with the file under "csv".
func (h *AdminHandler) ImportCSV(c *gin.Context) {
	header, err := c.FormFile("csv")
	if err != nil {
		utils.SendValidationError(c, "No CSV file provided")
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.SendValidationError(c, "Failed to read CSV file")
		return
	}
	defer file.Close()

	result, err := h.adminService.ImportCSV(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), file)
	if err != nil {
		respondError(c, "Failed to import catalog", err)
		return
	}

	utils.SendSuccess(c, result.Message, result)
}
