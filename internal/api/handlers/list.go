package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/api/middleware"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
)

type ListHandler struct {
	listService *services.ListService
}

func NewListHandler(listService *services.ListService) *ListHandler {
	return &ListHandler{listService: listService}
}

type addGameRequest struct {
	GameID string `json:"gameId" binding:"required"`
}

type moveGameRequest struct {
	Position *int `json:"position" binding:"required"`
}

func (h *ListHandler) CreateList(c *gin.Context) {
	var req models.GameListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request data: "+err.Error())
		return
	}

	list, err := h.listService.Create(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		respondError(c, "Failed to create list", err)
		return
	}

	utils.SendCreated(c, "List created successfully", list)
}

func (h *ListHandler) MyLists(c *gin.Context) {
	lists, err := h.listService.ListForUser(c.Request.Context(), middleware.CurrentActor(c).UserID)
	if err != nil {
		respondError(c, "Failed to retrieve lists", err)
		return
	}

	utils.SendSuccess(c, "Lists retrieved successfully", lists)
}

func (h *ListHandler) GetList(c *gin.Context) {
	list, err := h.listService.Get(c.Request.Context(), c.Param("list_id"))
	if err != nil {
		respondError(c, "List not found", err)
		return
	}

	utils.SendSuccess(c, "List retrieved successfully", list)
}

func (h *ListHandler) UpdateList(c *gin.Context) {
	var req models.UpdateGameListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request data: "+err.Error())
		return
	}

	list, err := h.listService.Update(c.Request.Context(), middleware.CurrentActor(c), c.Param("list_id"), req)
	if err != nil {
		respondError(c, "Failed to update list", err)
		return
	}

	utils.SendSuccess(c, "List updated successfully", list)
}

func (h *ListHandler) DeleteList(c *gin.Context) {
	if err := h.listService.Delete(c.Request.Context(), middleware.CurrentActor(c), c.Param("list_id")); err != nil {
		respondError(c, "Failed to delete list", err)
		return
	}

	utils.SendSuccess(c, "List deleted successfully", nil)
}

func (h *ListHandler) AddGame(c *gin.Context) {
	var req addGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "gameId is required")
		return
	}

	list, err := h.listService.AddGame(c.Request.Context(), middleware.CurrentActor(c), c.Param("list_id"), req.GameID)
	if err != nil {
		respondError(c, "Failed to add game", err)
		return
	}

	utils.SendSuccess(c, "Game added to list", list)
}

func (h *ListHandler) RemoveGame(c *gin.Context) {
	list, err := h.listService.RemoveGame(c.Request.Context(), middleware.CurrentActor(c), c.Param("list_id"), c.Param("game_id"))
	if err != nil {
		respondError(c, "Failed to remove game", err)
		return
	}

	utils.SendSuccess(c, "Game removed from list", list)
}

func (h *ListHandler) MoveGame(c *gin.Context) {
	var req moveGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "position is required")
		return
	}

	list, err := h.listService.MoveGame(c.Request.Context(), middleware.CurrentActor(c), c.Param("list_id"), c.Param("game_id"), *req.Position)
	if err != nil {
		respondError(c, "Failed to move game", err)
		return
	}

	utils.SendSuccess(c, "Game moved", list)
}
