package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/api/middleware"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
)

type LogHandler struct {
	logService *services.LogService
}

func NewLogHandler(logService *services.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

// SubmitLog creates the caller's log for an item, or edits it when one
// already exists. The status code tells the two apart.
func (h *LogHandler) SubmitLog(c *gin.Context) {
	var req models.LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request data: "+err.Error())
		return
	}

	entry, created, err := h.logService.SubmitLog(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), req)
	if err != nil {
		respondError(c, "Failed to submit log", err)
		return
	}

	if created {
		utils.SendCreated(c, "Log created successfully", entry)
		return
	}
	utils.SendSuccess(c, "Log updated successfully", entry)
}

func (h *LogHandler) EditLog(c *gin.Context) {
	var req models.UpdateLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request data: "+err.Error())
		return
	}

	entry, err := h.logService.EditLog(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), c.Param("log_id"), req)
	if err != nil {
		respondError(c, "Failed to update log", err)
		return
	}

	utils.SendSuccess(c, "Log updated successfully", entry)
}

func (h *LogHandler) DeleteLog(c *gin.Context) {
	err := h.logService.DeleteLog(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), c.Param("log_id"))
	if err != nil {
		respondError(c, "Failed to delete log", err)
		return
	}

	utils.SendSuccess(c, "Log deleted successfully", nil)
}

func (h *LogHandler) FlagLog(c *gin.Context) {
	entry, err := h.logService.FlagLog(c.Request.Context(), middleware.CurrentActor(c), c.Param("category"), c.Param("log_id"))
	if err != nil {
		respondError(c, "Failed to flag log", err)
		return
	}

	utils.SendSuccess(c, "Log flagged for review", entry)
}

func (h *LogHandler) ItemLogs(c *gin.Context) {
	logs, err := h.logService.ItemLogs(c.Request.Context(), c.Param("category"), c.Param("item_id"))
	if err != nil {
		respondError(c, "Failed to retrieve logs", err)
		return
	}

	utils.SendSuccess(c, "Logs retrieved successfully", logs)
}

// UserLogs returns the caller's logs, optionally limited by ?category=a,b.
func (h *LogHandler) UserLogs(c *gin.Context) {
	categories := catalog.ParseTags(c.Query("category"))

	result, err := h.logService.UserLogs(c.Request.Context(), middleware.CurrentActor(c).UserID, categories...)
	if err != nil {
		respondError(c, "Failed to retrieve logs", err)
		return
	}

	utils.SendSuccess(c, "Logs retrieved successfully", result)
}

type moderateRequest struct {
	Action string `json:"action" binding:"required,oneof=approve remove"`
}

func (h *LogHandler) ModerateLog(c *gin.Context) {
	var req moderateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "action must be approve or remove")
		return
	}

	actor := middleware.CurrentActor(c)
	category, logID := c.Param("category"), c.Param("log_id")

	switch req.Action {
	case "approve":
		entry, err := h.logService.ApproveLog(c.Request.Context(), actor, category, logID)
		if err != nil {
			respondError(c, "Failed to approve log", err)
			return
		}
		utils.SendSuccess(c, "Log approved", entry)
	case "remove":
		if err := h.logService.RemoveLog(c.Request.Context(), actor, category, logID); err != nil {
			respondError(c, "Failed to remove log", err)
			return
		}
		utils.SendSuccess(c, "Log removed", nil)
	default:
		utils.SendError(c, http.StatusBadRequest, "Unknown moderation action", nil)
	}
}

func (h *LogHandler) FlaggedLogs(c *gin.Context) {
	result, err := h.logService.FlaggedLogs(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		respondError(c, "Failed to retrieve flagged logs", err)
		return
	}

	utils.SendSuccess(c, "Flagged logs retrieved successfully", result)
}
