package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/api/models"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

type CancelController struct{}

func NewCancelController() *CancelController {
	return &CancelController{}
}

// HandleCancel aborts the running upload named by ?sessionId=.
func (ctrl *CancelController) HandleCancel(c *gin.Context) {
	sessionId := c.Query("sessionId")

	if sessionId == "" {
		tool.DefaultLogger.Errorf("Missing required parameter: sessionId")
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing parameters"))
		return
	}

	tool.DefaultLogger.Infof("[Cancel] Received cancel request: sessionId=%s", sessionId)

	if !models.CancelUploadSession(sessionId) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	tool.DefaultLogger.Infof("[Cancel] Successfully cancelled session: %s", sessionId)

	models.GetNotifyHub().Broadcast(&types.Notification{
		Type:    types.NotifyUploadCancel,
		Title:   "Upload cancelled",
		Message: "Upload cancelled",
		Data:    map[string]any{"sessionId": sessionId},
	})
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
