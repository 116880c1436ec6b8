package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/api/middlewares"
	"github.com/moyoez/multiparter/api/models"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

type UploadController struct{}

func NewUploadController() *UploadController {
	return &UploadController{}
}

// Hooks registers running sessions for cancellation and announces them on
// the notify hub.
func (ctrl *UploadController) Hooks() middlewares.Hooks {
	return middlewares.Hooks{
		OnStart: ctrl.onStart,
		OnDone:  ctrl.onDone,
	}
}

func (ctrl *UploadController) onStart(c *gin.Context, sessionId string, abort func()) {
	models.RegisterUploadSession(sessionId, abort)
	tool.DefaultLogger.Infof("[Upload] Session %s started for %s", sessionId, c.ClientIP())
	models.GetNotifyHub().Broadcast(&types.Notification{
		Type:    types.NotifyUploadStart,
		Title:   "Upload started",
		Message: "Receiving upload from " + c.ClientIP(),
		Data:    map[string]any{"sessionId": sessionId, "remoteAddr": c.ClientIP()},
	})
}

func (ctrl *UploadController) onDone(c *gin.Context, sessionId string, err error) {
	models.RemoveUploadSession(sessionId)
	if err == nil {
		return
	}
	body := multiparter.Describe(err)
	tool.DefaultLogger.Warnf("[Upload] Session %s failed: %s", sessionId, body.Message)
	models.GetNotifyHub().Broadcast(&types.Notification{
		Type:    types.NotifyUploadFailed,
		Title:   "Upload failed",
		Message: body.Message,
		Data:    map[string]any{"sessionId": sessionId, "error": body},
	})
}

// HandleUpload stores a receipt for the form parsed by the Multipart
// middleware and returns it.
func (ctrl *UploadController) HandleUpload(c *gin.Context) {
	form := middlewares.Form[adapters.StoredFile](c)
	if form == nil {
		tool.DefaultLogger.Errorf("[Upload] No parsed form in context")
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Internal server error"))
		return
	}

	receipt := &models.UploadReceipt{
		ID:         middlewares.SessionID(c),
		RemoteAddr: c.ClientIP(),
		ReceivedAt: time.Now(),
		Fields:     form.Fields,
		Files:      form.Files,
	}
	models.StoreReceipt(receipt)
	tool.DefaultLogger.Infof("[Upload] Session %s stored %d field(s) and %d file(s)", receipt.ID, len(receipt.Fields), len(receipt.Files))

	models.GetNotifyHub().Broadcast(&types.Notification{
		Type:    types.NotifyUploadEnd,
		Title:   "Upload finished",
		Message: "Upload finished",
		Data: map[string]any{
			"sessionId": receipt.ID,
			"fields":    len(receipt.Fields),
			"files":     len(receipt.Files),
		},
	})
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(receipt))
}

// HandleGetUpload returns the receipt of a finished upload.
func (ctrl *UploadController) HandleGetUpload(c *gin.Context) {
	id := c.Param("id")
	receipt, ok := models.LookupReceipt(id)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Upload not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(receipt))
}
