package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/api/models"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

type StatusController struct {
	cfg types.AppConfig
}

func NewStatusController(cfg types.AppConfig) *StatusController {
	return &StatusController{cfg: cfg}
}

// HandleStatus returns server status for local tooling.
// GET /api/v1/status
func (ctrl *StatusController) HandleStatus(c *gin.Context) {
	clients := 0
	if hub := models.GetNotifyHub(); hub != nil {
		clients = hub.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"running":        true,
		"notify_clients": clients,
	})
}

// HandleConfig returns the effective upload configuration.
// GET /api/v1/config
func (ctrl *StatusController) HandleConfig(c *gin.Context) {
	cfg := ctrl.cfg
	limits, err := tool.ParseLimits(cfg.Limits)
	if err != nil {
		data := map[string]any{"detail": err.Error()}
		var le *tool.LimitError
		if errors.As(err, &le) {
			data["limit"] = le.Limit
		}
		c.JSON(http.StatusInternalServerError, tool.FastReturnErrorWithData("invalid limits", data))
		return
	}

	resp := types.ConfigResponse{
		Listen:    cfg.Listen,
		OnlyLocal: cfg.OnlyLocal,
		Backend:   strings.ToLower(cfg.Storage.Backend),
		Limits:    limits,
		Filter:    cfg.Filter,
		Compress:  cfg.Compress,
		RateLimit: cfg.RateLimit,
	}
	switch resp.Backend {
	case "s3":
		resp.Location = cfg.Storage.S3.Bucket
	case "azure":
		resp.Location = cfg.Storage.Azure.Container
	default:
		resp.Backend = "disk"
		resp.Location = cfg.Storage.Dir
	}
	c.JSON(http.StatusOK, resp)
}
