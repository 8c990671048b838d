package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type writeOutputsController struct{ svc services.BatchService }

func NewWriteOutputsController(svc services.BatchService) *writeOutputsController {
	return &writeOutputsController{svc}
}

type writeOutputsReq struct {
	Directory string `json:"directory,omitempty"`
}

func (h *writeOutputsController) Handle(c *gin.Context) {
	var req writeOutputsReq
	// Body is optional; an empty directory falls back to the batch config.
	_ = c.ShouldBindJSON(&req)

	written, err := h.svc.WriteOutputs(c.Request.Context(), c.Param("id"), req.Directory)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"written": written})
}
