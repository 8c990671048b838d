package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type stopBatchController struct{ svc services.BatchService }

func NewStopBatchController(svc services.BatchService) *stopBatchController {
	return &stopBatchController{svc}
}

func (h *stopBatchController) Handle(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}
