package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type startBatchController struct{ svc services.BatchService }

func NewStartBatchController(svc services.BatchService) *startBatchController {
	return &startBatchController{svc}
}

func (h *startBatchController) Handle(c *gin.Context) {
	if err := h.svc.Start(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
