package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type cancelTaskController struct{ svc services.BatchService }

func NewCancelTaskController(svc services.BatchService) *cancelTaskController {
	return &cancelTaskController{svc}
}

func (h *cancelTaskController) Handle(c *gin.Context) {
	if err := h.svc.CancelTask(c.Request.Context(), c.Param("id"), c.Param("taskId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}
