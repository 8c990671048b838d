package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type retryTaskController struct{ svc services.BatchService }

func NewRetryTaskController(svc services.BatchService) *retryTaskController {
	return &retryTaskController{svc}
}

func (h *retryTaskController) Handle(c *gin.Context) {
	if err := h.svc.RetryTask(c.Request.Context(), c.Param("id"), c.Param("taskId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "retrying"})
}
