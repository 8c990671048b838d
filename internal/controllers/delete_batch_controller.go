package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type deleteBatchController struct{ svc services.BatchService }

func NewDeleteBatchController(svc services.BatchService) *deleteBatchController {
	return &deleteBatchController{svc}
}

func (h *deleteBatchController) Handle(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
