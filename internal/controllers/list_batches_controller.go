package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type listBatchesController struct{ svc services.BatchService }

func NewListBatchesController(svc services.BatchService) *listBatchesController {
	return &listBatchesController{svc}
}

func (h *listBatchesController) Handle(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	views, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": views, "count": len(views)})
}
