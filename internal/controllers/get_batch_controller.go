package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type getBatchController struct{ svc services.BatchService }

func NewGetBatchController(svc services.BatchService) *getBatchController {
	return &getBatchController{svc}
}

func (h *getBatchController) Handle(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
