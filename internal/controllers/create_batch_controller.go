package controllers

import (
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/services"
	"github.com/QualityUnit/flowbatch/pkg/domain"

	"github.com/gin-gonic/gin"
)

type createBatchController struct{ svc services.BatchService }

func NewCreateBatchController(svc services.BatchService) *createBatchController {
	return &createBatchController{svc}
}

type createBatchReq struct {
	FlowID      string             `json:"flowId" binding:"required"`
	WorkspaceID string             `json:"workspaceId"`
	Config      domain.BatchConfig `json:"config"`
	Tasks       []services.TaskSpec `json:"tasks" binding:"required"`
}

func (h *createBatchController) Handle(c *gin.Context) {
	var req createBatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	flow := domain.FlowRef{FlowID: req.FlowID, WorkspaceID: req.WorkspaceID}
	view, err := h.svc.Create(c.Request.Context(), flow, req.Config, req.Tasks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}
